package interp

import (
	"fmt"

	"github.com/hce/govm/pkg/ast"
)

// DefaultMaxDepth bounds script-to-script call nesting.
const DefaultMaxDepth = 200

// Interpreter runs the functions of a Program. It is itself a Host: calls
// with a nil receiver reach script functions first, then the wrapped host.
type Interpreter struct {
	MaxDepth int

	prog  *ast.Program
	host  Host
	depth int
}

// New returns an interpreter for prog. A nil host gets a fresh Registry.
func New(prog *ast.Program, host Host) *Interpreter {
	if host == nil {
		host = NewRegistry()
	}
	return &Interpreter{prog: prog, host: host, MaxDepth: DefaultMaxDepth}
}

// Program returns the program being run.
func (in *Interpreter) Program() *ast.Program { return in.prog }

// Run calls the named script function with args and returns what it
// returned, or nil if it fell off the end.
func (in *Interpreter) Run(name string, args ...interface{}) (interface{}, error) {
	root := in.prog.Func(name)
	if root == nil {
		return nil, notFoundf("function %s not found", name)
	}
	return in.invoke(name, root, args)
}

func (in *Interpreter) invoke(name string, root *ast.Block, args []interface{}) (interface{}, error) {
	if len(root.Params) != len(args) {
		return nil, &RuntimeError{
			Kind: KindWrongArity,
			Msg:  fmt.Sprintf("function expects %d parameters, %d given", len(root.Params), len(args)),
		}
	}
	limit := in.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	if in.depth >= limit {
		return nil, runtimeErrorf("call depth exceeds %d in %s", limit, name)
	}
	in.depth++
	defer func() { in.depth-- }()

	locals := make(Locals, len(args))
	for i, p := range root.Params {
		locals[ast.ParamName(p)] = args[i]
	}
	out, err := Evaluate(root, locals, in)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (in *Interpreter) Resolve(locals Locals, name string) (interface{}, bool) {
	return in.host.Resolve(locals, name)
}

func (in *Interpreter) Call(receiver interface{}, name string, locals Locals, args []interface{}) (interface{}, error) {
	if receiver == nil {
		if root := in.prog.Func(name); root != nil {
			return in.invoke(name, root, args)
		}
	}
	return in.host.Call(receiver, name, locals, args)
}

// Exec evaluates a block with the caller's locals, as the REPL does.
func (in *Interpreter) Exec(b *ast.Block, locals Locals) (Outcome, error) {
	return Evaluate(b, locals, in)
}
