package bytecode

import (
	"fmt"
	"io"

	"github.com/hce/govm/pkg/ast"
)

// EntryPoint is the function a module starts executing at.
const EntryPoint = "main"

// Global is a word in the data segment visible to every function.
type Global struct {
	Name  string
	Value uint16
}

// Options control code generation.
type Options struct {
	// Globals are declared before any function is compiled.
	Globals []Global
	// Obfuscate scatters NOPs through the code, seeded by Seed.
	Obfuscate bool
	Seed      int64
	// Log receives the diagnostic log. May be nil.
	Log io.Writer
}

// Compile lowers prog into a GoVM module. main is emitted first so that it
// sits at IP 0; the remaining functions follow in declaration order.
func Compile(prog *ast.Program, opts Options) ([]byte, error) {
	log := opts.Log
	if log == nil {
		log = io.Discard
	}
	if prog.Func(EntryPoint) == nil {
		return nil, compileErrorf("entry point '%s' not found", EntryPoint)
	}

	w := NewWriter(log)
	sym := NewSymbols(log)
	for _, g := range opts.Globals {
		sym.DeclareGlobal(g.Name, g.Value)
	}
	e := NewEmitter(w, sym, log)
	if opts.Obfuscate {
		e.Obfuscator = NewObfuscator(opts.Seed)
	}

	if err := e.Function(EntryPoint, prog.Func(EntryPoint)); err != nil {
		return nil, err
	}
	for _, name := range prog.Names() {
		if name == EntryPoint {
			continue
		}
		if err := e.Function(name, prog.Func(name)); err != nil {
			return nil, err
		}
	}

	out, err := w.Assemble(sym.Data())
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(log, "module: %d bytes\n", len(out))
	return out, nil
}
