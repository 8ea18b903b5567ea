package bytecode

import (
	"fmt"
	"io"
	"strings"

	"github.com/hce/govm/pkg/ast"
	"github.com/hce/govm/pkg/parser"
)

// FunctionLabel is the label a function's code starts at.
func FunctionLabel(name string) string { return "__FUNCTION__" + name }

// Emitter lowers parse trees to GoVM code.
type Emitter struct {
	// Obfuscator, when set, inserts NOPs before expressions.
	Obfuscator *Obfuscator

	w      *Writer
	sym    *Symbols
	log    io.Writer
	params int
}

// NewEmitter returns an emitter writing to w and resolving names in sym.
func NewEmitter(w *Writer, sym *Symbols, log io.Writer) *Emitter {
	if log == nil {
		log = io.Discard
	}
	return &Emitter{w: w, sym: sym, log: log}
}

// ---------------------------------------------------------------------------
// Functions and blocks
// ---------------------------------------------------------------------------

// Function emits a whole function: label, prologue, body, epilogue.
//
// Locals are taken from the function's first sub-block only; declarations
// in later blocks are not allocated.
func (e *Emitter) Function(name string, root *ast.Block) error {
	fmt.Fprintf(e.log, "compiling function %s\n", name)
	e.w.SetLabel(FunctionLabel(name))

	params := make([]string, 0, len(root.Params))
	for _, p := range root.Params {
		parts := strings.SplitN(strings.TrimSpace(p), ":", 2)
		if len(parts) != 2 {
			return compileErrorf("illegal function arguments %q in %s", p, name)
		}
		if strings.TrimSpace(parts[1]) != "uint" {
			return compileErrorf("only uints may be passed as parameters (%s in %s)", p, name)
		}
		params = append(params, strings.TrimSpace(parts[0]))
	}
	e.params = len(params)

	e.w.WriteOpcode(OpFMov)
	e.w.WriteOpcode(OpEMov)
	e.w.LoadImmediate(uint16(2 + e.params))
	e.w.WriteOpcode(OpSub)
	e.w.WriteOpcode(OpMovF)
	e.sym.BeginFunction(params)

	if len(root.Blocks) > 0 {
		for _, loc := range root.Blocks[0].Locals {
			switch loc.Kind {
			case ast.LocalWord:
				e.sym.DeclareWord(loc.Name)
			case ast.LocalBytes:
				e.sym.DeclareArray(loc.Name, loc.Size)
			}
		}
	}
	reserve := e.sym.StackReserve()
	fmt.Fprintf(e.log, "reserving %d words on the stack\n", reserve)
	e.w.LoadImmediate(uint16(reserve))
	e.w.WriteOpcode(OpSalloc)

	if err := e.block(root, ""); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	e.endFunction()
	return nil
}

func (e *Emitter) endFunction() {
	e.w.WriteOpcode(OpFMov)
	e.w.LoadImmediate(uint16(2 + e.params))
	e.w.WriteOpcode(OpAdd)
	e.w.WriteOpcode(OpMovE)
	e.w.WriteOpcode(OpMovF)
	e.w.WriteOpcode(OpJmp)
}

func (e *Emitter) endFunctionWithRetval() {
	e.w.WriteOpcode(OpMovA)
	e.w.WriteOpcode(OpFMov)
	e.w.LoadImmediate(uint16(2 + e.params))
	e.w.WriteOpcode(OpAdd)
	e.w.WriteOpcode(OpMovE)
	e.w.WriteOpcode(OpMovF)
	e.w.WriteOpcode(OpAMov)
	e.w.WriteOpcode(OpRot)
	e.w.WriteOpcode(OpJmp)
}

// block emits b. When exit is set, control jumps there after the body;
// elif branches use it to skip the rest of their chain.
func (e *Emitter) block(b *ast.Block, exit string) error {
	if b.For {
		return compileErrorf("for loops cannot be compiled to bytecode")
	}
	start, end := b.Label+"__start", b.Label+"__end"
	branches := !b.While && (len(b.Elifs) > 0 || b.Else != nil)
	if branches {
		exit = b.Label + "__done"
	}

	e.w.SetLabel(start)
	if b.Condition != nil {
		if err := e.statement(b.Condition); err != nil {
			return err
		}
		e.w.SetGoto(end, OpJz)
	}
	for _, stmt := range b.Statements {
		if err := e.statement(stmt); err != nil {
			return err
		}
	}
	for _, sub := range b.Blocks {
		if err := e.block(sub, ""); err != nil {
			return err
		}
	}
	if b.While {
		e.w.SetGoto(start, OpJmp)
	}
	if exit != "" {
		e.w.SetGoto(exit, OpJmp)
	}
	e.w.SetLabel(end)

	if branches {
		for _, elif := range b.Elifs {
			if err := e.block(elif, exit); err != nil {
				return err
			}
		}
		if b.Else != nil {
			if err := e.block(b.Else, ""); err != nil {
				return err
			}
		}
		e.w.SetLabel(exit)
	}
	return nil
}

// statement emits one statement, handling return.
func (e *Emitter) statement(n ast.Node) error {
	e.w.Annotate(n.String())
	if n.Returns() {
		if v, ok := n.(*ast.VarRef); ok && v.Name == "null" {
			e.endFunction()
			return nil
		}
		if err := e.Expr(n); err != nil {
			return err
		}
		e.endFunctionWithRetval()
		return nil
	}
	return e.Expr(n)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOps = map[ast.Operator][]Opcode{
	ast.OpAdd:    {OpAdd},
	ast.OpSub:    {OpSub},
	ast.OpMul:    {OpMul},
	ast.OpDiv:    {OpDiv},
	ast.OpEq:     {OpEqu},
	ast.OpNE:     {OpEqu, OpNot},
	ast.OpLE:     {OpLoe},
	ast.OpGE:     {OpGoe},
	ast.OpLT:     {OpLt},
	ast.OpGT:     {OpGt},
	ast.OpPow:    {OpXor},
	ast.OpShl:    {OpShl},
	ast.OpShr:    {OpShr},
	ast.OpBitAnd: {OpAnd},
	ast.OpBitOr:  {OpOr},
}

// Expr emits code leaving the value of n on the stack.
func (e *Emitter) Expr(n ast.Node) error {
	e.Obfuscator.Maybe(e.w)
	switch v := n.(type) {
	case *ast.IntLit:
		if v.Value < -0x8000 || v.Value > 0xFFFF {
			fmt.Fprintf(e.log, "WARNING: integer %d does not fit in 16 bits, using %d.\n", v.Value, uint16(v.Value))
		}
		e.w.LoadImmediate(uint16(v.Value))
		return nil
	case *ast.StringLit:
		off, err := e.sym.ReserveString(v.Value)
		if err != nil {
			return err
		}
		e.w.LoadImmediate(uint16(off))
		return nil
	case *ast.VarRef:
		return e.load(v.Name)
	case *ast.Name:
		_, err := e.address(v.Name)
		return err
	case *ast.Call:
		return e.call(v)
	case *ast.Operation:
		return e.operation(v)
	case *ast.FloatLit:
		return compileErrorf("float value %s cannot be compiled", v)
	case *ast.LongLit:
		return compileErrorf("long value %s cannot be compiled", v)
	}
	return compileErrorf("cannot compile %v", n)
}

func (e *Emitter) operation(op *ast.Operation) error {
	if op.Op == ast.OpMethod {
		return compileErrorf("method call %s cannot be compiled", op)
	}
	if op.Op == ast.OpAssign {
		return e.assign(op)
	}
	codes, ok := binaryOps[op.Op]
	if !ok {
		return compileErrorf("operator %s cannot be compiled", op.Op)
	}
	if err := e.Expr(op.Left); err != nil {
		return err
	}
	if err := e.Expr(op.Right); err != nil {
		return err
	}
	for _, c := range codes {
		e.w.WriteOpcode(c)
	}
	return nil
}

func (e *Emitter) assign(op *ast.Operation) error {
	target, ok := op.Left.(*ast.Name)
	if !ok {
		return compileErrorf("invalid assignment target %s", op.Left)
	}
	global, err := e.address(target.Name)
	if err != nil {
		return err
	}
	if err := e.Expr(op.Right); err != nil {
		return err
	}
	if global {
		e.w.WriteOpcode(OpSW)
	} else {
		e.w.WriteOpcode(OpRot)
		e.w.WriteOpcode(OpFMov)
		e.w.WriteOpcode(OpAdd)
		e.w.WriteOpcode(OpRot)
		e.w.WriteOpcode(OpSWS)
	}
	e.w.WriteOpcode(OpPop)
	e.w.WriteOpcode(OpPop)
	return nil
}

// address pushes the address of a variable, or of `name[index]`, and
// reports whether it is a global.
func (e *Emitter) address(ref string) (bool, error) {
	name, index := ref, ""
	if i := strings.IndexByte(ref, '['); i >= 0 {
		if !strings.HasSuffix(ref, "]") {
			return false, compileErrorf("malformed index expression %s", ref)
		}
		name, index = ref[:i], ref[i+1:len(ref)-1]
	}
	addr, err := e.sym.Resolve(strings.TrimSpace(name))
	if err != nil {
		return false, err
	}
	global := addr < 0
	if global {
		addr = -addr
	}
	e.w.LoadImmediate(uint16(addr))
	if index != "" {
		idx, err := parser.ParseExpr(index)
		if err != nil {
			return false, compileErrorf("index of %s: %v", name, err)
		}
		if idx == nil {
			return false, compileErrorf("empty index in %s", ref)
		}
		if err := e.Expr(idx); err != nil {
			return false, err
		}
		e.w.WriteOpcode(OpAdd)
	}
	return global, nil
}

func (e *Emitter) load(ref string) error {
	global, err := e.address(ref)
	if err != nil {
		return err
	}
	if global {
		e.w.WriteOpcode(OpLW)
	} else {
		e.w.WriteOpcode(OpFMov)
		e.w.WriteOpcode(OpAdd)
		e.w.WriteOpcode(OpLWS)
	}
	e.w.WriteOpcode(OpRot)
	e.w.WriteOpcode(OpPop)
	return nil
}

// ---------------------------------------------------------------------------
// Calls and syscalls
// ---------------------------------------------------------------------------

type intrinsic struct {
	args         int
	undocumented bool
	emit         func(w *Writer)
}

func syscall(n Syscall, after ...Opcode) func(w *Writer) {
	return func(w *Writer) {
		w.LoadImmediate(uint16(n))
		w.WriteOpcode(OpSyscall)
		for _, op := range after {
			w.WriteOpcode(op)
		}
	}
}

func ops(codes ...Opcode) func(w *Writer) {
	return func(w *Writer) {
		for _, op := range codes {
			w.WriteOpcode(op)
		}
	}
}

// intrinsics are calls lowered inline instead of through CALL.
var intrinsics = map[string]intrinsic{
	"putc":  {1, false, syscall(SysPutc, OpPop, OpPop)},
	"open":  {2, false, syscall(SysOpen)},
	"close": {1, false, syscall(SysClose)},
	"fputc": {2, false, syscall(SysFputc)},
	"fgetc": {1, false, syscall(SysFgetc)},
	"halt":  {0, false, syscall(SysHalt)},
	"getc":  {0, false, syscall(SysGetc, OpRot, OpPop)},
	"info":  {0, false, syscall(SysInfo, OpPop)},
	"peekw": {1, false, ops(OpLW, OpRot, OpPop)},
	"peekb": {1, false, ops(OpLB, OpRot, OpPop)},
	"pokew": {2, false, ops(OpSW, OpPop, OpPop)},
	"pokeb": {2, false, ops(OpSB, OpPop, OpPop)},

	"JMPABSOLUTE":  {1, true, ops(OpJmp)},
	"CALLABSOLUTE": {1, true, ops(OpCall)},
	"POKES":        {2, true, ops(OpSWS)},
	"POP":          {0, true, ops(OpPop)},
}

// Intrinsics lists the names lowered inline rather than called.
func Intrinsics() []string {
	names := make([]string, 0, len(intrinsics))
	for n := range intrinsics {
		names = append(names, n)
	}
	return names
}

func (e *Emitter) call(c *ast.Call) error {
	if in, ok := intrinsics[c.Func]; ok {
		if len(c.Args) != in.args {
			return compileErrorf("%s expects %d arguments, %d given", c.Func, in.args, len(c.Args))
		}
		if in.undocumented {
			fmt.Fprintf(e.log, "WARNING: using %s, which is undocumented.\n", c.Func)
		}
		for _, a := range c.Args {
			if err := e.Expr(a); err != nil {
				return err
			}
		}
		in.emit(e.w)
		return nil
	}

	for _, a := range c.Args {
		if err := e.Expr(a); err != nil {
			return err
		}
	}
	e.w.SetGoto(FunctionLabel(c.Func), OpCall)
	e.w.WriteOpcode(OpMovA)
	for range c.Args {
		e.w.WriteOpcode(OpPop)
	}
	e.w.WriteOpcode(OpAMov)
	return nil
}
