package ast

import "strings"

// LocalKind is the storage class of a declared local variable.
type LocalKind uint8

const (
	// LocalWord is a single 16-bit word (`local x:uint`).
	LocalWord LocalKind = iota
	// LocalBytes is a byte array of Size words (`local buf:byte[16]`).
	LocalBytes
)

func (k LocalKind) String() string {
	if k == LocalBytes {
		return "byte"
	}
	return "uint"
}

// Local describes a `local` declaration.
type Local struct {
	Name string
	Kind LocalKind
	Size int
}

// ParamName strips an optional ":kind" annotation from a parameter, so
// "a:uint" yields "a".
func ParamName(param string) string {
	if i := strings.IndexByte(param, ':'); i >= 0 {
		return strings.TrimSpace(param[:i])
	}
	return strings.TrimSpace(param)
}

// Block is one control scope: a function body, an if/elif/else branch, a
// while loop, a for loop or a run of plain statements.
//
// Exactly one of While, For or neither (plain/if) is set.
type Block struct {
	// Label is unique within a Program and names code generation targets.
	Label string

	Condition  Node
	Statements []Node
	Blocks     []*Block
	Elifs      []*Block
	Else       *Block

	While bool

	For      bool
	Iterator string
	Iterable Node

	// Params is only set on a function's root block.
	Params []string
	Locals []Local
}

// Program maps function names to their root blocks, keeping declaration
// order.
type Program struct {
	funcs map[string]*Block
	order []string
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{funcs: make(map[string]*Block)}
}

// Add registers a function. It reports false if the name is taken.
func (p *Program) Add(name string, b *Block) bool {
	if _, ok := p.funcs[name]; ok {
		return false
	}
	p.funcs[name] = b
	p.order = append(p.order, name)
	return true
}

// Func returns the root block of the named function, or nil.
func (p *Program) Func(name string) *Block {
	if p == nil {
		return nil
	}
	return p.funcs[name]
}

// Names returns the function names in declaration order.
func (p *Program) Names() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Len returns the number of functions.
func (p *Program) Len() int { return len(p.order) }
