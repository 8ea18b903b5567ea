package ast

import "fmt"

// ---------------------------------------------------------------------------
// ParseTree nodes
// ---------------------------------------------------------------------------

// Kind identifies the variant of a parse tree node. The numeric values are
// part of the serialized tree format and must not be reordered.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindLong
	KindFloat
	KindString
	KindVar
	KindName
	KindCall
	KindOp
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindInt:     "int",
	KindLong:    "long",
	KindFloat:   "float",
	KindString:  "string",
	KindVar:     "var",
	KindName:    "name",
	KindCall:    "call",
	KindOp:      "op",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Node is a parse tree node. Nodes are immutable once built and form a
// strict tree.
type Node interface {
	Kind() Kind
	// Returns reports whether the node is the return expression of its
	// enclosing block.
	Returns() bool
	String() string
}

type base struct {
	ret bool
}

func (b base) Returns() bool { return b.ret }

// IntLit is a 32-bit integer literal.
type IntLit struct {
	base
	Value int32
}

// LongLit is a 64-bit integer literal (written with an L suffix).
type LongLit struct {
	base
	Value int64
}

// FloatLit is a 64-bit floating point literal.
type FloatLit struct {
	base
	Value float64
}

// StringLit is a quoted string literal.
type StringLit struct {
	base
	Value string
}

// VarRef names a variable that is looked up each time it is evaluated.
// Name may carry an index suffix such as "buf[2]".
type VarRef struct {
	base
	Name string
}

// Name is the target of an assignment. It evaluates to its own text.
type Name struct {
	base
	Name string
}

// Call is a free function call.
type Call struct {
	base
	Func string
	Args []Node
}

// Operation is a binary operation. When Op is OpMethod the node is a method
// invocation on Left: Method and Args are set and Right is nil.
type Operation struct {
	base
	Left   Node
	Right  Node
	Op     Operator
	Method string
	Args   []Node
}

func (*IntLit) Kind() Kind    { return KindInt }
func (*LongLit) Kind() Kind   { return KindLong }
func (*FloatLit) Kind() Kind  { return KindFloat }
func (*StringLit) Kind() Kind { return KindString }
func (*VarRef) Kind() Kind    { return KindVar }
func (*Name) Kind() Kind      { return KindName }
func (*Call) Kind() Kind      { return KindCall }
func (*Operation) Kind() Kind { return KindOp }

// Constructors.

func NewInt(v int32) *IntLit               { return &IntLit{Value: v} }
func NewLong(v int64) *LongLit             { return &LongLit{Value: v} }
func NewFloat(v float64) *FloatLit         { return &FloatLit{Value: v} }
func NewString(v string) *StringLit        { return &StringLit{Value: v} }
func NewVar(name string) *VarRef           { return &VarRef{Name: name} }
func NewName(name string) *Name            { return &Name{Name: name} }
func NewCall(fn string, args []Node) *Call { return &Call{Func: fn, Args: args} }

// NewOp builds a binary operation.
func NewOp(left Node, op Operator, right Node) *Operation {
	return &Operation{Left: left, Right: right, Op: op}
}

// NewMethod builds a method invocation on recv.
func NewMethod(recv Node, method string, args []Node) *Operation {
	return &Operation{Left: recv, Op: OpMethod, Method: method, Args: args}
}

// AsReturn returns a copy of n with the return flag set. The argument is
// left untouched.
func AsReturn(n Node) Node {
	return withReturn(n, true)
}

func withReturn(n Node, ret bool) Node {
	switch v := n.(type) {
	case *IntLit:
		c := *v
		c.ret = ret
		return &c
	case *LongLit:
		c := *v
		c.ret = ret
		return &c
	case *FloatLit:
		c := *v
		c.ret = ret
		return &c
	case *StringLit:
		c := *v
		c.ret = ret
		return &c
	case *VarRef:
		c := *v
		c.ret = ret
		return &c
	case *Name:
		c := *v
		c.ret = ret
		return &c
	case *Call:
		c := *v
		c.ret = ret
		return &c
	case *Operation:
		c := *v
		c.ret = ret
		return &c
	}
	return n
}

// Equal reports whether two trees are structurally equal, including return
// flags.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() || a.Returns() != b.Returns() {
		return false
	}
	switch x := a.(type) {
	case *IntLit:
		return x.Value == b.(*IntLit).Value
	case *LongLit:
		return x.Value == b.(*LongLit).Value
	case *FloatLit:
		y := b.(*FloatLit).Value
		return x.Value == y || (x.Value != x.Value && y != y)
	case *StringLit:
		return x.Value == b.(*StringLit).Value
	case *VarRef:
		return x.Name == b.(*VarRef).Name
	case *Name:
		return x.Name == b.(*Name).Name
	case *Call:
		y := b.(*Call)
		return x.Func == y.Func && equalList(x.Args, y.Args)
	case *Operation:
		y := b.(*Operation)
		if x.Op != y.Op || !Equal(x.Left, y.Left) {
			return false
		}
		if x.Op == OpMethod {
			return x.Method == y.Method && equalList(x.Args, y.Args)
		}
		return Equal(x.Right, y.Right)
	}
	return false
}

func equalList(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
