package ast

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Flat rendering
//
// String output is valid source for the expression parser: operations are
// fully parenthesized, so re-parsing yields the same tree.
// ---------------------------------------------------------------------------

func retPrefix(n Node) string {
	if n.Returns() {
		return "return "
	}
	return ""
}

func (n *IntLit) String() string {
	return retPrefix(n) + strconv.FormatInt(int64(n.Value), 10)
}

func (n *LongLit) String() string {
	return retPrefix(n) + strconv.FormatInt(n.Value, 10) + "L"
}

func (n *FloatLit) String() string {
	return retPrefix(n) + FormatFloat(n.Value)
}

func (n *StringLit) String() string {
	return retPrefix(n) + `"` + n.Value + `"`
}

func (n *VarRef) String() string { return retPrefix(n) + n.Name }

func (n *Name) String() string { return retPrefix(n) + n.Name }

func (n *Call) String() string {
	return retPrefix(n) + n.Func + "(" + joinNodes(n.Args) + ")"
}

func (n *Operation) String() string {
	if n.Op == OpMethod {
		return retPrefix(n) + nodeString(n.Left) + "." + n.Method + "(" + joinNodes(n.Args) + ")"
	}
	return retPrefix(n) + "(" + nodeString(n.Left) + n.Op.String() + nodeString(n.Right) + ")"
}

// FormatFloat renders a float so that it reads back as a float literal.
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	return s
}

func nodeString(n Node) string {
	if n == nil {
		return ""
	}
	return n.String()
}

func joinNodes(ns []Node) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = nodeString(n)
	}
	return strings.Join(parts, ", ")
}

// ---------------------------------------------------------------------------
// Tree rendering
// ---------------------------------------------------------------------------

// Tree renders n as an indented ASCII tree, one node per line.
func Tree(n Node) string {
	var sb strings.Builder
	writeTree(&sb, n, "", "")
	return sb.String()
}

func writeTree(sb *strings.Builder, n Node, head, tail string) {
	sb.WriteString(head)
	sb.WriteString(label(n))
	sb.WriteByte('\n')
	kids := children(n)
	for i, k := range kids {
		if i == len(kids)-1 {
			writeTree(sb, k, tail+"`-- ", tail+"    ")
		} else {
			writeTree(sb, k, tail+"|-- ", tail+"|   ")
		}
	}
}

func label(n Node) string {
	if n == nil {
		return "<nil>"
	}
	var s string
	switch v := n.(type) {
	case *Call:
		s = v.Func + "()"
	case *Operation:
		if v.Op == OpMethod {
			s = "." + v.Method + "()"
		} else {
			s = v.Op.String()
		}
	case *Name:
		s = v.Name + " (name)"
	default:
		s = n.String()
		if n.Returns() {
			s = strings.TrimPrefix(s, "return ")
		}
	}
	if n.Returns() {
		s += " [return]"
	}
	return s
}

func children(n Node) []Node {
	switch v := n.(type) {
	case *Call:
		return v.Args
	case *Operation:
		if v.Op == OpMethod {
			return append([]Node{v.Left}, v.Args...)
		}
		return []Node{v.Left, v.Right}
	}
	return nil
}

// BlockTree renders a block and its nested scopes.
func BlockTree(b *Block) string {
	var sb strings.Builder
	writeBlock(&sb, b, "")
	return sb.String()
}

func writeBlock(sb *strings.Builder, b *Block, indent string) {
	sb.WriteString(indent)
	switch {
	case b.For:
		sb.WriteString("for " + b.Iterator + " in " + nodeString(b.Iterable))
	case b.While:
		sb.WriteString("while " + nodeString(b.Condition))
	case b.Condition != nil:
		sb.WriteString("if " + nodeString(b.Condition))
	case len(b.Params) > 0:
		sb.WriteString("def (" + strings.Join(b.Params, ", ") + ")")
	default:
		sb.WriteString("block")
	}
	sb.WriteString(" [" + b.Label + "]\n")
	for _, l := range b.Locals {
		sb.WriteString(indent + "  local " + l.Name + ":" + l.Kind.String())
		if l.Kind == LocalBytes {
			sb.WriteString("[" + strconv.Itoa(l.Size) + "]")
		}
		sb.WriteByte('\n')
	}
	for _, s := range b.Statements {
		sb.WriteString(indent + "  " + nodeString(s) + "\n")
	}
	for _, sub := range b.Blocks {
		writeBlock(sb, sub, indent+"  ")
	}
	for _, e := range b.Elifs {
		sb.WriteString(indent + "elif:\n")
		writeBlock(sb, e, indent+"  ")
	}
	if b.Else != nil {
		sb.WriteString(indent + "else:\n")
		writeBlock(sb, b.Else, indent+"  ")
	}
}
