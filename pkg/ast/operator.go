package ast

import "fmt"

// Operator tags an Operation. Single-character operators use their own
// character; two-character operators use a mnemonic letter. The tag byte is
// what the serialized tree stores.
type Operator byte

const (
	OpAdd    Operator = '+'
	OpSub    Operator = '-'
	OpMul    Operator = '*'
	OpDiv    Operator = '/'
	OpPow    Operator = '^'
	OpLT     Operator = '<'
	OpGT     Operator = '>'
	OpBitAnd Operator = '&'
	OpBitOr  Operator = '|'
	OpAssign Operator = '='
	OpColon  Operator = ':'
	OpBang   Operator = '!'
	OpMethod Operator = '.'
	OpAnd    Operator = 'a' // &&
	OpOr     Operator = 'o' // ||
	OpEq     Operator = 'e' // ==
	OpNE     Operator = 'n' // !=
	OpLE     Operator = 'l' // <=
	OpGE     Operator = 'g' // >=
	OpShl    Operator = 'y' // <<
	OpShr    Operator = 'x' // >>
)

var opSymbols = map[Operator]string{
	OpAnd: "&&",
	OpOr:  "||",
	OpEq:  "==",
	OpNE:  "!=",
	OpLE:  "<=",
	OpGE:  ">=",
	OpShl: "<<",
	OpShr: ">>",
}

// String returns the operator as written in source.
func (o Operator) String() string {
	if s, ok := opSymbols[o]; ok {
		return s
	}
	if o.Valid() {
		return string(rune(o))
	}
	return fmt.Sprintf("Operator(%d)", byte(o))
}

// Valid reports whether o is a known operator tag.
func (o Operator) Valid() bool {
	switch o {
	case OpAdd, OpSub, OpMul, OpDiv, OpPow, OpLT, OpGT, OpBitAnd, OpBitOr,
		OpAssign, OpColon, OpBang, OpMethod,
		OpAnd, OpOr, OpEq, OpNE, OpLE, OpGE, OpShl, OpShr:
		return true
	}
	return false
}

// IsOperatorChar reports whether c can start an operator. The dot is
// handled separately by the parser since it may belong to a float literal.
func IsOperatorChar(c byte) bool {
	switch c {
	case '*', '/', '+', '^', '-', '<', '>', '&', '|', '=', ':', '!', '.':
		return true
	}
	return false
}

// TwoCharOperator returns the operator for a two-character sequence
// starting with first and followed by next, if there is one.
func TwoCharOperator(first, next byte) (Operator, bool) {
	switch {
	case first == '&' && next == '&':
		return OpAnd, true
	case first == '|' && next == '|':
		return OpOr, true
	case first == '=' && next == '=':
		return OpEq, true
	case first == '<' && next == '=':
		return OpLE, true
	case first == '<' && next == '<':
		return OpShl, true
	case first == '>' && next == '=':
		return OpGE, true
	case first == '>' && next == '>':
		return OpShr, true
	case first == '!' && next == '=':
		return OpNE, true
	}
	return 0, false
}
