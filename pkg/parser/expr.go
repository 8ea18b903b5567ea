package parser

import (
	"strconv"
	"strings"

	"github.com/hce/govm/pkg/ast"
)

// ---------------------------------------------------------------------------
// Expression parser
//
// There is no tokenizer and no precedence. The first operator found at
// bracket depth zero becomes the root; the text before it is one operand
// and the text after it is parsed again as a whole expression.
// ---------------------------------------------------------------------------

func (p *Parser) expr(s string, depth int) (ast.Node, error) {
	if depth > p.maxDepth() {
		return nil, syntaxErrorf("expression nested deeper than %d levels", p.maxDepth())
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if s == "return" {
		return ast.AsReturn(ast.NewVar("null")), nil
	}
	if strings.HasPrefix(s, "return ") {
		n, err := p.expr(s[len("return "):], depth+1)
		if err != nil {
			return nil, err
		}
		if n == nil {
			n = ast.NewVar("null")
		}
		return ast.AsReturn(n), nil
	}

	negate := false
	if s[0] == '-' {
		negate = true
		s = strings.TrimSpace(s[1:])
		if s == "" {
			return nil, syntaxErrorf("'-' without operand")
		}
	}

	i, err := findOperator(s)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return p.operand(s, negate, depth)
	}

	op, width := operatorAt(s, i)
	leftText := strings.TrimSpace(s[:i])
	rest := s[i+width:]

	var left ast.Node
	if op == ast.OpAssign {
		if negate || leftText == "" {
			return nil, syntaxErrorf("invalid assignment target in %q", s)
		}
		left = ast.NewName(leftText)
	} else {
		if leftText == "" {
			return nil, syntaxErrorf("missing left operand for %s", op)
		}
		if left, err = p.operand(leftText, negate, depth); err != nil {
			return nil, err
		}
	}

	if op == ast.OpMethod {
		return p.methodChain(left, rest, depth)
	}

	right, err := p.expr(rest, depth+1)
	if err != nil {
		return nil, err
	}
	if right == nil {
		return nil, syntaxErrorf("missing right operand for %s", op)
	}
	return ast.NewOp(left, op, right), nil
}

// findOperator returns the index of the first operator at bracket depth
// zero, or -1. Quoted text is skipped.
func findOperator(s string) (int, error) {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth < 0 {
				return -1, syntaxErrorf("mismatched brackets in %q", s)
			}
		case '.':
			if depth == 0 && !(i+1 < len(s) && isDigit(s[i+1])) {
				return i, nil
			}
		default:
			if depth == 0 && ast.IsOperatorChar(c) {
				return i, nil
			}
		}
	}
	if inString {
		return -1, syntaxErrorf("unterminated string in %q", s)
	}
	if depth != 0 {
		return -1, syntaxErrorf("mismatched brackets in %q", s)
	}
	return -1, nil
}

// operatorAt decodes the operator starting at s[i], returning it and the
// number of bytes it occupies.
func operatorAt(s string, i int) (ast.Operator, int) {
	if i+1 < len(s) {
		if op, ok := ast.TwoCharOperator(s[i], s[i+1]); ok {
			return op, 2
		}
	}
	return ast.Operator(s[i]), 1
}

// operand parses text that contains no operator at depth zero.
func (p *Parser) operand(s string, negate bool, depth int) (ast.Node, error) {
	switch {
	case s[0] == '(':
		if negate {
			return nil, syntaxErrorf("'-' must be followed by a numeric literal, got %q", s)
		}
		end := strings.LastIndexByte(s, ')')
		if end < 0 {
			return nil, syntaxErrorf("mismatched brackets in %q", s)
		}
		if trailing := strings.TrimSpace(s[end+1:]); trailing != "" {
			return nil, syntaxErrorf("unexpected %q after parenthesized expression", trailing)
		}
		n, err := p.expr(s[1:end], depth+1)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, syntaxErrorf("empty parentheses")
		}
		return n, nil

	case s[0] == '"':
		if negate {
			return nil, syntaxErrorf("'-' must be followed by a numeric literal, got %q", s)
		}
		end := strings.LastIndexByte(s, '"')
		if end == 0 {
			return nil, syntaxErrorf("unterminated string in %q", s)
		}
		if trailing := strings.TrimSpace(s[end+1:]); trailing != "" {
			return nil, syntaxErrorf("unexpected %q after string literal", trailing)
		}
		return ast.NewString(s[1:end]), nil

	case isDigit(s[0]):
		return parseNumber(s, negate)
	}

	if negate {
		return nil, syntaxErrorf("'-' must be followed by a numeric literal, got %q", s)
	}
	if open := strings.IndexByte(s, '('); open >= 0 {
		name := strings.TrimSpace(s[:open])
		if !isIdent(name) {
			return nil, syntaxErrorf("invalid function name %q", name)
		}
		args, err := p.callArgs(s[open:], depth)
		if err != nil {
			return nil, err
		}
		return ast.NewCall(name, args), nil
	}
	return ast.NewVar(s), nil
}

// callArgs parses "(a, b, ...)" with the opening parenthesis at s[0].
func (p *Parser) callArgs(s string, depth int) ([]ast.Node, error) {
	end := strings.LastIndexByte(s, ')')
	if end < 0 {
		return nil, syntaxErrorf("invalid function call: missing ')' in %q", s)
	}
	if trailing := strings.TrimSpace(s[end+1:]); trailing != "" {
		return nil, syntaxErrorf("unexpected %q after function call", trailing)
	}
	parts := SplitArgs(s[1:end])
	args := make([]ast.Node, 0, len(parts))
	for _, part := range parts {
		n, err := p.expr(part, depth+1)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, syntaxErrorf("empty argument in %q", s)
		}
		args = append(args, n)
	}
	return args, nil
}

func parseNumber(s string, negate bool) (ast.Node, error) {
	text := s
	if negate {
		text = "-" + s
	}
	switch {
	case strings.IndexByte(s, '.') >= 0:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, syntaxErrorf("invalid number %q", text)
		}
		return ast.NewFloat(v), nil
	case strings.HasSuffix(s, "L"):
		v, err := strconv.ParseInt(strings.TrimSuffix(text, "L"), 10, 64)
		if err != nil {
			return nil, syntaxErrorf("invalid number %q", text)
		}
		return ast.NewLong(v), nil
	}
	v, err := strconv.ParseInt(text, 10, 32)
	if err != nil {
		return nil, syntaxErrorf("invalid number %q", text)
	}
	return ast.NewInt(int32(v)), nil
}

// ---------------------------------------------------------------------------
// Method chains
// ---------------------------------------------------------------------------

// methodChain parses the text after a '.' operator: one or more method
// segments, optionally followed by an operator and the rest of the
// expression.
func (p *Parser) methodChain(recv ast.Node, rest string, depth int) (ast.Node, error) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil, syntaxErrorf("missing method name after '.'")
	}
	end, err := findChainEnd(rest)
	if err != nil {
		return nil, err
	}

	chainText := rest
	if end >= 0 {
		chainText = rest[:end]
	}
	node := recv
	for _, seg := range splitChain(chainText) {
		if node, err = p.method(node, seg, depth); err != nil {
			return nil, err
		}
	}
	if end < 0 {
		return node, nil
	}

	op, width := operatorAt(rest, end)
	if op == ast.OpAssign {
		return nil, syntaxErrorf("cannot assign to a method call")
	}
	right, err := p.expr(rest[end+width:], depth+1)
	if err != nil {
		return nil, err
	}
	if right == nil {
		return nil, syntaxErrorf("missing right operand for %s", op)
	}
	return ast.NewOp(node, op, right), nil
}

// method parses one chain segment: "name(args)" or a bare "name", which
// is shorthand for "getname()".
func (p *Parser) method(recv ast.Node, seg string, depth int) (ast.Node, error) {
	seg = strings.TrimSpace(seg)
	if seg == "" {
		return nil, syntaxErrorf("empty method name")
	}
	open := strings.IndexByte(seg, '(')
	if open < 0 {
		if !isIdent(seg) {
			return nil, syntaxErrorf("invalid method name %q", seg)
		}
		return ast.NewMethod(recv, "get"+seg, nil), nil
	}
	name := strings.TrimSpace(seg[:open])
	if !isIdent(name) {
		return nil, syntaxErrorf("invalid method name %q", name)
	}
	args, err := p.callArgs(seg[open:], depth)
	if err != nil {
		return nil, err
	}
	return ast.NewMethod(recv, name, args), nil
}

// findChainEnd returns the index of the first non-dot operator outside
// brackets and strings, or -1.
func findChainEnd(s string) (int, error) {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth < 0 {
				return -1, syntaxErrorf("mismatched brackets in %q", s)
			}
		case '.':
		default:
			if depth == 0 && ast.IsOperatorChar(c) {
				return i, nil
			}
		}
	}
	if depth != 0 {
		return -1, syntaxErrorf("mismatched brackets in %q", s)
	}
	return -1, nil
}

// splitChain splits "a(x).b.c()" on dots outside brackets and strings.
func splitChain(s string) []string {
	var out []string
	depth := 0
	inString := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '.':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// SplitArgs splits an argument list on commas that are outside strings and
// outside (), [] and {} nesting. An empty list yields no arguments.
func SplitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	depth := 0
	inString := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inString = !inString
		case '(', '[', '{':
			if !inString {
				depth++
			}
		case ')', ']', '}':
			if !inString {
				depth--
			}
		case ',':
			if !inString && depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdent(s string) bool {
	if s == "" || !isLetter(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isLetter(s[i]) && !isDigit(s[i]) {
			return false
		}
	}
	return true
}
