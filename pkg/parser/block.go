package parser

import (
	"strconv"
	"strings"

	"github.com/hce/govm/pkg/ast"
)

// ---------------------------------------------------------------------------
// Block parser
//
// A logical block is a header line plus every following line indented by
// at least one tab. Bodies are de-indented one level and parsed again.
// ---------------------------------------------------------------------------

type line struct {
	text string
	num  int
}

var blockKeywords = map[string]bool{
	"def":   true,
	"if":    true,
	"elif":  true,
	"else":  true,
	"while": true,
	"for":   true,
}

// Build parses a script into a Program. Only `def` blocks are allowed at
// the top level.
func (p *Parser) Build(text string) (prog *ast.Program, err error) {
	defer recoverParse(&err)
	p.labels = 0

	lines := prepare(text)
	prog = ast.NewProgram()
	for len(lines) > 0 {
		var chunk []line
		chunk, lines = peel(lines)
		head, body := chunk[0], chunk[1:]
		if strings.HasPrefix(head.text, "\t") {
			return nil, &SyntaxError{Line: head.num, Msg: "unexpected indentation at top level"}
		}

		kw, rest := splitHeader(head.text)
		if kw != "def" {
			if blockKeywords[kw] {
				return nil, &SyntaxError{Line: head.num, Msg: "statement " + kw + " not allowed at top level"}
			}
			return nil, &SyntaxError{Line: head.num, Msg: "illegal statement " + strconv.Quote(strings.TrimSpace(head.text))}
		}
		sig := strings.TrimSpace(rest)
		if !strings.HasSuffix(sig, ":") || len(body) == 0 {
			return nil, &SyntaxError{Line: head.num, Msg: "illegal statement " + strconv.Quote(strings.TrimSpace(head.text))}
		}

		name, params, err := parseSignature(strings.TrimSuffix(sig, ":"))
		if err != nil {
			return nil, atLine(err, head.num)
		}
		root := p.newBlock()
		root.Params = params
		if err := p.body(dedent(body), root, 1); err != nil {
			return nil, err
		}
		if !prog.Add(name, root) {
			return nil, &SyntaxError{Line: head.num, Msg: "function " + name + " defined twice"}
		}
	}
	return prog, nil
}

// parseSignature splits "name(a, b)" into the name and trimmed parameter
// list. A missing or empty parameter list yields nil params.
func parseSignature(sig string) (string, []string, error) {
	sig = strings.TrimSpace(sig)
	open := strings.IndexByte(sig, '(')
	if open < 0 {
		if !isIdent(sig) {
			return "", nil, syntaxErrorf("malformed function signature %q", sig)
		}
		return sig, nil, nil
	}
	name := strings.TrimSpace(sig[:open])
	closing := strings.LastIndexByte(sig, ')')
	if closing < open || strings.TrimSpace(sig[closing+1:]) != "" || !isIdent(name) {
		return "", nil, syntaxErrorf("malformed function signature %q", sig)
	}
	inner := strings.TrimSpace(sig[open+1 : closing])
	if inner == "" {
		return name, nil, nil
	}
	var params []string
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		if !isIdent(ast.ParamName(part)) {
			return "", nil, syntaxErrorf("malformed parameter %q in signature %q", part, sig)
		}
		params = append(params, part)
	}
	return name, params, nil
}

// body parses the de-indented lines of a block into parent.
func (p *Parser) body(lines []line, parent *ast.Block, depth int) error {
	if depth > p.maxDepth() {
		return &SyntaxError{Line: lines[0].num, Msg: "blocks nested too deeply"}
	}

	var run []line
	var lastIf *ast.Block
	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		blk, err := p.statements(run)
		if err != nil {
			return err
		}
		parent.Blocks = append(parent.Blocks, blk)
		run = nil
		return nil
	}

	for len(lines) > 0 {
		var chunk []line
		chunk, lines = peel(lines)
		head, body := chunk[0], chunk[1:]
		if strings.HasPrefix(head.text, "\t") {
			return &SyntaxError{Line: head.num, Msg: "wrong indentation"}
		}

		kw, rest := splitHeader(head.text)
		trimmed := strings.TrimSpace(head.text)
		isHeader := strings.HasSuffix(trimmed, ":") && len(body) > 0
		if !isHeader {
			if len(body) > 0 {
				return &SyntaxError{Line: body[0].num, Msg: "wrong indentation"}
			}
			if blockKeywords[kw] && strings.HasSuffix(trimmed, ":") {
				return &SyntaxError{Line: head.num, Msg: kw + " block has no body"}
			}
			run = append(run, head)
			lastIf = nil
			continue
		}
		if err := flush(); err != nil {
			return err
		}

		cond := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), ":"))
		inner := dedent(body)
		blk := p.newBlock()

		switch kw {
		case "if", "while", "for":
			blk.While = kw == "while"
			blk.For = kw == "for"
			if err := p.setCondition(blk, cond, head.num); err != nil {
				return err
			}
			if err := p.body(inner, blk, depth+1); err != nil {
				return err
			}
			parent.Blocks = append(parent.Blocks, blk)
			lastIf = nil
			if kw == "if" {
				lastIf = blk
			}

		case "elif":
			if lastIf == nil {
				return &SyntaxError{Line: head.num, Msg: "elif without matching if"}
			}
			if err := p.setCondition(blk, cond, head.num); err != nil {
				return err
			}
			if err := p.body(inner, blk, depth+1); err != nil {
				return err
			}
			lastIf.Elifs = append(lastIf.Elifs, blk)

		case "else":
			if lastIf == nil {
				return &SyntaxError{Line: head.num, Msg: "else without matching if"}
			}
			if cond != "" {
				return &SyntaxError{Line: head.num, Msg: "else takes no condition"}
			}
			if err := p.body(inner, blk, depth+1); err != nil {
				return err
			}
			lastIf.Else = blk
			lastIf = nil

		case "def":
			return &SyntaxError{Line: head.num, Msg: "nested function definitions are not supported"}

		default:
			return &SyntaxError{Line: head.num, Msg: "unknown block keyword " + strconv.Quote(kw)}
		}
	}
	return flush()
}

func (p *Parser) setCondition(blk *ast.Block, cond string, num int) error {
	if blk.For {
		parts := strings.SplitN(cond, " in ", 2)
		if len(parts) != 2 {
			return &SyntaxError{Line: num, Msg: "invalid for loop: " + cond}
		}
		iter := strings.TrimSpace(parts[0])
		if !isIteratorName(iter) {
			return &SyntaxError{Line: num, Msg: "invalid iterator variable: " + parts[0]}
		}
		n, err := p.expr(parts[1], 0)
		if err != nil {
			return atLine(err, num)
		}
		if n == nil {
			return &SyntaxError{Line: num, Msg: "for loop has nothing to iterate over"}
		}
		blk.Iterator = iter
		blk.Iterable = n
		return nil
	}
	n, err := p.expr(cond, 0)
	if err != nil {
		return atLine(err, num)
	}
	if n == nil {
		return &SyntaxError{Line: num, Msg: "missing condition"}
	}
	blk.Condition = n
	return nil
}

// statements builds a plain block from a run of statement lines. `local`
// declarations are collected separately.
func (p *Parser) statements(run []line) (*ast.Block, error) {
	blk := p.newBlock()
	for _, l := range run {
		text := strings.TrimSpace(l.text)
		if strings.HasPrefix(text, "local ") {
			loc, err := parseLocal(text)
			if err != nil {
				return nil, atLine(err, l.num)
			}
			blk.Locals = append(blk.Locals, loc)
			continue
		}
		n, err := p.expr(text, 0)
		if err != nil {
			return nil, atLine(err, l.num)
		}
		if n != nil {
			blk.Statements = append(blk.Statements, n)
		}
	}
	return blk, nil
}

// parseLocal handles `local name:uint` and `local name:byte[size]`.
func parseLocal(text string) (ast.Local, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ':' || r == '[' || r == ']'
	})
	if len(fields) < 3 {
		return ast.Local{}, syntaxErrorf(":uint or :byte[size] expected")
	}
	name := fields[1]
	if !isIdent(name) {
		return ast.Local{}, syntaxErrorf("invalid local variable name %q", name)
	}
	switch fields[2] {
	case "uint":
		if len(fields) > 3 {
			return ast.Local{}, syntaxErrorf("uint arrays are not supported")
		}
		return ast.Local{Name: name, Kind: ast.LocalWord}, nil
	case "byte":
		if len(fields) < 4 {
			return ast.Local{}, syntaxErrorf("[size] expected")
		}
		size, err := strconv.Atoi(fields[3])
		if err != nil || size <= 0 {
			return ast.Local{}, syntaxErrorf("invalid array size %q", fields[3])
		}
		return ast.Local{Name: name, Kind: ast.LocalBytes, Size: size}, nil
	}
	return ast.Local{}, syntaxErrorf(":uint or :byte[size] expected")
}

// ---------------------------------------------------------------------------
// Line handling
// ---------------------------------------------------------------------------

// prepare splits text into lines, dropping comments and blank lines while
// keeping the original line numbers.
func prepare(text string) []line {
	var out []line
	for i, raw := range strings.Split(text, "\n") {
		raw = strings.TrimRight(stripComment(raw), " \r")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		out = append(out, line{text: raw, num: i + 1})
	}
	return out
}

// stripComment removes a '#' comment that is not inside a string.
func stripComment(s string) string {
	inString := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inString = !inString
		case '#':
			if !inString {
				return s[:i]
			}
		}
	}
	return s
}

// peel splits off the first logical block.
func peel(lines []line) (chunk, rest []line) {
	n := 1
	for n < len(lines) && strings.HasPrefix(lines[n].text, "\t") {
		n++
	}
	return lines[:n], lines[n:]
}

func dedent(lines []line) []line {
	out := make([]line, len(lines))
	for i, l := range lines {
		out[i] = line{text: strings.TrimPrefix(l.text, "\t"), num: l.num}
	}
	return out
}

// splitHeader returns the leading keyword of a line and the remainder.
func splitHeader(s string) (string, string) {
	s = strings.TrimLeft(s, " ")
	i := strings.IndexAny(s, " :")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// isIteratorName matches a letter followed by letters or digits.
func isIteratorName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		letter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !letter && (i == 0 || !isDigit(c)) {
			return false
		}
	}
	return true
}
