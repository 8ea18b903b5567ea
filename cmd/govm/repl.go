package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/hce/govm/pkg/ast"
	"github.com/hce/govm/pkg/interp"
	"github.com/hce/govm/pkg/parser"
)

const (
	historyFile = ".govm_history"
	promptMain  = "govm> "
	promptCont  = "....> "
	replFunc    = "__repl__"
)

// session evaluates REPL input against locals that persist between
// entries. `def` blocks add functions to the session program.
type session struct {
	in     *interp.Interpreter
	prog   *ast.Program
	locals interp.Locals
	parser *parser.Parser
}

func (st *state) newSession() (*session, error) {
	prog := ast.NewProgram()
	in, err := st.interpreter(prog)
	if err != nil {
		return nil, err
	}
	p := parser.New()
	if st.cfg.Compiler.MaxDepth > 0 {
		p.MaxDepth = st.cfg.Compiler.MaxDepth
	}
	return &session{in: in, prog: prog, locals: interp.Locals{}, parser: p}, nil
}

// eval runs one entry. ok is false when there is nothing to print.
func (s *session) eval(src string) (v interface{}, ok bool, err error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil, false, nil
	}
	kw := firstWord(trimmed)
	if kw == "def" {
		return s.define(src)
	}
	if !strings.Contains(trimmed, "\n") && !isBlockKeyword(kw) {
		n, err := s.parser.ParseExpr(trimmed)
		if err != nil {
			return nil, false, err
		}
		v, err := interp.Eval(n, s.locals, s.in)
		if err != nil {
			return nil, false, err
		}
		if op, isOp := n.(*ast.Operation); isOp && op.Op == ast.OpAssign {
			return nil, false, nil
		}
		return v, true, nil
	}

	root, err := s.wrap(src)
	if err != nil {
		return nil, false, err
	}
	out, err := s.in.Exec(root, s.locals)
	if err != nil {
		return nil, false, err
	}
	return out.Value, out.Returned, nil
}

// define parses one or more functions and adds them to the session.
func (s *session) define(src string) (interface{}, bool, error) {
	prog, err := s.parser.Build(src)
	if err != nil {
		return nil, false, err
	}
	for _, name := range prog.Names() {
		if !s.prog.Add(name, prog.Func(name)) {
			return nil, false, fmt.Errorf("function %s already defined", name)
		}
	}
	return "defined " + strings.Join(prog.Names(), ", "), true, nil
}

// wrap parses a statement block as the body of a throwaway function.
func (s *session) wrap(src string) (*ast.Block, error) {
	var sb strings.Builder
	sb.WriteString("def " + replFunc + "():\n")
	for _, line := range strings.Split(strings.TrimRight(src, "\n"), "\n") {
		sb.WriteString("\t" + line + "\n")
	}
	prog, err := s.parser.Build(sb.String())
	if err != nil {
		var se *parser.SyntaxError
		if errors.As(err, &se) && se.Line > 1 {
			return nil, &parser.SyntaxError{Line: se.Line - 1, Msg: se.Msg}
		}
		return nil, err
	}
	return prog.Func(replFunc), nil
}

// needsMore reports whether buf is an unfinished block: its first line
// opens one and the user has not yet entered a blank line.
func needsMore(buf string) bool {
	lines := strings.Split(buf, "\n")
	first := strings.TrimSpace(lines[0])
	if i := strings.IndexByte(first, '#'); i >= 0 {
		first = strings.TrimSpace(first[:i])
	}
	if !strings.HasSuffix(first, ":") {
		return false
	}
	return len(lines) == 1 || strings.TrimSpace(lines[len(lines)-1]) != ""
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \t(:"); i >= 0 {
		return s[:i]
	}
	return s
}

func isBlockKeyword(kw string) bool {
	switch kw {
	case "if", "elif", "else", "while", "for":
		return true
	}
	return false
}

func readEntry(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !needsMore(b.String()) {
			return b.String(), true
		}
	}
}

func (st *state) repl() error {
	s, err := st.newSession()
	if err != nil {
		return err
	}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetTabCompletionStyle(liner.TabPrints)
	ln.SetCompleter(func(line string) []string {
		return s.complete(line)
	})

	if f, err := os.Open(histPath); err == nil {
		ln.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			ln.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintln(st.out, "govm interactive evaluator. Type :quit to exit.")
	for {
		src, ok := readEntry(ln)
		if !ok {
			fmt.Fprintln(st.out)
			return nil
		}
		switch strings.TrimSpace(src) {
		case "":
			continue
		case ":quit", ":q":
			return nil
		case ":locals":
			for _, line := range s.describeLocals() {
				fmt.Fprintln(st.out, line)
			}
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		v, show, err := s.eval(src)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if show {
			fmt.Fprintln(st.out, interp.FormatValue(v))
		}
	}
}

// complete offers session locals, functions and builtins that extend the
// last word of line.
func (s *session) complete(line string) []string {
	start := strings.LastIndexAny(line, " \t(,=+-*/") + 1
	prefix := line[start:]
	if prefix == "" {
		return nil
	}
	var names []string
	for name := range s.locals {
		names = append(names, name)
	}
	names = append(names, s.prog.Names()...)
	names = append(names, interp.BuiltinNames()...)

	sort.Strings(names)
	var out []string
	for i, name := range names {
		if strings.HasPrefix(name, prefix) && (i == 0 || names[i-1] != name) {
			out = append(out, line[:start]+name)
		}
	}
	return out
}

func (s *session) describeLocals() []string {
	out := make([]string, 0, len(s.locals))
	for name, v := range s.locals {
		out = append(out, fmt.Sprintf("%s = %s", name, interp.FormatValue(v)))
	}
	sort.Strings(out)
	return out
}
