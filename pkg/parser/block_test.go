package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/hce/govm/pkg/ast"
)

const sampleScript = `# sample
def main():
	local i:uint
	local buf:byte[8]
	i = 0
	while i < 3:
		i = i + 1
	if i == 3:
		return 1
	elif i == 4:
		return 2
	else:
		return 3

def add(a:uint, b:uint):
	return a + b   # trailing comment
`

func mustBuild(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := Build(src)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return prog
}

func TestBuildFunctions(t *testing.T) {
	prog := mustBuild(t, sampleScript)

	names := prog.Names()
	if len(names) != 2 || names[0] != "main" || names[1] != "add" {
		t.Fatalf("Names() = %v, want [main add]", names)
	}

	add := prog.Func("add")
	if len(add.Params) != 2 || add.Params[0] != "a:uint" || add.Params[1] != "b:uint" {
		t.Errorf("add params = %q, want [a:uint b:uint]", add.Params)
	}
	if len(add.Blocks) != 1 || len(add.Blocks[0].Statements) != 1 {
		t.Fatalf("add body = %s", ast.BlockTree(add))
	}
	ret := add.Blocks[0].Statements[0]
	if !ret.Returns() || ret.String() != "return (a+b)" {
		t.Errorf("add statement = %s, want return (a+b)", ret)
	}

	if prog.Func("main").Params != nil {
		t.Errorf("main params = %q, want nil", prog.Func("main").Params)
	}
}

func TestBuildBlockStructure(t *testing.T) {
	main := mustBuild(t, sampleScript).Func("main")
	if main.Label != "L1" {
		t.Errorf("root label = %q, want L1", main.Label)
	}
	if len(main.Blocks) != 3 {
		t.Fatalf("main has %d sub-blocks, want 3:\n%s", len(main.Blocks), ast.BlockTree(main))
	}

	decl := main.Blocks[0]
	if len(decl.Locals) != 2 {
		t.Fatalf("locals = %v, want 2 entries", decl.Locals)
	}
	if decl.Locals[0] != (ast.Local{Name: "i", Kind: ast.LocalWord}) {
		t.Errorf("locals[0] = %+v", decl.Locals[0])
	}
	if decl.Locals[1] != (ast.Local{Name: "buf", Kind: ast.LocalBytes, Size: 8}) {
		t.Errorf("locals[1] = %+v", decl.Locals[1])
	}
	if len(decl.Statements) != 1 || decl.Statements[0].String() != "(i=0)" {
		t.Errorf("declaration block statements = %v", decl.Statements)
	}

	loop := main.Blocks[1]
	if !loop.While || loop.For || loop.Condition.String() != "(i<3)" {
		t.Errorf("while block = %+v", loop)
	}
	if len(loop.Blocks) != 1 || loop.Blocks[0].Statements[0].String() != "(i=(i+1))" {
		t.Errorf("while body:\n%s", ast.BlockTree(loop))
	}

	branch := main.Blocks[2]
	if branch.While || branch.Condition.String() != "(i==3)" {
		t.Errorf("if block condition = %v", branch.Condition)
	}
	if len(branch.Elifs) != 1 || branch.Elifs[0].Condition.String() != "(i==4)" {
		t.Errorf("elifs = %v", branch.Elifs)
	}
	if branch.Else == nil || branch.Else.Condition != nil {
		t.Fatalf("else block = %+v", branch.Else)
	}
	if got := branch.Else.Blocks[0].Statements[0].String(); got != "return 3" {
		t.Errorf("else statement = %s, want return 3", got)
	}
}

func TestBuildLabelsUnique(t *testing.T) {
	prog := mustBuild(t, sampleScript)
	seen := map[string]bool{}
	var walk func(b *ast.Block)
	walk = func(b *ast.Block) {
		if seen[b.Label] {
			t.Errorf("label %s used twice", b.Label)
		}
		seen[b.Label] = true
		for _, s := range b.Blocks {
			walk(s)
		}
		for _, e := range b.Elifs {
			walk(e)
		}
		if b.Else != nil {
			walk(b.Else)
		}
	}
	for _, name := range prog.Names() {
		walk(prog.Func(name))
	}
}

func TestBuildForLoop(t *testing.T) {
	prog := mustBuild(t, "def main():\n\tsum = 0\n\tfor i in range(3):\n\t\tsum = sum + i\n\treturn sum\n")
	main := prog.Func("main")
	if len(main.Blocks) != 3 {
		t.Fatalf("main:\n%s", ast.BlockTree(main))
	}
	loop := main.Blocks[1]
	if !loop.For || loop.Iterator != "i" || loop.Iterable.String() != "range(3)" {
		t.Errorf("for block = %+v", loop)
	}
	if loop.Condition != nil {
		t.Errorf("for block has condition %v", loop.Condition)
	}
}

func TestBuildCommentInString(t *testing.T) {
	prog := mustBuild(t, "def main():\n\ts = \"a#b\" # note\n")
	stmt := prog.Func("main").Blocks[0].Statements[0]
	if stmt.String() != `(s="a#b")` {
		t.Errorf("statement = %s", stmt)
	}
}

func TestBuildSignatureWithoutParens(t *testing.T) {
	prog := mustBuild(t, "def main:\n\tx = 1\n")
	if prog.Func("main") == nil {
		t.Fatal("main not defined")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		msg  string
	}{
		{"top level statement", "x = 1\n", 1, "illegal statement"},
		{"top level if", "if x:\n\ty = 1\n", 1, "not allowed at top level"},
		{"no body", "def main():\n", 1, "illegal statement"},
		{"bad signature", "def main(:\n\tx = 1\n", 1, "malformed function signature"},
		{"duplicate", "def f():\n\tx = 1\ndef f():\n\tx = 2\n", 3, "defined twice"},
		{"indentation", "def main():\n\tx = 1\n\t\ty = 2\n", 3, "wrong indentation"},
		{"unknown keyword", "def main():\n\tloop x:\n\t\ty = 1\n", 2, "unknown block keyword"},
		{"elif without if", "def main():\n\telif x:\n\t\ty = 1\n", 2, "elif without matching if"},
		{"else without if", "def main():\n\tx = 1\n\telse:\n\t\ty = 1\n", 3, "else without matching if"},
		{"for without in", "def main():\n\tfor x range(3):\n\t\ty = 1\n", 2, "invalid for loop"},
		{"bad iterator", "def main():\n\tfor 1x in range(3):\n\t\ty = 1\n", 2, "invalid iterator variable"},
		{"uint array", "def main():\n\tlocal x:uint[4]\n", 2, "uint arrays are not supported"},
		{"byte without size", "def main():\n\tlocal b:byte\n", 2, "[size] expected"},
		{"unknown local kind", "def main():\n\tlocal c:word\n", 2, ":uint or :byte[size] expected"},
		{"bad expression", "def main():\n\tx = (1+2\n", 2, "mismatched brackets"},
		{"empty block", "def main():\n\tif x:\n\ty = 1\n", 2, "if block has no body"},
		{"nested def", "def main():\n\tdef inner():\n\t\tx = 1\n", 2, "nested function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.src)
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("Build error = %v, want SyntaxError", err)
			}
			if se.Line != tt.line {
				t.Errorf("error line = %d, want %d (%v)", se.Line, tt.line, se)
			}
			if !strings.Contains(se.Msg, tt.msg) {
				t.Errorf("error = %q, want it to contain %q", se.Msg, tt.msg)
			}
		})
	}
}

func TestBuildNestingLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("def main():\n")
	for i := 1; i <= 6; i++ {
		sb.WriteString(strings.Repeat("\t", i) + "if x:\n")
	}
	sb.WriteString(strings.Repeat("\t", 7) + "y = 1\n")

	p := &Parser{MaxDepth: 4}
	if _, err := p.Build(sb.String()); err == nil {
		t.Error("expected nesting limit error")
	}
	if _, err := Build(sb.String()); err != nil {
		t.Errorf("default limits rejected nesting: %v", err)
	}
}
