package interp

import (
	"errors"
	"math"
	"testing"

	"github.com/alecthomas/repr"

	"github.com/hce/govm/pkg/ast"
	"github.com/hce/govm/pkg/parser"
)

func evalString(t *testing.T, src string, locals Locals, host Host) (interface{}, error) {
	t.Helper()
	n, err := parser.ParseExpr(src)
	if err != nil {
		t.Fatalf("ParseExpr(%q) error: %v", src, err)
	}
	if locals == nil {
		locals = Locals{}
	}
	if host == nil {
		host = NewRegistry()
	}
	return Eval(n, locals, host)
}

func runScript(t *testing.T, src, fn string, args ...interface{}) (interface{}, error) {
	t.Helper()
	prog, err := parser.Build(src)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return New(prog, nil).Run(fn, args...)
}

func TestEvalOperators(t *testing.T) {
	tests := []struct {
		src  string
		want interface{}
	}{
		{"2*3+4", int32(14)},
		{"1+2*3", int32(7)},
		{"1+2", int32(3)},
		{`"a"+"b"`, "ab"},
		{"10-4", int32(6)},
		{"10/3", int32(3)},
		{"7L+1L", int64(8)},
		{"1.5*2.0", float64(3)},
		{"2^3", float64(8)},
		{"1 << 4", int32(16)},
		{"-8 >> 1", int32(-4)},
		{"6 & 3", int32(2)},
		{"6 | 3", int32(7)},
		{"3 < 4", true},
		{"3 > 4", false},
		{"2 <= 2", true},
		{"2 >= 3", false},
		{`"a" < "b"`, true},
		{"1 == 1", true},
		{`"x" != "x"`, false},
		{"1 == 1L", false},
		{"null == null", true},
		{"true && false", false},
		{"false || true", true},
	}
	for _, tt := range tests {
		got, err := evalString(t, tt.src, nil, nil)
		if err != nil {
			t.Errorf("Eval(%q) error: %v", tt.src, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Eval(%q) = %#v, want %#v", tt.src, got, tt.want)
		}
	}
}

func TestEvalOperatorErrors(t *testing.T) {
	tests := []struct {
		src  string
		kind ErrorKind
	}{
		{"1 + 2L", KindCast},
		{`"a" + 1`, KindCast},
		{`"a" - "b"`, KindCast},
		{`1 < "a"`, KindCast},
		{"1.5 < 2", KindCast},
		{"1 && true", KindCast},
		{"true && 1", KindCast},
		{"1.5 & 1", KindCast},
		{"1/0", KindOther},
		{"1L/0L", KindOther},
		{"1 : 2", KindOther},
		{"nofunc()", KindNotFound},
		{`"abc".nomethod()`, KindNotFound},
	}
	for _, tt := range tests {
		_, err := evalString(t, tt.src, nil, nil)
		var re *RuntimeError
		if !errors.As(err, &re) {
			t.Errorf("Eval(%q) error = %v, want RuntimeError", tt.src, err)
			continue
		}
		if re.Kind != tt.kind {
			t.Errorf("Eval(%q) kind = %v, want %v (%v)", tt.src, re.Kind, tt.kind, re)
		}
	}
}

func TestEvalFloatDivision(t *testing.T) {
	got, err := evalString(t, "1.0/0.0", nil, nil)
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if f, ok := got.(float64); !ok || f <= 0 {
		t.Errorf("1.0/0.0 = %v, want +Inf", got)
	}
}

func TestEvalShortCircuit(t *testing.T) {
	for _, src := range []string{"false && boom()", "true || boom()"} {
		if _, err := evalString(t, src, nil, nil); err != nil {
			t.Errorf("Eval(%q) evaluated its right side: %v", src, err)
		}
	}
}

func TestAssignWritesLocalsOnly(t *testing.T) {
	reg := NewRegistry()
	locals := Locals{}
	got, err := evalString(t, "x = 5", locals, reg)
	if err != nil || got != nil {
		t.Fatalf("Eval(x = 5) = %v, %v; want nil, nil", got, err)
	}
	if locals["x"] != int32(5) {
		t.Errorf("locals[x] = %#v, want 5", locals["x"])
	}
	if _, ok := reg.Resolve(Locals{}, "x"); ok {
		t.Error("assignment leaked into host variables")
	}
}

func TestUnknownVariableIsNull(t *testing.T) {
	got, err := evalString(t, "isnull(missing)", nil, nil)
	if err != nil || got != true {
		t.Errorf("isnull(missing) = %v, %v; want true", got, err)
	}
}

func TestEvalForRange(t *testing.T) {
	got, err := runScript(t, "def main():\n\tsum = 0\n\tfor i in range(3):\n\t\tsum = sum + i\n\treturn sum\n", "main")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got != int32(3) {
		t.Errorf("sum = %#v, want 3", got)
	}
}

func TestEvalForCollections(t *testing.T) {
	src := `def main():
	out = ""
	for k in dict("a", 1, "b", 2):
		out = out + k
	for s in list("c", "d"):
		out = out + s
	for n in null:
		out = out + "never"
	return out
`
	got, err := runScript(t, src, "main")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got != "abcd" {
		t.Errorf("main() = %#v, want abcd", got)
	}
}

func TestEvalForReturnsEarly(t *testing.T) {
	src := "def main():\n\tfor i in range(10):\n\t\tif i == 4:\n\t\t\treturn i\n\treturn -1\n"
	got, err := runScript(t, src, "main")
	if err != nil || got != int32(4) {
		t.Errorf("main() = %v, %v; want 4", got, err)
	}
}

func TestEvalWhile(t *testing.T) {
	src := "def main():\n\ti = 0\n\twhile i < 5:\n\t\ti = i + 1\n\treturn i\n"
	got, err := runScript(t, src, "main")
	if err != nil || got != int32(5) {
		t.Errorf("main() = %v, %v; want 5", got, err)
	}
}

const pickScript = `def pick(n):
	if n == 1:
		return "one"
	elif n == 2:
		return "two"
	elif n == 3:
		return "three"
	else:
		return "many"
`

func TestEvalElifElse(t *testing.T) {
	tests := []struct {
		n    int32
		want string
	}{
		{1, "one"},
		{2, "two"},
		{3, "three"},
		{9, "many"},
	}
	for _, tt := range tests {
		got, err := runScript(t, pickScript, "pick", tt.n)
		if err != nil {
			t.Fatalf("pick(%d) error: %v", tt.n, err)
		}
		if got != tt.want {
			t.Errorf("pick(%d) = %v, want %s", tt.n, got, tt.want)
		}
	}
}

func TestEvalElifDoesNotCatchErrors(t *testing.T) {
	src := "def main():\n\tif 1/0 == 0:\n\t\treturn 0\n\telse:\n\t\treturn 1\n"
	if _, err := runScript(t, src, "main"); err == nil {
		t.Error("division by zero was swallowed by the else branch")
	}
}

func TestEvalNonBoolCondition(t *testing.T) {
	src := "def main():\n\tif 1:\n\t\treturn \"taken\"\n\treturn \"skipped\"\n"
	got, err := runScript(t, src, "main")
	if err != nil || got != "skipped" {
		t.Errorf("main() = %v, %v; want skipped", got, err)
	}
}

func TestEvaluateOutcome(t *testing.T) {
	prog, err := parser.Build("def main():\n\treturn\n")
	if err != nil {
		t.Fatal(err)
	}
	out, err := Evaluate(prog.Func("main"), Locals{}, NewRegistry())
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if !out.Executed || !out.Returned || out.Value != nil {
		t.Errorf("Evaluate = %+v, want executed return of null", out)
	}

	loop := &ast.Block{Label: "L1", For: true, Iterator: "i", Iterable: ast.NewInt(3)}
	out, err = Evaluate(loop, Locals{}, NewRegistry())
	if err != nil || out.Executed {
		t.Errorf("for over int = %+v, %v; want not executed", out, err)
	}

	if _, err := Evaluate(prog.Func("main"), nil, NewRegistry()); err == nil {
		t.Error("nil locals accepted")
	}
}

func TestSavedTreeEvaluatesIdentically(t *testing.T) {
	prog, err := parser.Build(pickScript)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := ast.LoadProgram(ast.SaveProgram(prog))
	if err != nil {
		t.Fatalf("LoadProgram error: %v", err)
	}
	for _, n := range []int32{1, 2, 3, 4} {
		a, errA := New(prog, nil).Run("pick", n)
		b, errB := New(loaded, nil).Run("pick", n)
		if a != b || (errA == nil) != (errB == nil) {
			t.Errorf("pick(%d): original %v/%v, reloaded %v/%v\n%s", n, a, errA, b, errB, repr.String(loaded.Func("pick")))
		}
	}

	expr, _ := parser.ParseExpr(`"x" + "y" + "z"`)
	again, err := ast.Load(ast.Save(expr))
	if err != nil {
		t.Fatal(err)
	}
	v1, _ := Eval(expr, Locals{}, NewRegistry())
	v2, _ := Eval(again, Locals{}, NewRegistry())
	if v1 != v2 || v1 != "xyz" {
		t.Errorf("reloaded expression = %v, original %v", v2, v1)
	}
}

func TestFloatComparisonWithNaN(t *testing.T) {
	nan := math.NaN()
	for _, op := range []ast.Operator{ast.OpLT, ast.OpGT, ast.OpLE, ast.OpGE} {
		for _, pair := range [][2]float64{{nan, 1}, {1, nan}, {nan, nan}} {
			got, err := Binary(op, pair[0], pair[1])
			if err != nil {
				t.Fatalf("Binary(%s, %v, %v) error: %v", op, pair[0], pair[1], err)
			}
			if got != false {
				t.Errorf("Binary(%s, %v, %v) = %v, want false", op, pair[0], pair[1], got)
			}
		}
	}

	tests := []struct {
		op   ast.Operator
		l, r float64
		want bool
	}{
		{ast.OpLT, 1.5, 2.5, true},
		{ast.OpLE, 2.5, 2.5, true},
		{ast.OpGE, 2.5, 2.5, true},
		{ast.OpGT, 1.5, 2.5, false},
	}
	for _, tt := range tests {
		if got, err := Binary(tt.op, tt.l, tt.r); err != nil || got != tt.want {
			t.Errorf("Binary(%s, %v, %v) = %v, %v; want %v", tt.op, tt.l, tt.r, got, err, tt.want)
		}
	}
}
