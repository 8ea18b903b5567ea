package compiler

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/hce/govm/pkg/bytecode"
	"github.com/hce/govm/pkg/parser"
)

const hello = `def main():
	putc("hello")
	halt()
`

func TestCompileSuccess(t *testing.T) {
	res := Compile([]byte(hello), Options{})
	if !res.OK() {
		t.Fatalf("Compile failed: %v\n%s", res.Err, res.Log)
	}
	if _, err := bytecode.ParseModule(res.Artifact); err != nil {
		t.Errorf("artifact does not parse: %v", err)
	}
	for _, want := range []string{"compiling", "parsed 1 functions: main", "label __FUNCTION__main", "OK"} {
		if !strings.Contains(string(res.Log), want) {
			t.Errorf("log missing %q:\n%s", want, res.Log)
		}
	}
}

func TestCompileFailures(t *testing.T) {
	tests := []struct {
		name   string
		source string
		check  func(error) bool
	}{
		{"syntax", "x = 1\n", func(err error) bool {
			var se *parser.SyntaxError
			return errors.As(err, &se)
		}},
		{"compile", "def main():\n\tx = 1\n", func(err error) bool {
			var ce *bytecode.CompileError
			return errors.As(err, &ce)
		}},
		{"utf8", "def main():\n\tputc(\"\xff\")\n", func(err error) bool {
			return strings.Contains(err.Error(), "UTF-8")
		}},
	}
	for _, tt := range tests {
		res := Compile([]byte(tt.source), Options{})
		if res.OK() || res.Artifact != nil {
			t.Errorf("%s: Compile succeeded", tt.name)
			continue
		}
		if !tt.check(res.Err) {
			t.Errorf("%s: unexpected error %v", tt.name, res.Err)
		}
		if !bytes.Contains(res.Log, []byte("ERROR: ")) {
			t.Errorf("%s: log has no error line:\n%s", tt.name, res.Log)
		}
	}
}

func TestCompileFreshState(t *testing.T) {
	a := Compile([]byte(hello), Options{})
	b := Compile([]byte(hello), Options{})
	if !bytes.Equal(a.Artifact, b.Artifact) {
		t.Error("repeated jobs produced different artifacts")
	}
}

func TestCompileGlobals(t *testing.T) {
	src := "def main():\n\tlimit = limit + 1\n"
	if res := Compile([]byte(src), Options{}); res.OK() {
		t.Fatal("undeclared global compiled")
	}
	res := Compile([]byte(src), Options{Globals: []bytecode.Global{{Name: "limit", Value: 9}}})
	if !res.OK() {
		t.Fatalf("Compile failed: %v", res.Err)
	}
}

func TestKey(t *testing.T) {
	src := []byte(hello)
	base := Key(src, Options{})
	if base != Key(src, Options{}) {
		t.Error("Key is not stable")
	}
	variants := []Options{
		{Obfuscate: true, Seed: 1},
		{Obfuscate: true, Seed: 2},
		{MaxDepth: 10},
		{Globals: []bytecode.Global{{Name: "g", Value: 1}}},
	}
	seen := map[[32]byte]bool{base: true}
	for _, o := range variants {
		k := Key(src, o)
		if seen[k] {
			t.Errorf("Key(%+v) collides", o)
		}
		seen[k] = true
	}
	if Key([]byte("other"), Options{}) == base {
		t.Error("different sources share a key")
	}
}
