package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ---------------------------------------------------------------------------
// Text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		pos    protocol.Position
		want   string
		method bool
	}{
		{"simple word", "x = ran", protocol.Position{Line: 0, Character: 7}, "ran", false},
		{"at start", "pri", protocol.Position{Line: 0, Character: 3}, "pri", false},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, "", false},
		{"multi line", "def main():\n\tpu", protocol.Position{Line: 1, Character: 3}, "pu", false},
		{"after dot", "s.sub", protocol.Position{Line: 0, Character: 5}, "sub", true},
		{"bare dot", "s.", protocol.Position{Line: 0, Character: 2}, "", true},
		{"cursor at beginning", "hello", protocol.Position{Line: 0, Character: 0}, "", false},
		{"beyond document", "single line", protocol.Position{Line: 5, Character: 0}, "", false},
	}
	for _, tt := range tests {
		got, method := extractPrefix(tt.text, tt.pos)
		if got != tt.want || method != tt.method {
			t.Errorf("%s: extractPrefix = %q, %v; want %q, %v", tt.name, got, method, tt.want, tt.method)
		}
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"hello world", protocol.Position{Line: 0, Character: 3}, "hello"},
		{"hello world", protocol.Position{Line: 0, Character: 5}, "hello"},
		{"hello world", protocol.Position{Line: 0, Character: 8}, "world"},
		{"x = add(a, b)", protocol.Position{Line: 0, Character: 6}, "add"},
		{"a  b", protocol.Position{Line: 0, Character: 2}, ""},
		{"one", protocol.Position{Line: 3, Character: 0}, ""},
	}
	for _, tt := range tests {
		if got := extractWord(tt.text, tt.pos); got != tt.want {
			t.Errorf("extractWord(%q, %v) = %q, want %q", tt.text, tt.pos, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

const lspScript = `def main():
	return add(1, 2)

def add(a:uint, b:uint):
	return a + b
`

func TestDiagnoseClean(t *testing.T) {
	if d := diagnose(lspScript); len(d) != 0 {
		t.Errorf("diagnose = %+v, want none", d)
	}
}

func TestDiagnoseSyntaxError(t *testing.T) {
	d := diagnose("def main():\n\tx = (1\n")
	if len(d) != 1 {
		t.Fatalf("diagnose = %+v, want one diagnostic", d)
	}
	if *d[0].Severity != protocol.DiagnosticSeverityError {
		t.Errorf("severity = %v, want error", *d[0].Severity)
	}
	if d[0].Range.Start.Line != 1 {
		t.Errorf("line = %d, want 1", d[0].Range.Start.Line)
	}
	if !strings.Contains(d[0].Message, "mismatched brackets") {
		t.Errorf("message = %q", d[0].Message)
	}
}

func TestDiagnoseBackendWarning(t *testing.T) {
	src := "def main():\n\thalt()\n\ndef f():\n\tx = 1.5\n"
	d := diagnose(src)
	if len(d) != 1 {
		t.Fatalf("diagnose = %+v, want one diagnostic", d)
	}
	if *d[0].Severity != protocol.DiagnosticSeverityWarning {
		t.Errorf("severity = %v, want warning", *d[0].Severity)
	}
	if d[0].Range.Start.Line != 3 {
		t.Errorf("line = %d, want 3 (def f)", d[0].Range.Start.Line)
	}
}

func TestDiagnoseNoMain(t *testing.T) {
	if d := diagnose("def helper():\n\treturn 1.5\n"); len(d) != 0 {
		t.Errorf("interpreter-only script flagged: %+v", d)
	}
}

func TestComplete(t *testing.T) {
	labels := func(items []protocol.CompletionItem) map[string]bool {
		m := make(map[string]bool)
		for _, it := range items {
			m[it.Label] = true
		}
		return m
	}

	got := labels(complete(lspScript, "ra", false))
	if !got["range"] {
		t.Errorf("completion for ra = %v, want range", got)
	}
	got = labels(complete(lspScript, "ad", false))
	if !got["add"] {
		t.Errorf("completion for ad = %v, want add", got)
	}
	got = labels(complete(lspScript, "PO", false))
	if !got["POKES"] || !got["POP"] {
		t.Errorf("completion for PO = %v, want POKES and POP", got)
	}
	got = labels(complete(lspScript, "to", true))
	if !got["tolowercase"] || !got["touppercase"] {
		t.Errorf("method completion for to = %v", got)
	}
}

func TestHover(t *testing.T) {
	h := hover(lspScript, "add")
	if h == nil {
		t.Fatal("hover(add) = nil")
	}
	content := h.Contents.(protocol.MarkupContent)
	if !strings.Contains(content.Value, "def add(a:uint, b:uint)") {
		t.Errorf("hover = %q", content.Value)
	}
	if h := hover(lspScript, "putc"); h == nil || !strings.Contains(h.Contents.(protocol.MarkupContent).Value, "intrinsic") {
		t.Errorf("hover(putc) = %+v", h)
	}
	if h := hover(lspScript, "nothing"); h != nil {
		t.Errorf("hover(nothing) = %+v, want nil", h)
	}
}

func TestDefinition(t *testing.T) {
	loc := definition("file:///a.adela", lspScript, "add")
	if loc == nil {
		t.Fatal("definition(add) = nil")
	}
	if loc.Range.Start.Line != 3 || loc.Range.Start.Character != 4 || loc.Range.End.Character != 7 {
		t.Errorf("range = %+v", loc.Range)
	}
	if definition("file:///a.adela", lspScript, "ad") != nil {
		t.Error("definition matched a prefix")
	}
}
