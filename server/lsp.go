package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/hce/govm/pkg/ast"
	"github.com/hce/govm/pkg/bytecode"
	"github.com/hce/govm/pkg/interp"
	"github.com/hce/govm/pkg/parser"
)

const lspName = "govm-lsp"

var keywords = []string{"def", "if", "elif", "else", "while", "for", "in", "return", "local"}

// LspServer provides diagnostics, completion, hover and go-to-definition
// for scripts. Analysis runs on a worker pool.
type LspServer struct {
	pool *Pool

	mu   sync.Mutex
	docs map[string]string // URI -> full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a language server.
func NewLSP() *LspServer {
	s := &LspServer{
		pool:    NewPool(1),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)
	return s
}

// Run starts the server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "GoVM LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.pool.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// analyze runs fn on the pool with a short deadline.
func (s *LspServer) analyze(fn func() interface{}) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.pool.Do(ctx, fn)
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	prefix, method := extractPrefix(text, params.Position)
	if prefix == "" && !method {
		return nil, nil
	}
	return s.analyze(func() interface{} {
		return complete(text, prefix, method)
	})
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	result, err := s.analyze(func() interface{} {
		return hover(text, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	loc := definition(uri, text, word)
	if loc == nil {
		return nil, nil
	}
	return []protocol.Location{*loc}, nil
}

// --- Analysis (called on the pool) ---

type symbol struct {
	name   string
	detail string
	doc    string
	kind   protocol.CompletionItemKind
}

// symbols lists everything completion and hover know about: keywords,
// builtins, bytecode intrinsics and the document's own functions.
func symbols(text string) []symbol {
	var out []symbol
	for _, k := range keywords {
		out = append(out, symbol{k, "keyword", "", protocol.CompletionItemKindKeyword})
	}
	for _, b := range interp.BuiltinNames() {
		out = append(out, symbol{b, "builtin", "Interpreter builtin `" + b + "`.", protocol.CompletionItemKindFunction})
	}
	intrinsics := bytecode.Intrinsics()
	sort.Strings(intrinsics)
	for _, n := range intrinsics {
		out = append(out, symbol{n, "intrinsic", "Compiled inline by the GoVM backend.", protocol.CompletionItemKindFunction})
	}
	return append(out, functions(text)...)
}

// functions returns the script's own function definitions.
func functions(text string) []symbol {
	var out []symbol
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimRight(l, " \r")
		if !strings.HasPrefix(l, "def ") {
			continue
		}
		sig := strings.TrimSuffix(strings.TrimSpace(l[len("def "):]), ":")
		name := sig
		if i := strings.IndexByte(sig, '('); i >= 0 {
			name = strings.TrimSpace(sig[:i])
		}
		if name == "" {
			continue
		}
		out = append(out, symbol{name, "def " + sig, "", protocol.CompletionItemKindFunction})
	}
	return out
}

func complete(text, prefix string, method bool) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)

	add := func(name, detail string, kind protocol.CompletionItemKind) {
		if !strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			return
		}
		nameCopy, detailCopy := name, detail
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detailCopy,
			InsertText: &nameCopy,
		})
	}

	if method {
		for _, m := range interp.StringMethods() {
			add(m, "string method", protocol.CompletionItemKindMethod)
		}
	} else {
		for _, sym := range symbols(text) {
			add(sym.name, sym.detail, sym.kind)
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func hover(text, word string) *protocol.Hover {
	for _, sym := range symbols(text) {
		if sym.name != word {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "**%s** (%s)", sym.name, sym.detail)
		if sym.doc != "" {
			b.WriteString("\n\n---\n\n")
			b.WriteString(sym.doc)
		}
		return &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.MarkupKindMarkdown,
				Value: b.String(),
			},
		}
	}
	return nil
}

func definition(uri protocol.DocumentUri, text, word string) *protocol.Location {
	for i, l := range strings.Split(text, "\n") {
		if !strings.HasPrefix(l, "def ") {
			continue
		}
		rest := strings.TrimSpace(l[len("def "):])
		if !strings.HasPrefix(rest, word) {
			continue
		}
		after := strings.TrimSpace(rest[len(word):])
		if after != "" && after[0] != '(' && after[0] != ':' {
			continue
		}
		col := protocol.UInteger(strings.Index(l, word))
		return &protocol.Location{
			URI: uri,
			Range: protocol.Range{
				Start: protocol.Position{Line: protocol.UInteger(i), Character: col},
				End:   protocol.Position{Line: protocol.UInteger(i), Character: col + protocol.UInteger(len(word))},
			},
		}
	}
	return nil
}

// --- Diagnostics ---

// diagnose parses text and, when it parses, tries the bytecode backend.
// Syntax errors are errors; backend rejections are warnings, since a
// script may be meant for the interpreter only.
func diagnose(text string) []protocol.Diagnostic {
	source := lspName
	prog, err := parser.Build(text)
	if err != nil {
		line := 0
		var se *parser.SyntaxError
		if errors.As(err, &se) && se.Line > 0 {
			line = se.Line - 1
		}
		severity := protocol.DiagnosticSeverityError
		return []protocol.Diagnostic{{
			Range:    lineRange(text, line),
			Severity: &severity,
			Source:   &source,
			Message:  err.Error(),
		}}
	}

	if prog.Func(bytecode.EntryPoint) == nil {
		return nil
	}
	if _, err := bytecode.Compile(prog, bytecode.Options{}); err != nil {
		severity := protocol.DiagnosticSeverityWarning
		return []protocol.Diagnostic{{
			Range:    lineRange(text, functionLine(text, prog, err)),
			Severity: &severity,
			Source:   &source,
			Message:  err.Error(),
		}}
	}
	return nil
}

// functionLine finds the def line of the function named in a backend
// error, or 0.
func functionLine(text string, prog *ast.Program, err error) int {
	msg := err.Error()
	for _, name := range prog.Names() {
		if strings.HasPrefix(msg, name+": ") {
			for i, l := range strings.Split(text, "\n") {
				if strings.HasPrefix(l, "def "+name) {
					return i
				}
			}
		}
	}
	return 0
}

func lineRange(text string, line int) protocol.Range {
	lines := strings.Split(text, "\n")
	end := 0
	if line < len(lines) {
		end = len(lines[line])
	}
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(line), Character: 0},
		End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(end)},
	}
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.analyze(func() interface{} {
		return diagnose(text)
	})
	if err != nil {
		log.Warningf("diagnostics for %s: %v", uri, err)
		return
	}
	diagnostics := result.([]protocol.Diagnostic)
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// --- Text extraction helpers ---

// extractPrefix returns the identifier fragment before the cursor and
// whether it follows a '.', in which case a method name is being typed.
func extractPrefix(text string, pos protocol.Position) (string, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	method := start > 0 && line[start-1] == '.'
	return line[start:col], method
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentChar(rune(line[end])) {
		end++
	}
	if start == end {
		return ""
	}
	return line[start:end]
}

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

func boolPtr(b bool) *bool {
	return &b
}
