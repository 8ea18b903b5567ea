// Package compiler runs one compile job: script source in, GoVM module and
// diagnostic log out.
package compiler

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tliron/commonlog"

	"github.com/hce/govm/pkg/bytecode"
	"github.com/hce/govm/pkg/parser"
)

var log = commonlog.GetLogger("govm.compiler")

// Options configure a compile job.
type Options struct {
	Globals   []bytecode.Global
	Obfuscate bool
	Seed      int64
	// MaxDepth bounds parser nesting. Zero uses the parser default.
	MaxDepth int
}

// Result is the outcome of a job. Artifact is nil when Err is set; Log is
// never empty.
type Result struct {
	Artifact []byte
	Log      []byte
	Err      error
}

// OK reports whether the job produced an artifact.
func (r *Result) OK() bool { return r.Err == nil && r.Artifact != nil }

// Compile parses and compiles source. Every job starts from fresh state;
// nothing is shared between calls.
func Compile(source []byte, opts Options) (res *Result) {
	var diag bytes.Buffer
	res = &Result{}

	defer func() {
		if r := recover(); r != nil {
			res.Artifact = nil
			res.Err = fmt.Errorf("internal compiler failure: %v", r)
			fmt.Fprintf(&diag, "ERROR: %v\n", res.Err)
		}
		res.Log = diag.Bytes()
		for _, line := range strings.Split(strings.TrimSpace(diag.String()), "\n") {
			log.Debugf("%s", line)
		}
	}()

	fmt.Fprintf(&diag, "compiling %d bytes of source\n", len(source))
	if !utf8.Valid(source) {
		res.Err = errors.New("source is not valid UTF-8")
		fmt.Fprintf(&diag, "ERROR: %v\n", res.Err)
		return res
	}

	p := parser.New()
	if opts.MaxDepth > 0 {
		p.MaxDepth = opts.MaxDepth
	}
	prog, err := p.Build(string(source))
	if err != nil {
		res.Err = err
		fmt.Fprintf(&diag, "ERROR: %v\n", err)
		return res
	}
	fmt.Fprintf(&diag, "parsed %d functions: %s\n", prog.Len(), strings.Join(prog.Names(), ", "))

	artifact, err := bytecode.Compile(prog, bytecode.Options{
		Globals:   opts.Globals,
		Obfuscate: opts.Obfuscate,
		Seed:      opts.Seed,
		Log:       &diag,
	})
	if err != nil {
		res.Err = err
		fmt.Fprintf(&diag, "ERROR: %v\n", err)
		return res
	}
	res.Artifact = artifact
	fmt.Fprintln(&diag, "OK")
	return res
}

// Key returns a digest identifying the output of compiling source with
// opts. Jobs with equal keys produce identical artifacts.
func Key(source []byte, opts Options) [32]byte {
	h := sha256.New()
	var word [8]byte
	binary.BigEndian.PutUint64(word[:], uint64(len(source)))
	h.Write(word[:])
	h.Write(source)
	if opts.Obfuscate {
		h.Write([]byte{1})
		binary.BigEndian.PutUint64(word[:], uint64(opts.Seed))
		h.Write(word[:])
	} else {
		h.Write([]byte{0})
	}
	binary.BigEndian.PutUint64(word[:], uint64(opts.MaxDepth))
	h.Write(word[:])
	for _, g := range opts.Globals {
		fmt.Fprintf(h, "%s=%d;", g.Name, g.Value)
	}
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}
