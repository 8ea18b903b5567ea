package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxString is the longest string constant, NUL included.
const MaxString = 65530

// Symbols tracks variable addresses for the function being compiled and
// owns the data segment.
//
// Locals are word offsets from the frame pointer: parameters first, then
// two words for the return address, then declared locals. Globals live in
// the data segment; Resolve reports them as negated byte offsets.
type Symbols struct {
	locals   map[string]int
	globals  map[string]int
	curAddr  int
	curStack int
	data     []byte
	log      io.Writer
}

// NewSymbols returns an empty table. Diagnostics go to log, which may be
// nil.
func NewSymbols(log io.Writer) *Symbols {
	if log == nil {
		log = io.Discard
	}
	return &Symbols{
		locals:  make(map[string]int),
		globals: make(map[string]int),
		log:     log,
	}
}

// BeginFunction clears the locals and binds params to offsets 0..n-1,
// followed by the return address slot.
func (s *Symbols) BeginFunction(params []string) {
	s.locals = make(map[string]int)
	s.curAddr, s.curStack = 0, 0
	for _, p := range params {
		s.locals[p] = s.curAddr
		s.curAddr++
		s.curStack++
	}
	s.curAddr += 2
	s.curStack += 2
}

// DeclareWord reserves one word for a local.
func (s *Symbols) DeclareWord(name string) int {
	addr := s.curAddr
	s.locals[name] = addr
	s.curAddr++
	fmt.Fprintf(s.log, "reserved 1 word for %q at %d\n", name, addr)
	return addr
}

// DeclareArray reserves size words for a local array.
func (s *Symbols) DeclareArray(name string, size int) int {
	addr := s.curAddr
	s.locals[name] = addr
	s.curAddr += size
	fmt.Fprintf(s.log, "reserved %d words for %q at %d\n", size, name, addr)
	return addr
}

// StackReserve is the word count the function prologue allocates: one
// more than the declared locals.
func (s *Symbols) StackReserve() int {
	return 1 + s.curAddr - s.curStack
}

// DeclareGlobal reserves an initialized word in the data segment. The first
// global never lands on offset zero, which Resolve could not tell apart
// from local zero.
func (s *Symbols) DeclareGlobal(name string, init uint16) int {
	if off, ok := s.globals[name]; ok {
		return off
	}
	if len(s.data) == 0 {
		s.data = append(s.data, 0, 0)
	}
	off := len(s.data)
	s.data = binary.BigEndian.AppendUint16(s.data, init)
	s.globals[name] = off
	fmt.Fprintf(s.log, "reserved global %q at %d = %d\n", name, off, init)
	return off
}

// Resolve returns a local's offset, or the negated data offset of a
// global. Locals shadow globals.
func (s *Symbols) Resolve(name string) (int, error) {
	if addr, ok := s.locals[name]; ok {
		return addr, nil
	}
	if off, ok := s.globals[name]; ok {
		return -off, nil
	}
	return 0, compileErrorf("variable %s not declared", name)
}

// ReserveString stores s as UTF-8 plus NUL in the data segment and returns
// its offset.
func (s *Symbols) ReserveString(str string) (int, error) {
	size := len(str) + 1
	if size > MaxString {
		return 0, compileErrorf("string constant of %d bytes exceeds %d", size, MaxString)
	}
	off := len(s.data)
	if off+size > 0xFFFF {
		return 0, compileErrorf("data segment full")
	}
	s.data = append(s.data, str...)
	s.data = append(s.data, 0)
	fmt.Fprintf(s.log, "string constant %q (%d bytes) at %d\n", str, size, off)
	return off, nil
}

// Data returns the data segment built so far.
func (s *Symbols) Data() []byte { return s.data }
