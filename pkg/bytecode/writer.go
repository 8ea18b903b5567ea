package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
)

// placeholder is written where a jump target will be patched in.
const placeholder = 0xFFFF

type jumpSource struct {
	pos   int
	label string
}

// Writer assembles a GoVM module. Code is collected one nibble per byte;
// Assemble packs the stream and fills in the header.
//
// Instruction pointers (IP) are nibble offsets from the end of the header.
type Writer struct {
	nibbles []byte
	jumps   []jumpSource
	labels  map[string]int
	listing strings.Builder
	log     io.Writer
}

// NewWriter returns a writer with the module header already emitted.
// Diagnostics go to log, which may be nil.
func NewWriter(log io.Writer) *Writer {
	if log == nil {
		log = io.Discard
	}
	w := &Writer{
		nibbles: make([]byte, 0, 256),
		labels:  make(map[string]int),
		log:     log,
	}
	w.writeHeader()
	return w
}

func (w *Writer) writeHeader() {
	for _, b := range Magic {
		w.writeByte(b)
	}
	w.writeByte(FlagBigEndian)
	w.writeShort(512)
	w.writeShort(12)
	w.writeShort(23)
	w.writeShort(0)
	w.writeShort(0)
	fmt.Fprintf(w.log, "header: %d bytes\n", len(w.nibbles)/2)
}

// IP returns the current instruction pointer.
func (w *Writer) IP() int { return len(w.nibbles) - 2*HeaderLen }

// WriteNibble appends one nibble.
func (w *Writer) WriteNibble(n byte) {
	if n > 0x0F {
		panic(fmt.Sprintf("bytecode: nibble 0x%X out of range", n))
	}
	w.nibbles = append(w.nibbles, n)
}

func (w *Writer) writeByte(b byte) {
	w.nibbles = append(w.nibbles, b>>4, b&0x0F)
}

func (w *Writer) writeShort(v uint16) {
	w.writeByte(byte(v >> 8))
	w.writeByte(byte(v))
}

// WriteOpcode appends an instruction without operands.
func (w *Writer) WriteOpcode(op Opcode) {
	if w.listing.Len() > 0 {
		w.listing.WriteByte('\n')
	}
	fmt.Fprintf(&w.listing, "%04X  %s", w.IP(), op)
	w.nibbles = append(w.nibbles, op.Nibbles()...)
}

// WriteShort appends a 16-bit big-endian operand.
func (w *Writer) WriteShort(v uint16) {
	fmt.Fprintf(&w.listing, " %d", v)
	w.writeShort(v)
}

// LoadImmediate is LI followed by v.
func (w *Writer) LoadImmediate(v uint16) {
	w.WriteOpcode(OpLI)
	w.WriteShort(v)
}

// MarkJumpSource records that the next short is the address of label and
// writes a placeholder for it.
func (w *Writer) MarkJumpSource(label string) {
	w.jumps = append(w.jumps, jumpSource{pos: len(w.nibbles), label: label})
	fmt.Fprintf(&w.listing, " <%s>", label)
	w.writeShort(placeholder)
}

// SetGoto emits a jump-like instruction to label: LI <label>, op, and a
// POP after JZ to drop the tested value on fall-through.
func (w *Writer) SetGoto(label string, op Opcode) {
	w.WriteOpcode(OpLI)
	w.MarkJumpSource(label)
	w.WriteOpcode(op)
	if op == OpJz {
		w.WriteOpcode(OpPop)
	}
}

// SetLabel binds label to the current IP.
func (w *Writer) SetLabel(label string) {
	w.labels[label] = w.IP()
	fmt.Fprintf(w.log, "label %s at IP %d\n", label, w.IP())
}

// Label returns the IP bound to label.
func (w *Writer) Label(label string) (int, bool) {
	ip, ok := w.labels[label]
	return ip, ok
}

// Annotate adds a comment line to the listing.
func (w *Writer) Annotate(text string) {
	if w.listing.Len() > 0 {
		w.listing.WriteByte('\n')
	}
	w.listing.WriteString("; " + text)
}

// Listing returns the annotated instruction listing written so far.
func (w *Writer) Listing() string { return w.listing.String() }

// Resolve patches every jump placeholder with its label's IP.
func (w *Writer) Resolve() error {
	for _, j := range w.jumps {
		ip, ok := w.labels[j.label]
		if !ok {
			return compileErrorf("label %s not defined", j.label)
		}
		if ip > 0xFFFF {
			return compileErrorf("label %s at IP %d is out of range", j.label, ip)
		}
		v := uint16(ip)
		w.nibbles[j.pos] = byte(v>>12) & 0x0F
		w.nibbles[j.pos+1] = byte(v>>8) & 0x0F
		w.nibbles[j.pos+2] = byte(v>>4) & 0x0F
		w.nibbles[j.pos+3] = byte(v) & 0x0F
	}
	w.jumps = nil
	return nil
}

// Assemble resolves labels, packs the nibble stream into bytes, fills the
// header length fields and appends data. The writer should not be used
// afterwards.
func (w *Writer) Assemble(data []byte) ([]byte, error) {
	if err := w.Resolve(); err != nil {
		return nil, err
	}
	codeLen := (len(w.nibbles) - 2*HeaderLen + 1) / 2
	if codeLen > 0xFFFF {
		return nil, compileErrorf("code segment of %d bytes exceeds 65535", codeLen)
	}
	if len(data) > 0xFFFF {
		return nil, compileErrorf("data segment of %d bytes exceeds 65535", len(data))
	}

	packed := make([]byte, (len(w.nibbles)+1)/2, (len(w.nibbles)+1)/2+len(data))
	for i, n := range w.nibbles {
		if i%2 == 0 {
			packed[i/2] = n << 4
		} else {
			packed[i/2] |= n
		}
	}
	binary.BigEndian.PutUint16(packed[5:], uint16(codeLen))
	binary.BigEndian.PutUint16(packed[7:], uint16(len(data)))
	binary.BigEndian.PutUint16(packed[9:], uint16(len(data)))

	fmt.Fprintf(w.log, "code segment: %d bytes\n", codeLen)
	fmt.Fprintf(w.log, "data segment: %d bytes\n", len(data))
	fmt.Fprintln(w.log, w.listing.String())
	return append(packed, data...), nil
}

// Labels returns the bound labels sorted by IP, for listings.
func (w *Writer) Labels() []string {
	names := make([]string, 0, len(w.labels))
	for n := range w.labels {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := w.labels[names[i]], w.labels[names[j]]
		if a != b {
			return a < b
		}
		return names[i] < names[j]
	})
	return names
}
