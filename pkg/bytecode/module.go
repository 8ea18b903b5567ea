package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderLen is the size of the module header in bytes.
const HeaderLen = 15

// FlagBigEndian is the only flags value the VM understands.
const FlagBigEndian byte = 0x11

// Magic opens every module.
var Magic = []byte{'G', 'O', 'V', 'M'}

// Header is the fixed module preamble.
//
//	0-3   "GOVM"
//	4     flags (0x11, big endian)
//	5-6   code segment length
//	7-8   data segment length
//	9-10  data segment length (copy)
//	11-12 reserved
//	13-14 entry point
type Header struct {
	Flags       byte
	CodeLen     uint16
	DataLen     uint16
	DataLenCopy uint16
	Reserved    uint16
	Entry       uint16
}

// ReadHeader decodes and checks the header at the start of b.
func ReadHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("module too short: %d bytes, header needs %d", len(b), HeaderLen)
	}
	if !bytes.Equal(b[:4], Magic) {
		return Header{}, fmt.Errorf("bad module magic %q", b[:4])
	}
	h := Header{
		Flags:       b[4],
		CodeLen:     binary.BigEndian.Uint16(b[5:]),
		DataLen:     binary.BigEndian.Uint16(b[7:]),
		DataLenCopy: binary.BigEndian.Uint16(b[9:]),
		Reserved:    binary.BigEndian.Uint16(b[11:]),
		Entry:       binary.BigEndian.Uint16(b[13:]),
	}
	if h.Flags != FlagBigEndian {
		return h, fmt.Errorf("unsupported module flags 0x%02X", h.Flags)
	}
	if h.DataLen != h.DataLenCopy {
		return h, fmt.Errorf("data length fields disagree: %d vs %d", h.DataLen, h.DataLenCopy)
	}
	return h, nil
}

// Module is a parsed artifact.
type Module struct {
	Header Header
	Code   []byte
	Data   []byte
}

// ParseModule splits an artifact into its segments, checking that the
// header lengths match what follows.
func ParseModule(b []byte) (*Module, error) {
	h, err := ReadHeader(b)
	if err != nil {
		return nil, err
	}
	want := HeaderLen + int(h.CodeLen) + int(h.DataLen)
	if len(b) != want {
		return nil, fmt.Errorf("module is %d bytes, header describes %d", len(b), want)
	}
	code := b[HeaderLen : HeaderLen+int(h.CodeLen)]
	return &Module{Header: h, Code: code, Data: b[HeaderLen+int(h.CodeLen):]}, nil
}

// Nibbles expands the code segment into one nibble per byte.
func (m *Module) Nibbles() []byte {
	out := make([]byte, 0, 2*len(m.Code))
	for _, b := range m.Code {
		out = append(out, b>>4, b&0x0F)
	}
	return out
}

// StringAt extracts the NUL-terminated string at a data segment offset.
func (m *Module) StringAt(offset int) (string, bool) {
	if offset < 0 || offset >= len(m.Data) {
		return "", false
	}
	end := bytes.IndexByte(m.Data[offset:], 0)
	if end < 0 {
		return "", false
	}
	return string(m.Data[offset : offset+end]), true
}
