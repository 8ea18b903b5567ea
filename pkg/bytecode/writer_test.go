package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func TestOpcodeNibbles(t *testing.T) {
	tests := []struct {
		op   Opcode
		want []byte
	}{
		{OpSyscall, []byte{0}},
		{OpLI, []byte{1}},
		{OpSW, []byte{7}},
		{OpAdd, []byte{8, 1}},
		{OpPop, []byte{12, 1}},
		{OpMovF, []byte{13, 2}},
		{OpSub, []byte{15, 3}},
		{OpXor, []byte{12, 5}},
	}
	for _, tt := range tests {
		if got := tt.op.Nibbles(); !bytes.Equal(got, tt.want) {
			t.Errorf("%s.Nibbles() = %v, want %v", tt.op, got, tt.want)
		}
	}
}

func TestOpcodeNibblesRoundTrip(t *testing.T) {
	for _, op := range AllOpcodes() {
		var nibbles []byte
		nibbles = append(nibbles, op.Nibbles()...)
		for i := 0; i < op.OperandNibbles(); i++ {
			nibbles = append(nibbles, 0)
		}
		instrs, err := Decode(nibbles)
		if err != nil {
			t.Fatalf("Decode(%s) error: %v", op, err)
		}
		if len(instrs) != 1 || instrs[0].Op != op {
			t.Errorf("Decode(%s) = %v", op, instrs)
		}
	}
	if len(AllOpcodes()) != 45 {
		t.Errorf("len(AllOpcodes()) = %d, want 45", len(AllOpcodes()))
	}
}

func TestOpcodeString(t *testing.T) {
	if OpSWS.String() != "SWS" {
		t.Errorf("OpSWS.String() = %q, want SWS", OpSWS.String())
	}
	if Opcode(99).Valid() {
		t.Error("Opcode(99) should not be valid")
	}
	if !strings.HasPrefix(Opcode(99).String(), "UNKNOWN") {
		t.Errorf("Opcode(99).String() = %q", Opcode(99).String())
	}
	if SysFputc.String() != "FPUTC" {
		t.Errorf("SysFputc.String() = %q, want FPUTC", SysFputc.String())
	}
}

func TestWriterEmptyModule(t *testing.T) {
	w := NewWriter(nil)
	if w.IP() != 0 {
		t.Errorf("IP() = %d, want 0 after header", w.IP())
	}
	out, err := w.Assemble(nil)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	want := []byte{'G', 'O', 'V', 'M', 0x11, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(out, want) {
		t.Errorf("Assemble() = % X, want % X", out, want)
	}
}

func TestWriterPacksOddNibbles(t *testing.T) {
	w := NewWriter(nil)
	w.LoadImmediate(0x1234)
	if w.IP() != 5 {
		t.Fatalf("IP() = %d, want 5", w.IP())
	}
	out, err := w.Assemble([]byte("ab"))
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(out) != HeaderLen+3+2 {
		t.Fatalf("len = %d, want %d", len(out), HeaderLen+5)
	}
	if got := out[HeaderLen : HeaderLen+3]; !bytes.Equal(got, []byte{0x11, 0x23, 0x40}) {
		t.Errorf("code = % X, want 11 23 40", got)
	}
	if got := binary.BigEndian.Uint16(out[5:]); got != 3 {
		t.Errorf("code length = %d, want 3", got)
	}
	if got := binary.BigEndian.Uint16(out[7:]); got != 2 {
		t.Errorf("data length = %d, want 2", got)
	}
	if got := binary.BigEndian.Uint16(out[9:]); got != 2 {
		t.Errorf("data length copy = %d, want 2", got)
	}
	if string(out[len(out)-2:]) != "ab" {
		t.Errorf("data = %q, want ab", out[len(out)-2:])
	}
}

func TestWriterForwardLabel(t *testing.T) {
	w := NewWriter(nil)
	w.SetGoto("end", OpJmp)
	w.SetLabel("end")
	if ip, ok := w.Label("end"); !ok || ip != 6 {
		t.Fatalf("Label(end) = %d, %v; want 6, true", ip, ok)
	}
	out, err := w.Assemble(nil)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if got := out[HeaderLen:]; !bytes.Equal(got, []byte{0x10, 0x00, 0x62}) {
		t.Errorf("code = % X, want 10 00 62", got)
	}
}

func TestWriterBackwardLabel(t *testing.T) {
	w := NewWriter(nil)
	w.WriteOpcode(OpNop)
	w.SetLabel("top")
	w.SetGoto("top", OpJz)
	if w.IP() != 10 {
		t.Errorf("IP() = %d, want 10 (NOP, LI, JZ, POP)", w.IP())
	}
	out, err := w.Assemble(nil)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	m, err := ParseModule(out)
	if err != nil {
		t.Fatalf("ParseModule error: %v", err)
	}
	instrs, err := Decode(m.Nibbles())
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(instrs) != 4 {
		t.Fatalf("decoded %v, want 4 instructions", instrs)
	}
	if instrs[1].Op != OpLI || instrs[1].Operand != 2 {
		t.Errorf("jump operand = %v, want LI 2", instrs[1])
	}
	if instrs[2].Op != OpJz || instrs[3].Op != OpPop {
		t.Errorf("tail = %v %v, want JZ POP", instrs[2].Op, instrs[3].Op)
	}
}

func TestWriterUndefinedLabel(t *testing.T) {
	w := NewWriter(nil)
	w.SetGoto("nowhere", OpCall)
	_, err := w.Assemble(nil)
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Assemble error = %v, want CompileError", err)
	}
	if !strings.Contains(ce.Msg, "nowhere") {
		t.Errorf("message = %q, want label name", ce.Msg)
	}
}

func TestWriterLabelsSorted(t *testing.T) {
	w := NewWriter(nil)
	w.SetLabel("b")
	w.WriteOpcode(OpNop)
	w.SetLabel("a")
	got := w.Labels()
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("Labels() = %v, want [b a]", got)
	}
}

func TestWriterLogAndListing(t *testing.T) {
	var log bytes.Buffer
	w := NewWriter(&log)
	w.SetLabel("start")
	w.Annotate("x = 1")
	w.LoadImmediate(1)
	if _, err := w.Assemble(nil); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"label start at IP 0", "code segment: 3 bytes", "0000  LI 1", "; x = 1"} {
		if !strings.Contains(log.String(), want) {
			t.Errorf("log missing %q:\n%s", want, log.String())
		}
	}
}

func TestReadHeaderErrors(t *testing.T) {
	good, _ := NewWriter(nil).Assemble([]byte{1, 2})

	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"short", good[:10], "too short"},
		{"magic", append([]byte("ABCD"), good[4:]...), "magic"},
		{"flags", append(append([]byte{}, good[:4]...), append([]byte{0x22}, good[5:]...)...), "flags"},
		{"length", good[:len(good)-1], "header describes"},
	}
	for _, tt := range tests {
		_, err := ParseModule(tt.input)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: ParseModule error = %v, want %q", tt.name, err, tt.want)
		}
	}

	m, err := ParseModule(good)
	if err != nil {
		t.Fatalf("ParseModule error: %v", err)
	}
	if m.Header.DataLen != 2 || !bytes.Equal(m.Data, []byte{1, 2}) {
		t.Errorf("module = %+v", m)
	}
}

func TestModuleStringAt(t *testing.T) {
	m := &Module{Data: []byte("hi\x00yo\x00bad")}
	if s, ok := m.StringAt(0); !ok || s != "hi" {
		t.Errorf("StringAt(0) = %q, %v", s, ok)
	}
	if s, ok := m.StringAt(3); !ok || s != "yo" {
		t.Errorf("StringAt(3) = %q, %v", s, ok)
	}
	if _, ok := m.StringAt(6); ok {
		t.Error("StringAt(6) should fail without a terminator")
	}
	if _, ok := m.StringAt(100); ok {
		t.Error("StringAt(100) should fail")
	}
}
