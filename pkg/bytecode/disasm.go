package bytecode

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of a module: header summary,
// decoded code segment and a hex dump of the data segment.
func Disassemble(module []byte) (string, error) {
	m, err := ParseModule(module)
	if err != nil {
		return "", err
	}
	var sb strings.Builder

	sb.WriteString("; GoVM module\n")
	sb.WriteString(fmt.Sprintf("; Flags: 0x%02X\n", m.Header.Flags))
	sb.WriteString(fmt.Sprintf("; Code: %d bytes\n", m.Header.CodeLen))
	sb.WriteString(fmt.Sprintf("; Data: %d bytes\n", m.Header.DataLen))
	sb.WriteString("\n; Code:\n")

	instrs, err := Decode(m.Nibbles())
	if err != nil {
		return "", err
	}
	for _, in := range instrs {
		sb.WriteString(in.format(m))
		sb.WriteString("\n")
	}

	if len(m.Data) > 0 {
		sb.WriteString("\n; Data:\n")
		sb.WriteString(hex.Dump(m.Data))
	}
	return sb.String(), nil
}

// Instruction is one decoded instruction.
type Instruction struct {
	IP      int
	Op      Opcode
	Operand uint16
}

func (in Instruction) String() string {
	if in.Op.OperandNibbles() > 0 {
		return fmt.Sprintf("%04X  %s %d", in.IP, in.Op, in.Operand)
	}
	return fmt.Sprintf("%04X  %s", in.IP, in.Op)
}

// format adds a string preview when an immediate points at a string in
// the data segment.
func (in Instruction) format(m *Module) string {
	line := in.String()
	if in.Op == OpLI {
		if s, ok := m.StringAt(int(in.Operand)); ok && s != "" && printable(s) {
			if len(s) > 20 {
				s = s[:17] + "..."
			}
			line += fmt.Sprintf(" ; %q", s)
		}
	}
	return line
}

func printable(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			return false
		}
	}
	return true
}

// Decode splits a nibble stream into instructions. A trailing lone zero
// nibble is padding from packing an odd-length stream.
func Decode(nibbles []byte) ([]Instruction, error) {
	var out []Instruction
	for ip := 0; ip < len(nibbles); {
		start := ip
		n := nibbles[ip]
		ip++
		op := Opcode(n)
		if n&8 != 0 {
			if ip >= len(nibbles) {
				return nil, fmt.Errorf("truncated opcode at IP %d", start)
			}
			op = Opcode(n&7 | nibbles[ip]<<3)
			ip++
		} else if op == OpSyscall && ip == len(nibbles) && len(nibbles)%2 == 0 {
			break
		}
		if !op.Valid() {
			return nil, fmt.Errorf("invalid opcode %d at IP %d", byte(op), start)
		}
		in := Instruction{IP: start, Op: op}
		if k := op.OperandNibbles(); k > 0 {
			if ip+k > len(nibbles) {
				return nil, fmt.Errorf("truncated operand at IP %d", start)
			}
			for i := 0; i < k; i++ {
				in.Operand = in.Operand<<4 | uint16(nibbles[ip+i])
			}
			ip += k
		}
		out = append(out, in)
	}
	return out, nil
}
