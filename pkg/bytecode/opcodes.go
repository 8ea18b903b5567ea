package bytecode

import "fmt"

// Opcode represents a GoVM instruction. Codes 0-7 encode as a single
// nibble; larger codes take two.
type Opcode byte

const (
	// ========================================================================
	// Single-nibble opcodes (0x00-0x07)
	// ========================================================================

	OpSyscall Opcode = 0 // Invoke the syscall whose number is on top of stack
	OpLI      Opcode = 1 // Push immediate: OpLI <value:u16>
	OpJmp     Opcode = 2 // Jump to address on top of stack
	OpJz      Opcode = 3 // Jump to address on top of stack if next value is zero
	OpLB      Opcode = 4 // Load byte from absolute address
	OpLW      Opcode = 5 // Load word from absolute address
	OpSB      Opcode = 6 // Store byte to absolute address
	OpSW      Opcode = 7 // Store word to absolute address

	// ========================================================================
	// Arithmetic and stack (0x08-0x0F)
	// ========================================================================

	OpAdd    Opcode = 8
	OpSalloc Opcode = 9 // Grow the stack by the word count on top of stack
	OpDiv    Opcode = 10
	OpNor    Opcode = 11
	OpPop    Opcode = 12
	OpDup    Opcode = 13
	OpRot    Opcode = 14 // Swap the top two words
	OpRot3   Opcode = 15 // Rotate the top three words

	// ========================================================================
	// Register moves (0x10-0x1B)
	//
	// MOVx pops into register x; xMOV pushes register x. A is the return
	// value register, E the stack pointer, F the frame pointer.
	// ========================================================================

	OpMovA Opcode = 16
	OpMovB Opcode = 17
	OpMovC Opcode = 18
	OpMovD Opcode = 19
	OpMovE Opcode = 20
	OpMovF Opcode = 21
	OpAMov Opcode = 22
	OpBMov Opcode = 23
	OpCMov Opcode = 24
	OpDMov Opcode = 25
	OpEMov Opcode = 26
	OpFMov Opcode = 27

	// ========================================================================
	// Calls, stack-relative memory, logic (0x1C-0x2C)
	// ========================================================================

	OpCall Opcode = 28
	OpLWS  Opcode = 29 // Load word relative to the stack segment
	OpSWS  Opcode = 30 // Store word relative to the stack segment
	OpSub  Opcode = 31
	OpNot  Opcode = 32
	OpEqu  Opcode = 33
	OpLoe  Opcode = 34
	OpGoe  Opcode = 35
	OpLt   Opcode = 36
	OpGt   Opcode = 37
	OpAnd  Opcode = 38
	OpOr   Opcode = 39
	OpShl  Opcode = 40
	OpShr  Opcode = 41
	OpMul  Opcode = 42
	OpNop  Opcode = 43
	OpXor  Opcode = 44
)

// lastOpcode is the highest defined code.
const lastOpcode = OpXor

var opcodeNames = [...]string{
	OpSyscall: "SYSCALL",
	OpLI:      "LI",
	OpJmp:     "JMP",
	OpJz:      "JZ",
	OpLB:      "LB",
	OpLW:      "LW",
	OpSB:      "SB",
	OpSW:      "SW",
	OpAdd:     "ADD",
	OpSalloc:  "SALLOC",
	OpDiv:     "DIV",
	OpNor:     "NOR",
	OpPop:     "POP",
	OpDup:     "DUP",
	OpRot:     "ROT",
	OpRot3:    "ROT3",
	OpMovA:    "MOVA",
	OpMovB:    "MOVB",
	OpMovC:    "MOVC",
	OpMovD:    "MOVD",
	OpMovE:    "MOVE",
	OpMovF:    "MOVF",
	OpAMov:    "AMOV",
	OpBMov:    "BMOV",
	OpCMov:    "CMOV",
	OpDMov:    "DMOV",
	OpEMov:    "EMOV",
	OpFMov:    "FMOV",
	OpCall:    "CALL",
	OpLWS:     "LWS",
	OpSWS:     "SWS",
	OpSub:     "SUB",
	OpNot:     "NOT",
	OpEqu:     "EQU",
	OpLoe:     "LOE",
	OpGoe:     "GOE",
	OpLt:      "LT",
	OpGt:      "GT",
	OpAnd:     "AND",
	OpOr:      "OR",
	OpShl:     "SHL",
	OpShr:     "SHR",
	OpMul:     "MUL",
	OpNop:     "NOP",
	OpXor:     "XOR",
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	if op.Valid() {
		return opcodeNames[op]
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))
}

// Valid reports whether op is a defined instruction.
func (op Opcode) Valid() bool { return op <= lastOpcode }

// Nibbles returns the encoded form of op: one nibble for codes up to 7,
// otherwise (code&7)|8 followed by code>>3.
func (op Opcode) Nibbles() []byte {
	if op <= 7 {
		return []byte{byte(op)}
	}
	return []byte{byte(op)&7 | 8, byte(op) >> 3}
}

// OperandNibbles returns how many operand nibbles follow the opcode.
func (op Opcode) OperandNibbles() int {
	if op == OpLI {
		return 4
	}
	return 0
}

// AllOpcodes returns every defined opcode in code order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, lastOpcode+1)
	for op := OpSyscall; op <= lastOpcode; op++ {
		ops = append(ops, op)
	}
	return ops
}

// Syscall numbers, pushed before OpSyscall.
type Syscall uint16

const (
	SysHalt  Syscall = 0
	SysPutc  Syscall = 1
	SysGetc  Syscall = 2
	SysInfo  Syscall = 3
	SysGets  Syscall = 4
	SysOpen  Syscall = 5
	SysClose Syscall = 6
	SysFgetc Syscall = 7
	SysFputc Syscall = 8
)

var syscallNames = [...]string{"HLT", "PUTC", "GETC", "INFO", "GETS", "OPEN", "CLOSE", "FGETC", "FPUTC"}

func (s Syscall) String() string {
	if int(s) < len(syscallNames) {
		return syscallNames[s]
	}
	return fmt.Sprintf("SYSCALL(%d)", uint16(s))
}
