// Package bytecode compiles parse trees into GoVM modules.
//
// A module is a 15-byte header followed by a code segment and a data
// segment:
//
//	"GOVM" | flags | code length | data length | data length | 0 | 0
//
// Code is a stream of 4-bit nibbles packed two per byte, high nibble
// first. Opcodes 0-7 take one nibble; larger opcodes take two, the first
// with its high bit set. LI is followed by a 16-bit operand written as
// four nibbles, most significant first. Jump targets are instruction
// pointers (nibble offsets from the end of the header) pushed with LI;
// forward references are written as 0xFFFF and patched once every label
// is known.
//
// # Calling Convention
//
// Arguments are pushed left to right and the callee addresses them as
// frame offsets 0..n-1. Two words above them hold the return address. The
// prologue moves the frame pointer below the arguments and reserves space
// for locals; the epilogue restores the stack pointer and jumps back. A
// return value travels in register A.
//
// # Restrictions
//
// The backend covers the 16-bit integer subset of the language: integer
// and string literals, words, byte arrays, arithmetic, comparisons,
// if/elif/else, while and function calls. Floats, longs, method calls and
// for loops are rejected with a CompileError.
package bytecode
