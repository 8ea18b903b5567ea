package ast

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Explicit tree serialization.
//
// Encoding conventions:
//   - First byte: TreeVersion
//   - Node record: kind byte, flags byte (bit 0 = returns), payload
//   - Nil node: a single KindInvalid byte
//   - Integers: big-endian fixed width (int32=4B, int64=8B, counts=2B)
//   - Floats: IEEE 754 big-endian 8B
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Operation: left, op byte, then right (or method name + args for '.')
// ---------------------------------------------------------------------------

// TreeVersion is the leading byte of every serialized tree or program.
const TreeVersion byte = 0x01

const flagReturns = 0x01

const (
	blockWhile = 0x01
	blockFor   = 0x02
	blockElse  = 0x04
)

// ErrTreeVersion is returned when the data starts with an unknown version.
var ErrTreeVersion = errors.New("unsupported tree version")

// Save serializes a single tree.
func Save(n Node) []byte {
	e := &encoder{buf: make([]byte, 0, 64)}
	e.writeByte(TreeVersion)
	e.node(n)
	return e.buf
}

// Load decodes a tree produced by Save.
func Load(data []byte) (Node, error) {
	d := &decoder{data: data}
	if err := d.version(); err != nil {
		return nil, err
	}
	n, err := d.node()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.data) {
		return nil, fmt.Errorf("trailing data after tree at offset %d", d.pos)
	}
	return n, nil
}

// SaveProgram serializes every function of p in declaration order.
func SaveProgram(p *Program) []byte {
	e := &encoder{buf: make([]byte, 0, 256)}
	e.writeByte(TreeVersion)
	names := p.Names()
	e.writeUint16(uint16(len(names)))
	for _, name := range names {
		e.writeString(name)
		e.block(p.Func(name))
	}
	return e.buf
}

// LoadProgram decodes a program produced by SaveProgram.
func LoadProgram(data []byte) (*Program, error) {
	d := &decoder{data: data}
	if err := d.version(); err != nil {
		return nil, err
	}
	count, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	p := NewProgram()
	for i := 0; i < int(count); i++ {
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		b, err := d.block()
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", name, err)
		}
		if !p.Add(name, b) {
			return nil, fmt.Errorf("duplicate function %s", name)
		}
	}
	if d.pos != len(d.data) {
		return nil, fmt.Errorf("trailing data after program at offset %d", d.pos)
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Encoder
// ---------------------------------------------------------------------------

type encoder struct {
	buf []byte
}

func (e *encoder) writeByte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *encoder) writeUint16(v uint16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, v)
}

func (e *encoder) writeUint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *encoder) writeUint64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

func (e *encoder) writeString(s string) {
	e.writeUint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) writeBool(b bool) {
	if b {
		e.writeByte(1)
	} else {
		e.writeByte(0)
	}
}

func (e *encoder) nodes(ns []Node) {
	e.writeUint16(uint16(len(ns)))
	for _, n := range ns {
		e.node(n)
	}
}

func (e *encoder) node(n Node) {
	if n == nil {
		e.writeByte(byte(KindInvalid))
		return
	}
	e.writeByte(byte(n.Kind()))
	var flags byte
	if n.Returns() {
		flags |= flagReturns
	}
	e.writeByte(flags)

	switch v := n.(type) {
	case *IntLit:
		e.writeUint32(uint32(v.Value))
	case *LongLit:
		e.writeUint64(uint64(v.Value))
	case *FloatLit:
		e.writeUint64(math.Float64bits(v.Value))
	case *StringLit:
		e.writeString(v.Value)
	case *VarRef:
		e.writeString(v.Name)
	case *Name:
		e.writeString(v.Name)
	case *Call:
		e.writeString(v.Func)
		e.nodes(v.Args)
	case *Operation:
		e.node(v.Left)
		e.writeByte(byte(v.Op))
		if v.Op == OpMethod {
			e.writeString(v.Method)
			e.nodes(v.Args)
		} else {
			e.node(v.Right)
		}
	}
}

func (e *encoder) block(b *Block) {
	e.writeString(b.Label)
	var flags byte
	if b.While {
		flags |= blockWhile
	}
	if b.For {
		flags |= blockFor
	}
	if b.Else != nil {
		flags |= blockElse
	}
	e.writeByte(flags)
	e.node(b.Condition)
	e.writeString(b.Iterator)
	e.node(b.Iterable)

	e.writeBool(b.Params != nil)
	e.writeUint16(uint16(len(b.Params)))
	for _, p := range b.Params {
		e.writeString(p)
	}
	e.writeUint16(uint16(len(b.Locals)))
	for _, l := range b.Locals {
		e.writeString(l.Name)
		e.writeByte(byte(l.Kind))
		e.writeUint16(uint16(l.Size))
	}

	e.nodes(b.Statements)
	e.writeUint16(uint16(len(b.Blocks)))
	for _, sub := range b.Blocks {
		e.block(sub)
	}
	e.writeUint16(uint16(len(b.Elifs)))
	for _, el := range b.Elifs {
		e.block(el)
	}
	if b.Else != nil {
		e.block(b.Else)
	}
}

// ---------------------------------------------------------------------------
// Decoder
// ---------------------------------------------------------------------------

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) short(what string) error {
	return fmt.Errorf("unexpected end of tree data reading %s at offset %d", what, d.pos)
}

func (d *decoder) version() error {
	if len(d.data) == 0 {
		return d.short("version")
	}
	if d.data[0] != TreeVersion {
		return fmt.Errorf("%w: 0x%02x", ErrTreeVersion, d.data[0])
	}
	d.pos = 1
	return nil
}

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, d.short("byte")
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readUint16() (uint16, error) {
	if d.pos+2 > len(d.data) {
		return 0, d.short("uint16")
	}
	v := binary.BigEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) readUint32() (uint32, error) {
	if d.pos+4 > len(d.data) {
		return 0, d.short("uint32")
	}
	v := binary.BigEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) readUint64() (uint64, error) {
	if d.pos+8 > len(d.data) {
		return 0, d.short("uint64")
	}
	v := binary.BigEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) readString() (string, error) {
	n, err := d.readUint32()
	if err != nil {
		return "", err
	}
	if uint64(d.pos)+uint64(n) > uint64(len(d.data)) {
		return "", d.short("string")
	}
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

func (d *decoder) readBool() (bool, error) {
	b, err := d.readByte()
	return b != 0, err
}

func (d *decoder) nodes() ([]Node, error) {
	n, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	out := make([]Node, n)
	for i := range out {
		if out[i], err = d.node(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *decoder) node() (Node, error) {
	kb, err := d.readByte()
	if err != nil {
		return nil, err
	}
	kind := Kind(kb)
	if kind == KindInvalid {
		return nil, nil
	}
	flags, err := d.readByte()
	if err != nil {
		return nil, err
	}

	var n Node
	switch kind {
	case KindInt:
		v, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		n = NewInt(int32(v))
	case KindLong:
		v, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		n = NewLong(int64(v))
	case KindFloat:
		v, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		n = NewFloat(math.Float64frombits(v))
	case KindString, KindVar, KindName:
		s, err := d.readString()
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindString:
			n = NewString(s)
		case KindVar:
			n = NewVar(s)
		default:
			n = NewName(s)
		}
	case KindCall:
		fn, err := d.readString()
		if err != nil {
			return nil, err
		}
		args, err := d.nodes()
		if err != nil {
			return nil, err
		}
		n = NewCall(fn, args)
	case KindOp:
		left, err := d.node()
		if err != nil {
			return nil, err
		}
		ob, err := d.readByte()
		if err != nil {
			return nil, err
		}
		op := Operator(ob)
		if !op.Valid() {
			return nil, fmt.Errorf("unknown operator 0x%02x at offset %d", ob, d.pos-1)
		}
		if op == OpMethod {
			name, err := d.readString()
			if err != nil {
				return nil, err
			}
			args, err := d.nodes()
			if err != nil {
				return nil, err
			}
			n = NewMethod(left, name, args)
		} else {
			right, err := d.node()
			if err != nil {
				return nil, err
			}
			n = NewOp(left, op, right)
		}
	default:
		return nil, fmt.Errorf("unknown node kind %d at offset %d", kb, d.pos-2)
	}
	if flags&flagReturns != 0 {
		n = AsReturn(n)
	}
	return n, nil
}

func (d *decoder) block() (*Block, error) {
	var err error
	b := &Block{}
	if b.Label, err = d.readString(); err != nil {
		return nil, err
	}
	flags, err := d.readByte()
	if err != nil {
		return nil, err
	}
	b.While = flags&blockWhile != 0
	b.For = flags&blockFor != 0
	if b.Condition, err = d.node(); err != nil {
		return nil, err
	}
	if b.Iterator, err = d.readString(); err != nil {
		return nil, err
	}
	if b.Iterable, err = d.node(); err != nil {
		return nil, err
	}

	hasParams, err := d.readBool()
	if err != nil {
		return nil, err
	}
	np, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	if hasParams {
		b.Params = make([]string, np)
	}
	for i := 0; i < int(np); i++ {
		p, err := d.readString()
		if err != nil {
			return nil, err
		}
		if hasParams {
			b.Params[i] = p
		}
	}

	nl, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(nl); i++ {
		var l Local
		if l.Name, err = d.readString(); err != nil {
			return nil, err
		}
		kb, err := d.readByte()
		if err != nil {
			return nil, err
		}
		l.Kind = LocalKind(kb)
		size, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		l.Size = int(size)
		b.Locals = append(b.Locals, l)
	}

	if b.Statements, err = d.nodes(); err != nil {
		return nil, err
	}
	nb, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(nb); i++ {
		sub, err := d.block()
		if err != nil {
			return nil, err
		}
		b.Blocks = append(b.Blocks, sub)
	}
	ne, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(ne); i++ {
		el, err := d.block()
		if err != nil {
			return nil, err
		}
		b.Elifs = append(b.Elifs, el)
	}
	if flags&blockElse != 0 {
		if b.Else, err = d.block(); err != nil {
			return nil, err
		}
	}
	return b, nil
}
