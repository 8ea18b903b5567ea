package server

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Greeting is written by the server when a client connects.
var Greeting = []byte("GoVM")

// Status words written by the server. All integers on the wire are
// big-endian int32.
const (
	StatusBadLength int32 = -1 // request length out of range; connection closed
	StatusFailed    int32 = -2 // job failed; diagnostic log follows
	StatusAccepted  int32 = 1  // payload read; job queued
	StatusOK        int32 = 2  // artifact and diagnostic log follow
)

// DefaultMaxPayload is the largest source a client may send.
const DefaultMaxPayload = 1 << 20

func writeInt32(w io.Writer, v int32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

func readInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// writeBlock writes a length-prefixed byte block.
func writeBlock(w io.Writer, data []byte) error {
	if err := writeInt32(w, int32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readBlock reads a length-prefixed byte block of at most max bytes.
func readBlock(r io.Reader, max int) ([]byte, error) {
	n, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > max {
		return nil, fmt.Errorf("block length %d out of range", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
