package cache

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hce/govm/compiler"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "sub", "cache.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEntryEncodingCanonical(t *testing.T) {
	e := &Entry{Artifact: []byte("GOVM"), Log: []byte("OK\n"), Created: 17}
	a, err := MarshalEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := MarshalEntry(&Entry{Created: 17, Log: []byte("OK\n"), Artifact: []byte("GOVM")})
	if !bytes.Equal(a, b) {
		t.Error("encoding is not deterministic")
	}
	got, err := UnmarshalEntry(a)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Artifact, e.Artifact) || !bytes.Equal(got.Log, e.Log) || got.Created != 17 {
		t.Errorf("UnmarshalEntry = %+v, want %+v", got, e)
	}
	if _, err := UnmarshalEntry([]byte{0xff}); err == nil {
		t.Error("garbage decoded without error")
	}
}

func TestPutGetDelete(t *testing.T) {
	c := openTemp(t)
	key := [32]byte{1, 2, 3}

	if _, err := c.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty cache = %v, want ErrNotFound", err)
	}
	if err := c.Put(key, &Entry{Artifact: []byte{9}, Log: []byte("log")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	e, err := c.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(e.Artifact, []byte{9}) || e.Created == 0 {
		t.Errorf("entry = %+v", e)
	}
	if n, _ := c.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
	if err := c.Delete(key); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Len(); n != 0 {
		t.Errorf("Len() after Delete = %d, want 0", n)
	}
}

func TestPrune(t *testing.T) {
	c := openTemp(t)
	old := time.Now().Add(-48 * time.Hour).Unix()
	c.Put([32]byte{1}, &Entry{Created: old})
	c.Put([32]byte{2}, &Entry{})

	n, err := c.Prune(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Prune removed %d, want 1", n)
	}
	if _, err := c.Get([32]byte{2}); err != nil {
		t.Errorf("recent entry pruned: %v", err)
	}
}

func TestCompileThroughCache(t *testing.T) {
	c := openTemp(t)
	src := []byte("def main():\n\thalt()\n")

	first := c.Compile(src, compiler.Options{})
	if !first.OK() {
		t.Fatalf("Compile failed: %v", first.Err)
	}
	if n, _ := c.Len(); n != 1 {
		t.Fatalf("Len() = %d, want 1 after a miss", n)
	}
	second := c.Compile(src, compiler.Options{})
	if !bytes.Equal(first.Artifact, second.Artifact) || !bytes.Equal(first.Log, second.Log) {
		t.Error("cached result differs")
	}

	bad := c.Compile([]byte("def main():\n\tx = 1\n"), compiler.Options{})
	if bad.OK() {
		t.Fatal("bad source compiled")
	}
	if n, _ := c.Len(); n != 1 {
		t.Errorf("Len() = %d, failed jobs must not be cached", n)
	}

	var none *Cache
	if res := none.Compile(src, compiler.Options{}); !res.OK() {
		t.Errorf("nil cache Compile failed: %v", res.Err)
	}
}
