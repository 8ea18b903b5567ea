package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "govm.toml", `
[server]
listen = "127.0.0.1:9000"
max-payload = 4096
timeout = "3s"
workers = 2

[compiler]
obfuscate = true
seed = 42
max-depth = 64

[compiler.globals]
limit = 10
base = 3

[interp]
trusted = true
allow = ["Point", "Rect"]

[cache]
path = "cache.db"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Server.Listen != "127.0.0.1:9000" {
		t.Errorf("listen = %q, want 127.0.0.1:9000", c.Server.Listen)
	}
	if c.Server.MaxPayload != 4096 {
		t.Errorf("max-payload = %d, want 4096", c.Server.MaxPayload)
	}
	if c.Server.Timeout.Duration != 3*time.Second {
		t.Errorf("timeout = %s, want 3s", c.Server.Timeout)
	}
	if c.Server.Workers != 2 {
		t.Errorf("workers = %d, want 2", c.Server.Workers)
	}
	if !c.Compiler.Obfuscate || c.Compiler.Seed != 42 || c.Compiler.MaxDepth != 64 {
		t.Errorf("compiler = %+v", c.Compiler)
	}
	if !c.Interp.Trusted || len(c.Interp.Allow) != 2 {
		t.Errorf("interp = %+v", c.Interp)
	}
	if c.Cache.Path != filepath.Join(dir, "cache.db") {
		t.Errorf("cache path = %q, want it resolved against %s", c.Cache.Path, dir)
	}

	opts := c.CompilerOptions()
	if len(opts.Globals) != 2 || opts.Globals[0].Name != "base" || opts.Globals[1].Value != 10 {
		t.Errorf("globals = %+v, want [base=3 limit=10]", opts.Globals)
	}
	if !opts.Obfuscate || opts.Seed != 42 || opts.MaxDepth != 64 {
		t.Errorf("options = %+v", opts)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "govm.yaml", `
server:
  listen: ":7000"
  timeout: 250ms
interp:
  allow: [Point]
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Server.Listen != ":7000" {
		t.Errorf("listen = %q, want :7000", c.Server.Listen)
	}
	if c.Server.Timeout.Duration != 250*time.Millisecond {
		t.Errorf("timeout = %s, want 250ms", c.Server.Timeout)
	}
	if c.Server.MaxPayload != 1<<20 {
		t.Errorf("max-payload = %d, want default", c.Server.MaxPayload)
	}
	if len(c.Interp.Allow) != 1 || c.Interp.Allow[0] != "Point" {
		t.Errorf("allow = %v", c.Interp.Allow)
	}
}

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Server.Listen != ":2318" {
		t.Errorf("listen = %q, want :2318", c.Server.Listen)
	}
	if c.Server.MaxPayload != 1<<20 {
		t.Errorf("max-payload = %d, want 1 MiB", c.Server.MaxPayload)
	}
	if c.Server.Timeout.Duration != 10*time.Second {
		t.Errorf("timeout = %s, want 10s", c.Server.Timeout)
	}
	if c.Server.Workers <= 0 {
		t.Errorf("workers = %d, want positive", c.Server.Workers)
	}
	if c.Cache.Path != "" {
		t.Errorf("cache path = %q, want disabled", c.Cache.Path)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"bad toml", "govm.toml", "[server\n", "parse error"},
		{"bad duration", "govm.toml", "[server]\ntimeout = \"soon\"\n", "invalid duration"},
		{"negative payload", "govm.toml", "[server]\nmax-payload = -1\n", "max-payload"},
		{"unknown yaml key", "govm.yaml", "server:\n  port: 1\n", "parse error"},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		writeFile(t, dir, tt.file, tt.content)
		_, err := Load(dir)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %v, want %q", tt.name, err, tt.want)
		}
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of an empty dir should fail")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "govm.toml", "[server]\nlisten = \":1234\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil || c.Server.Listen != ":1234" {
		t.Fatalf("FindAndLoad = %+v", c)
	}
	if c.Path != filepath.Join(root, "govm.toml") {
		t.Errorf("path = %q", c.Path)
	}
}
