// Package config handles govm.toml / govm.yaml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	"github.com/hce/govm/compiler"
	"github.com/hce/govm/pkg/bytecode"
)

// FileNames are the configuration files looked for, in order.
var FileNames = []string{"govm.toml", "govm.yaml", "govm.yml"}

// Config is a govm configuration.
type Config struct {
	Server   Server   `toml:"server" yaml:"server"`
	Compiler Compiler `toml:"compiler" yaml:"compiler"`
	Interp   Interp   `toml:"interp" yaml:"interp"`
	Cache    Cache    `toml:"cache" yaml:"cache"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Server configures the compile server.
type Server struct {
	Listen     string   `toml:"listen" yaml:"listen"`
	MaxPayload int      `toml:"max-payload" yaml:"max-payload"`
	Timeout    Duration `toml:"timeout" yaml:"timeout"`
	Workers    int      `toml:"workers" yaml:"workers"`
}

// Compiler configures code generation.
type Compiler struct {
	Obfuscate bool              `toml:"obfuscate" yaml:"obfuscate"`
	Seed      int64             `toml:"seed" yaml:"seed"`
	MaxDepth  int               `toml:"max-depth" yaml:"max-depth"`
	Globals   map[string]uint16 `toml:"globals" yaml:"globals"`
}

// Interp configures the evaluator used by `govm run` and the REPL.
type Interp struct {
	Trusted  bool     `toml:"trusted" yaml:"trusted"`
	MaxDepth int      `toml:"max-depth" yaml:"max-depth"`
	Allow    []string `toml:"allow" yaml:"allow"`
}

// Cache configures the artifact cache. An empty path disables it.
type Cache struct {
	Path string `toml:"path" yaml:"path"`
}

// Duration is a time.Duration written as a string such as "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: Server{
			Listen:     ":2318",
			MaxPayload: 1 << 20,
			Timeout:    Duration{10 * time.Second},
			Workers:    runtime.NumCPU(),
		},
	}
}

// Load reads the first configuration file found in dir. Unset values keep
// their defaults.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("no %s in %s", FileNames[0], dir)
}

// LoadFile parses one configuration file, choosing the format by
// extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(data, c)
	default:
		err = toml.Unmarshal(data, c)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if c.Cache.Path != "" && !filepath.IsAbs(c.Cache.Path) {
		c.Cache.Path = filepath.Join(filepath.Dir(c.Path), c.Cache.Path)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a configuration file, then
// loads it. Returns nil if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return Load(dir)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) validate() error {
	if c.Server.MaxPayload <= 0 {
		return fmt.Errorf("server max-payload must be positive, got %d", c.Server.MaxPayload)
	}
	if c.Server.Timeout.Duration <= 0 {
		return fmt.Errorf("server timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Server.Workers <= 0 {
		c.Server.Workers = runtime.NumCPU()
	}
	return nil
}

// CompilerOptions converts the [compiler] section into job options.
// Globals are declared in name order.
func (c *Config) CompilerOptions() compiler.Options {
	names := make([]string, 0, len(c.Compiler.Globals))
	for n := range c.Compiler.Globals {
		names = append(names, n)
	}
	sort.Strings(names)

	opts := compiler.Options{
		Obfuscate: c.Compiler.Obfuscate,
		Seed:      c.Compiler.Seed,
		MaxDepth:  c.Compiler.MaxDepth,
	}
	for _, n := range names {
		opts.Globals = append(opts.Globals, bytecode.Global{Name: n, Value: c.Compiler.Globals[n]})
	}
	return opts
}
