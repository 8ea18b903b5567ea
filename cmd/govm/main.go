// govm compiles scripts to GoVM modules, serves compile requests and runs
// scripts in the evaluator.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/repr"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/urfave/cli/v2"
	"github.com/ztrue/tracerr"

	"github.com/hce/govm/cache"
	"github.com/hce/govm/config"
	"github.com/hce/govm/pkg/ast"
	"github.com/hce/govm/pkg/bytecode"
	"github.com/hce/govm/pkg/interp"
	"github.com/hce/govm/pkg/parser"
	"github.com/hce/govm/server"
)

const usage = "USAGE: govm [-s] [source.adela output.govm]"

var log = commonlog.GetLogger("govm")

// state is what every command shares: the loaded configuration and the
// lazily opened artifact cache.
type state struct {
	cfg   *config.Config
	cache *cache.Cache
	trace bool
	out   io.Writer
}

func main() {
	st := &state{out: os.Stdout}
	if err := newApp(st).Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func newApp(st *state) *cli.App {
	return &cli.App{
		Name:      "govm",
		Usage:     "GoVM script compiler",
		UsageText: usage,
		Writer:    st.out,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log verbosity (0-4)"},
			&cli.BoolFlag{Name: "trace", Usage: "print stack traces for fatal errors"},
			&cli.BoolFlag{Name: "serve", Aliases: []string{"s"}, Usage: "start the compile server"},
			&cli.StringFlag{Name: "config", Usage: "configuration file (default: search upwards for govm.toml)"},
		},
		Before: func(c *cli.Context) error {
			commonlog.Configure(c.Int("verbose"), nil)
			st.trace = c.Bool("trace")
			return st.load(c.String("config"))
		},
		After: func(c *cli.Context) error {
			return st.close()
		},
		ExitErrHandler: func(c *cli.Context, err error) {
			if err == nil {
				return
			}
			st.fatal(err)
		},
		OnUsageError: func(c *cli.Context, err error, isSubcommand bool) error {
			fmt.Fprintln(st.out, usage)
			return nil
		},
		Action: func(c *cli.Context) error {
			switch {
			case c.Args().Len() == 0:
				return st.serve("")
			case c.Args().Len() == 2 && !c.Bool("serve"):
				return st.compile(c.Args().Get(0), c.Args().Get(1), "")
			}
			fmt.Fprintln(st.out, usage)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "compile",
				Usage:     "compile a script to a GoVM module",
				ArgsUsage: "<source> <output>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "remote", Usage: "compile on the server at `ADDR`"},
				},
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 2 {
						fmt.Fprintln(st.out, usage)
						return nil
					}
					return st.compile(c.Args().Get(0), c.Args().Get(1), c.String("remote"))
				},
			},
			{
				Name:  "serve",
				Usage: "start the compile server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Usage: "listen on `ADDR` (default from config, :2318)"},
				},
				Action: func(c *cli.Context) error {
					return st.serve(c.String("listen"))
				},
			},
			{
				Name:      "run",
				Usage:     "evaluate a script function",
				ArgsUsage: "<source> [args...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "func", Value: bytecode.EntryPoint, Usage: "function to call"},
				},
				Action: func(c *cli.Context) error {
					if c.Args().Len() < 1 {
						fmt.Fprintln(st.out, usage)
						return nil
					}
					v, err := st.run(c.Args().First(), c.String("func"), c.Args().Tail())
					if err != nil {
						return err
					}
					if v != nil {
						fmt.Fprintln(st.out, interp.FormatValue(v))
					}
					return nil
				},
			},
			{
				Name:      "parse",
				Usage:     "save the parse tree of a script",
				ArgsUsage: "<source> <output.ast>",
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 2 {
						fmt.Fprintln(st.out, usage)
						return nil
					}
					return st.parse(c.Args().Get(0), c.Args().Get(1))
				},
			},
			{
				Name:      "dump",
				Usage:     "print the parse tree of a script or saved tree",
				ArgsUsage: "<source|tree.ast>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "repr", Usage: "print Go structures instead of a tree"},
				},
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 1 {
						fmt.Fprintln(st.out, usage)
						return nil
					}
					return st.dump(c.Args().First(), c.Bool("repr"))
				},
			},
			{
				Name:      "disasm",
				Usage:     "disassemble a GoVM module",
				ArgsUsage: "<module>",
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 1 {
						fmt.Fprintln(st.out, usage)
						return nil
					}
					data, err := os.ReadFile(c.Args().First())
					if err != nil {
						return tracerr.Wrap(err)
					}
					listing, err := bytecode.Disassemble(data)
					if err != nil {
						return err
					}
					fmt.Fprint(st.out, listing)
					return nil
				},
			},
			{
				Name:  "repl",
				Usage: "interactive evaluator",
				Action: func(c *cli.Context) error {
					return st.repl()
				},
			},
			{
				Name:  "lsp",
				Usage: "run the language server on stdio",
				Action: func(c *cli.Context) error {
					return server.NewLSP().Run()
				},
			},
			{
				Name:  "cache",
				Usage: "inspect the artifact cache",
				Subcommands: []*cli.Command{
					{
						Name:  "stats",
						Usage: "print the number of cached artifacts",
						Action: func(c *cli.Context) error {
							cc, err := st.openCache()
							if err != nil || cc == nil {
								return err
							}
							n, err := cc.Len()
							if err != nil {
								return err
							}
							fmt.Fprintf(st.out, "%s: %d artifacts\n", cc.Path(), n)
							return nil
						},
					},
					{
						Name:  "prune",
						Usage: "remove old artifacts",
						Flags: []cli.Flag{
							&cli.DurationFlag{Name: "older", Value: 7 * 24 * time.Hour, Usage: "remove artifacts older than `AGE`"},
						},
						Action: func(c *cli.Context) error {
							cc, err := st.openCache()
							if err != nil || cc == nil {
								return err
							}
							n, err := cc.Prune(time.Now().Add(-c.Duration("older")))
							if err != nil {
								return err
							}
							fmt.Fprintf(st.out, "pruned %d artifacts\n", n)
							return nil
						},
					},
				},
			},
		},
	}
}

// load reads the configuration named on the command line, or searches
// upwards from the working directory, falling back to defaults.
func (st *state) load(path string) error {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		st.cfg = cfg
		return nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return tracerr.Wrap(err)
	}
	cfg, err := config.FindAndLoad(wd)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default()
	} else {
		log.Infof("using configuration %s", cfg.Path)
	}
	st.cfg = cfg
	return nil
}

// openCache opens the configured cache once. A nil cache means caching is
// disabled.
func (st *state) openCache() (*cache.Cache, error) {
	if st.cache != nil || st.cfg.Cache.Path == "" {
		return st.cache, nil
	}
	cc, err := cache.Open(st.cfg.Cache.Path)
	if err != nil {
		return nil, err
	}
	st.cache = cc
	return cc, nil
}

func (st *state) close() error {
	if st.cache == nil {
		return nil
	}
	err := st.cache.Close()
	st.cache = nil
	return err
}

func (st *state) fatal(err error) {
	if st.trace {
		tracerr.PrintSourceColor(tracerr.Wrap(err))
	} else {
		fmt.Fprintf(os.Stderr, "govm: %v\n", err)
	}
	st.close()
	os.Exit(1)
}

// compile builds src into out, locally or on a remote server. Compile
// errors print the diagnostic log and return the error.
func (st *state) compile(src, out, remote string) error {
	source, err := os.ReadFile(src)
	if err != nil {
		return tracerr.Wrap(err)
	}

	var artifact, diag []byte
	if remote != "" {
		c := &server.Client{Addr: remote, Timeout: st.cfg.Server.Timeout.Duration}
		artifact, diag, err = c.Compile(context.Background(), source)
	} else {
		cc, cerr := st.openCache()
		if cerr != nil {
			log.Warningf("cache disabled: %v", cerr)
		}
		res := cc.Compile(source, st.cfg.CompilerOptions())
		artifact, diag, err = res.Artifact, res.Log, res.Err
	}
	if err != nil {
		os.Stderr.Write(diag)
		return err
	}
	if err := os.WriteFile(out, artifact, 0o644); err != nil {
		return tracerr.Wrap(err)
	}
	log.Noticef("wrote %s (%d bytes)", out, len(artifact))
	return nil
}

// serve runs the compile server until interrupted.
func (st *state) serve(addr string) error {
	if addr == "" {
		addr = st.cfg.Server.Listen
	}
	cc, err := st.openCache()
	if err != nil {
		log.Warningf("cache disabled: %v", err)
	}
	s := server.New(server.Options{
		MaxPayload: st.cfg.Server.MaxPayload,
		Timeout:    st.cfg.Server.Timeout.Duration,
		Workers:    st.cfg.Server.Workers,
		Compile:    st.cfg.CompilerOptions(),
		Cache:      cc,
	})

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		if _, ok := <-sigc; ok {
			log.Notice("shutting down")
			s.Stop()
		}
	}()

	if err := s.ListenAndServe(addr); err != nil && !errors.Is(err, server.ErrStopped) {
		return err
	}
	return nil
}

// loadProgram reads a script, or a tree saved by `govm parse` when the
// file ends in .ast.
func (st *state) loadProgram(path string) (*ast.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if strings.EqualFold(filepath.Ext(path), ".ast") {
		return ast.LoadProgram(data)
	}
	p := parser.New()
	if st.cfg.Compiler.MaxDepth > 0 {
		p.MaxDepth = st.cfg.Compiler.MaxDepth
	}
	return p.Build(string(data))
}

// registry builds the host for run and repl from the [interp] section.
func (st *state) registry() (*interp.Registry, error) {
	reg := interp.NewRegistry()
	reg.Output = st.out
	if err := reg.SetTrusted(st.cfg.Interp.Trusted); err != nil {
		return nil, err
	}
	for _, name := range st.cfg.Interp.Allow {
		reg.Allow(name, true)
	}
	return reg, nil
}

func (st *state) interpreter(prog *ast.Program) (*interp.Interpreter, error) {
	reg, err := st.registry()
	if err != nil {
		return nil, err
	}
	in := interp.New(prog, reg)
	if st.cfg.Interp.MaxDepth > 0 {
		in.MaxDepth = st.cfg.Interp.MaxDepth
	}
	return in, nil
}

// run calls fn in the script at path. Each argument is parsed as an
// expression and evaluated against the host.
func (st *state) run(path, fn string, args []string) (interface{}, error) {
	prog, err := st.loadProgram(path)
	if err != nil {
		return nil, err
	}
	in, err := st.interpreter(prog)
	if err != nil {
		return nil, err
	}
	values, err := evalArgs(in, args)
	if err != nil {
		return nil, err
	}
	return in.Run(fn, values...)
}

func evalArgs(host interp.Host, args []string) ([]interface{}, error) {
	values := make([]interface{}, 0, len(args))
	for _, a := range args {
		n, err := parser.ParseExpr(a)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", a, err)
		}
		if n == nil {
			return nil, fmt.Errorf("argument %q is empty", a)
		}
		v, err := interp.Eval(n, interp.Locals{}, host)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", a, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func (st *state) parse(src, out string) error {
	prog, err := st.loadProgram(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, ast.SaveProgram(prog), 0o644); err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

func (st *state) dump(path string, asRepr bool) error {
	prog, err := st.loadProgram(path)
	if err != nil {
		return err
	}
	for _, name := range prog.Names() {
		root := prog.Func(name)
		if asRepr {
			fmt.Fprintf(st.out, "%s:\n", name)
			repr.New(st.out).Println(root)
			continue
		}
		fmt.Fprintf(st.out, "def %s\n", name)
		fmt.Fprint(st.out, ast.BlockTree(root))
	}
	return nil
}
