package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/bufferstore"
	_ "github.com/wippyai/typestream/convert"
	"github.com/wippyai/typestream/opcode"
	"github.com/wippyai/typestream/resfile"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/schema"
	"github.com/wippyai/typestream/serialize"
)

type listFlag []string

func (l *listFlag) String() string     { return strings.Join(*l, ",") }
func (l *listFlag) Set(v string) error { *l = append(*l, v); return nil }

func main() {
	var (
		configPath  = flag.String("config", "", "YAML config file")
		envFile     = flag.String("env", ".env", "Environment file with OPDUMP_* settings")
		export      = flag.Int("export", -1, "Only list this export")
		tables      = flag.Bool("tables", false, "Print the file tables")
		decode      = flag.Bool("decode", false, "Decode exports with the registered schemas")
		raw         = flag.Bool("raw", false, "Input is a bare protected stream, not a resource file")
		extract     = flag.String("extract", "", "Copy the file's buffers into this store (mem:, dir:, sqlite:, s3://)")
		verbose     = flag.Bool("v", false, "Log decoding details")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		schemas     listFlag
		wits        listFlag
	)
	flag.Var(&schemas, "schema", "YAML schema file (repeatable)")
	flag.Var(&wits, "wit", "WIT package JSON file (repeatable)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: opdump [-tables] [-export n] [-decode -schema s.yaml] <file>")
		fmt.Fprintln(os.Stderr, "       opdump -raw <stream>")
		fmt.Fprintln(os.Stderr, "       opdump -extract dir:./buffers <file>")
		fmt.Fprintln(os.Stderr, "       opdump -i <file>  (interactive mode)")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.Schemas = append(cfg.Schemas, schemas...)
	cfg.WIT = append(cfg.WIT, wits...)
	if *extract != "" {
		cfg.Store = *extract
	}

	if *verbose {
		setLoggers()
	}

	color := cfg.Color == "always" || (cfg.Color == "auto" && term.IsTerminal(int(os.Stdout.Fd())))
	out := newPrinter(os.Stdout, color)
	file := flag.Arg(0)

	if *interactive {
		if err := runInteractive(file); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	opts := runOptions{
		export:  *export,
		tables:  *tables,
		decode:  *decode,
		raw:     *raw,
		extract: *extract != "",
	}
	if err := run(context.Background(), out, file, cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setLoggers() {
	l, err := zap.NewDevelopment()
	if err != nil {
		return
	}
	rtti.SetLogger(l.Named("rtti"))
	opcode.SetLogger(l.Named("opcode"))
	serialize.SetLogger(l.Named("serialize"))
	resfile.SetLogger(l.Named("resfile"))
	bufferstore.SetLogger(l.Named("bufferstore"))
	schema.SetLogger(l.Named("schema"))
}

type runOptions struct {
	export  int
	tables  bool
	decode  bool
	raw     bool
	extract bool
}

func run(ctx context.Context, out *printer, path string, cfg config, opts runOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	if opts.raw {
		ins, err := serialize.Disassemble(data)
		out.listing(ins, nil)
		return err
	}

	f, err := resfile.Open(data)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	out.summary(path, f)
	if opts.tables {
		out.tables(f)
	}

	for i := range f.Tables.Exports {
		if opts.export >= 0 && i != opts.export {
			continue
		}
		ins, err := f.Disassemble(i)
		out.exportHeader(i, f)
		out.listing(ins, f)
		if err != nil {
			out.error(err)
		}
	}

	if opts.decode {
		reg, err := buildRegistry(cfg)
		if err != nil {
			return err
		}
		objs, err := f.Decode(ctx, reg, resfile.DefaultOptions())
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		out.objects(objs)
	}

	if opts.extract {
		if cfg.Store == "" {
			return fmt.Errorf("no buffer store configured")
		}
		n, err := extractBuffers(ctx, f, cfg.Store)
		if err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		out.line(fmt.Sprintf("copied %d buffers to %s", n, cfg.Store))
	}
	return nil
}

func buildRegistry(cfg config) (*rtti.Registry, error) {
	reg := rtti.NewRegistry()
	for _, p := range cfg.Schemas {
		if _, err := schema.LoadYAMLFile(reg, p); err != nil {
			return nil, fmt.Errorf("schema %s: %w", p, err)
		}
	}
	for _, p := range cfg.WIT {
		fh, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("wit %s: %w", p, err)
		}
		err = schema.ImportWITJSON(reg, fh)
		fh.Close()
		if err != nil {
			return nil, fmt.Errorf("wit %s: %w", p, err)
		}
	}
	reg.Seal()
	return reg, nil
}

// extractBuffers copies every buffer payload of f into the store at
// location, verifying each against its CRC first.
func extractBuffers(ctx context.Context, f *resfile.File, location string) (int, error) {
	store, err := bufferstore.Open(ctx, location)
	if err != nil {
		return 0, err
	}
	defer store.Close()
	for i := range f.Tables.Buffers {
		meta, payload, err := f.BufferPayload(i)
		if err != nil {
			return i, err
		}
		if _, err := buffer.Unpack(meta, payload); err != nil {
			return i, fmt.Errorf("buffer %d: %w", i, err)
		}
		if err := store.StoreBuffer(ctx, meta, payload); err != nil {
			return i, err
		}
	}
	return len(f.Tables.Buffers), nil
}
