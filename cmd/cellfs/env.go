package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/marmos91/cellfs/pkg/config"
	"github.com/marmos91/cellfs/pkg/engine"
	flag "github.com/spf13/pflag"
)

// env is what a command runs with.
type env struct {
	ctx        context.Context
	configPath string
	cfg        *config.Config
	rt         *config.Runtime

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// call returns the CallContext mutating commands run under.
func (e *env) call() engine.CallContext {
	return engine.Call(e.ctx, e.rt.Caller)
}

// namespace resolves a registered namespace argument.
func (e *env) namespace(arg string) (*engine.Namespace, error) {
	ref, err := parseRef(arg)
	if err != nil {
		return nil, err
	}
	return e.rt.Host.Namespace(e.ctx, ref)
}

// printJSON writes v as indented JSON followed by a newline.
func (e *env) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.stdout, "%s\n", data)
	return err
}

// flags returns a FlagSet for a subcommand.
func (e *env) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

// parse parses args and checks the number of positional arguments.
func parse(fs *flag.FlagSet, args []string, positional int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != positional {
		return nil, fmt.Errorf("%w: want %d arguments, got %d", errUsage, positional, fs.NArg())
	}
	return fs.Args(), nil
}

func parseRef(arg string) (engine.Ref, error) {
	ref, err := engine.ParseRef(arg)
	if err != nil {
		return engine.NullRef, fmt.Errorf("%w: namespace %q: %v", errUsage, arg, err)
	}
	return ref, nil
}

func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q: %v", errUsage, arg, err)
	}
	return id, nil
}

// bodyFlags registers --data and --file on fs.
type bodyFlags struct {
	data *string
	file *string
}

func addBodyFlags(fs *flag.FlagSet) bodyFlags {
	return bodyFlags{
		data: fs.String("data", "", "Body bytes given inline"),
		file: fs.String("file", "", "Read the body from a file (- for stdin)"),
	}
}

// body returns the body selected by --data or --file.
func (b bodyFlags) body(e *env) ([]byte, error) {
	switch {
	case *b.data != "" && *b.file != "":
		return nil, fmt.Errorf("%w: --data and --file are mutually exclusive", errUsage)
	case *b.file == "-":
		return io.ReadAll(e.stdin)
	case *b.file != "":
		return os.ReadFile(*b.file)
	default:
		return []byte(*b.data), nil
	}
}

// entryView is the JSON shape of an entry.
type entryView struct {
	ID        uint64          `json:"id"`
	Exists    bool            `json:"exists"`
	Kind      string          `json:"kind,omitempty"`
	Name      string          `json:"name"`
	Owner     engine.Identity `json:"owner"`
	Timestamp uint64          `json:"timestamp"`
	Size      uint64          `json:"size"`
	Target    string          `json:"target,omitempty"`
	Body      *string         `json:"body,omitempty"`
}

func viewOf(entry engine.Entry, withBody bool) entryView {
	v := entryView{
		ID:        entry.ID,
		Exists:    entry.Exists,
		Name:      string(entry.Name),
		Owner:     entry.Owner,
		Timestamp: entry.Timestamp,
		Size:      entry.Size,
	}
	if entry.Exists {
		v.Kind = entry.Kind.String()
	}
	if !entry.Target.IsNull() {
		v.Target = entry.Target.String()
	}
	if withBody {
		body := string(entry.Body)
		v.Body = &body
	}
	return v
}
