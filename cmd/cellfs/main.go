// Command cellfs is the operator CLI for a cellfs host.
//
// Every engine operation is exposed as a subcommand. The host is built from
// the configuration file (see `cellfs init`), opened for one command and
// closed again, so persistent backends (badger, s3) carry state between
// invocations.
//
// Usage:
//
//	cellfs [--config path] [--log-level LEVEL] [--as 0x...] <command> [args]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/marmos91/cellfs/internal/logger"
	"github.com/marmos91/cellfs/pkg/config"
	"github.com/marmos91/cellfs/pkg/engine"
	flag "github.com/spf13/pflag"
)

// errUsage marks errors caused by bad arguments; they exit with status 2.
var errUsage = errors.New("usage")

// command is one cellfs subcommand.
type command struct {
	usage string
	help  string

	// raw commands run without a host (init, journal, restore)
	raw bool

	run func(e *env, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"init":     {usage: "init [--force] [--path file]", help: "write a default configuration file", raw: true, run: runInit},
		"ns":       {usage: "ns create | ns list | ns drop <ns>", help: "manage namespaces", run: runNamespace},
		"create":   {usage: "create <ns> <name> [--id N] [--offset N] [--data s | --file f]", help: "create a file", run: runCreate},
		"mkdir":    {usage: "mkdir <ns> <name> <target-ns> [--id N]", help: "create a directory linking to another namespace", run: runMkdir},
		"update":   {usage: "update <ns> <id> [--offset N] [--data s | --file f]", help: "overwrite part of a file", run: runUpdate},
		"write":    {usage: "write <ns> <id> [--offset N] [--data s | --file f]", help: "update a file, creating it if absent", run: runWrite},
		"truncate": {usage: "truncate <ns> <id> --size N", help: "shrink or zero-extend a file", run: runTruncate},
		"rm":       {usage: "rm <ns> <id>", help: "delete an entry", run: runRemove},
		"stat":     {usage: "stat <ns> <id>", help: "show an entry without its body", run: runStat},
		"get":      {usage: "get <ns> <id> [--offset N] [--length N]", help: "show an entry with (part of) its body", run: runGet},
		"ls":       {usage: "ls <ns> [--start N] [--limit N]", help: "list entry ids", run: runList},
		"count":    {usage: "count <ns>", help: "count entries", run: runCount},
		"exists":   {usage: "exists <ns> <id>", help: "report whether an entry exists", run: runExists},
		"read":     {usage: "read <ns> <id> [--offset N] [--length N]", help: "write a file body to stdout", run: runRead},
		"cluster":  {usage: "cluster <ns> <id> <index>", help: "show one raw 32-byte cluster", run: runCluster},
		"tree":     {usage: "tree <ns>", help: "walk the namespace tree from <ns>", run: runTree},
		"dump":     {usage: "dump <file>", help: "snapshot every cell to a file", run: runDump},
		"restore":  {usage: "restore <file>", help: "restore a snapshot into an empty store", raw: true, run: runRestore},
		"journal":  {usage: "journal [file]", help: "print the event journal as JSON lines", raw: true, run: runJournal},
		"serve":    {usage: "serve", help: "keep the host open and serve /metrics until interrupted", run: runServe},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one cellfs invocation and returns the process exit status.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	// ========================================================================
	// Step 1: Global flags
	// ========================================================================

	global := flag.NewFlagSet("cellfs", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)

	configPath := global.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/cellfs/config.yaml)")
	logLevel := global.String("log-level", "", "Override the configured log level (DEBUG, INFO, WARN, ERROR)")
	as := global.String("as", "", "Caller identity (0x + 40 hex digits), overrides the configured identity")
	global.Usage = func() { printUsage(stderr, global) }

	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr, global)
		return 2
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "cellfs: unknown command %q\n", rest[0])
		printUsage(stderr, global)
		return 2
	}

	// ========================================================================
	// Step 2: Configuration and logging
	// ========================================================================

	e := &env{
		ctx:        ctx,
		configPath: *configPath,
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
	}

	if rest[0] != "init" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "cellfs: %v\n", err)
			return 1
		}
		if *logLevel != "" {
			cfg.Logging.Level = *logLevel
		}
		if *as != "" {
			cfg.Identity = *as
		}
		if err := configureLogging(cfg.Logging, stderr); err != nil {
			fmt.Fprintf(stderr, "cellfs: %v\n", err)
			return 1
		}
		e.cfg = cfg
	}

	// ========================================================================
	// Step 3: Host and command
	// ========================================================================

	if !cmd.raw {
		rt, err := config.CreateHost(ctx, e.cfg)
		if err != nil {
			fmt.Fprintf(stderr, "cellfs: %v\n", err)
			return 1
		}
		defer func() {
			if err := rt.Close(); err != nil {
				logger.Error("Failed to close host: %v", err)
			}
		}()
		e.rt = rt
	}

	if err := cmd.run(e, rest[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "cellfs: %v\nusage: cellfs %s\n", err, cmd.usage)
			return 2
		}
		fmt.Fprintf(stderr, "cellfs %s: %v\n", rest[0], err)
		var engineErr *engine.Error
		if errors.As(err, &engineErr) {
			return 3
		}
		return 1
	}
	return 0
}

// configureLogging applies the logging section. Command output owns stdout,
// so "stdout" log output is sent to stderr instead.
func configureLogging(cfg config.LoggingConfig, stderr io.Writer) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)
	if cfg.Output == "stdout" || cfg.Output == "stderr" || cfg.Output == "" {
		logger.SetOutput(stderr)
		return nil
	}
	return logger.SetOutputPath(cfg.Output)
}

func printUsage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprintf(w, "usage: cellfs [flags] <command> [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].help)
	}
	fmt.Fprintf(w, "\nFlags:\n%s", global.FlagUsages())
}
