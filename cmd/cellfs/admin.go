package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/marmos91/cellfs/internal/logger"
	"github.com/marmos91/cellfs/pkg/config"
	"github.com/marmos91/cellfs/pkg/engine"
	"github.com/marmos91/cellfs/pkg/events"
	"github.com/marmos91/cellfs/pkg/metrics"
	"github.com/marmos91/cellfs/pkg/snapshot"
)

func runInit(e *env, args []string) error {
	fs := e.flags("init")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	path := fs.String("path", "", "Write to this path instead of the default location")

	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	target := *path
	if target == "" {
		target = e.configPath
	}
	if target == "" {
		target = config.GetDefaultConfigPath()
	}

	written, err := config.InitConfigToPath(target, *force)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Configuration written to %s\n", written)
	return nil
}

func runDump(e *env, args []string) error {
	pos, err := parse(e.flags("dump"), args, 1)
	if err != nil {
		return err
	}

	f, err := os.Create(pos[0])
	if err != nil {
		return err
	}

	stats, err := snapshot.Dump(e.ctx, e.rt.Host.Backend(), f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(pos[0])
		return err
	}
	return e.printJSON(stats)
}

// runRestore opens the configured backend directly: a Host is not needed
// and the backend must be empty anyway.
func runRestore(e *env, args []string) error {
	pos, err := parse(e.flags("restore"), args, 1)
	if err != nil {
		return err
	}

	f, err := os.Open(pos[0])
	if err != nil {
		return err
	}
	defer f.Close()

	backend, err := config.CreateBackend(e.ctx, &e.cfg.Store)
	if err != nil {
		return err
	}

	stats, err := snapshot.Restore(e.ctx, f, backend)
	if closeErr := backend.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	return e.printJSON(stats)
}

func runJournal(e *env, args []string) error {
	fs := e.flags("journal")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	path := e.cfg.Events.Journal
	switch fs.NArg() {
	case 0:
	case 1:
		path = fs.Arg(0)
	default:
		return fmt.Errorf("%w: journal takes at most one file", errUsage)
	}
	if path == "" {
		return fmt.Errorf("%w: no journal file given and events.journal is not configured", errUsage)
	}

	enc := json.NewEncoder(e.stdout)
	return events.ReadJournalFile(path, func(ev engine.Event) error {
		return enc.Encode(ev)
	})
}

func runServe(e *env, args []string) error {
	if _, err := parse(e.flags("serve"), args, 0); err != nil {
		return err
	}

	// Listing also primes the namespace gauge
	refs, err := e.rt.Host.Namespaces(e.ctx)
	if err != nil {
		return err
	}
	logger.Info("Serving host with %d namespaces", len(refs))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-e.ctx.Done():
				return
			case <-hup:
				if err := reloadHost(e); err != nil {
					logger.Error("Reload failed: %v", err)
				}
			}
		}
	}()

	server := metrics.NewServer(metrics.ServerConfig{Port: e.cfg.Metrics.Port})
	if err := server.Start(e.ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// reloadHost re-reads the config file and applies the settings a running
// host can change: the rate limit and the log level.
func reloadHost(e *env) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Logging.Level)
	e.rt.Host.SetRateLimit(cfg.Host.RateLimit)
	e.cfg.Host.RateLimit = cfg.Host.RateLimit
	return nil
}
