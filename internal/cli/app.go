package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/calyptra/intelgraph/internal/config"
	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/gateway"
	"github.com/calyptra/intelgraph/internal/graph"
	"github.com/calyptra/intelgraph/internal/identity"
	"github.com/calyptra/intelgraph/internal/record"
	"github.com/calyptra/intelgraph/internal/taxonomy"
)

// App wires the components a command needs: the configured store, the
// builder and identity layers over it, and the gateway for queries.
type App struct {
	Config    config.Config
	Store     docstore.Store
	Builder   *graph.Builder
	Registry  *identity.Registry
	Directory *identity.Directory
	Gateway   *gateway.Gateway
	Taxonomy  *taxonomy.Taxonomy // nil when no taxonomy_dir is configured
	Logger    *slog.Logger

	closer func() error
}

// openApp builds an App from the root options. Close must be called
// when the command is done.
func openApp(opts *RootOptions) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}

	logger := newLogger(cfg.LogLevel, opts.Verbose)

	var store docstore.Store
	closer := func() error { return nil }
	switch cfg.Store {
	case config.BackendMemory:
		store = docstore.NewMemory()
	case config.BackendSQLite:
		db, err := docstore.OpenSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("opening database %s", cfg.DatabasePath), err)
		}
		store = db
		closer = db.Close
	}

	var tax *taxonomy.Taxonomy
	if cfg.TaxonomyDir != "" {
		tax, err = taxonomy.Load(cfg.TaxonomyDir)
		if err != nil {
			closer()
			return nil, WrapExitError(ExitCommandError, "loading taxonomy", err)
		}
	}

	builder := graph.NewBuilder(store, logger)
	return &App{
		Config:    cfg,
		Store:     store,
		Builder:   builder,
		Registry:  identity.NewRegistry(builder, logger),
		Directory: identity.NewDirectory(store),
		Gateway:   gateway.New(store, identity.NewResolver(store), logger),
		Taxonomy:  tax,
		Logger:    logger,
		closer:    closer,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.closer()
}

// warnUnknownTag emits a diagnostic when a sub_type tag is not declared
// in the loaded taxonomy. Undeclared tags are allowed; the taxonomy is
// advisory.
func (a *App) warnUnknownTag(f *OutputFormatter, kindTag, subType string) {
	if a.Taxonomy == nil {
		return
	}
	kind, err := record.DecodeKind(kindTag)
	if err != nil {
		return
	}
	if !a.Taxonomy.Known(kind, subType) {
		f.VerboseLog("warning: sub_type %q is not declared for kind %q", subType, kindTag)
	}
}

func newLogger(level string, verbose bool) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
