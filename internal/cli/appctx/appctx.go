// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, database opening, and wiring of the local
// stores, the remote client and the sync controller.
package appctx

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lherron/cartsync/internal/config"
	"github.com/lherron/cartsync/internal/db"
	"github.com/lherron/cartsync/internal/events"
	"github.com/lherron/cartsync/internal/identity"
	"github.com/lherron/cartsync/internal/kv"
	"github.com/lherron/cartsync/internal/logging"
	"github.com/lherron/cartsync/internal/reconcile"
	"github.com/lherron/cartsync/internal/remote"
	"github.com/lherron/cartsync/internal/render"
	"github.com/lherron/cartsync/internal/store"
)

// App holds the shared application context for commands.
type App struct {
	Config *config.Config
	Log    *logrus.Logger

	// DB is the local database holding the key-value table and event log.
	DB      *db.DB
	Storage kv.Storage
	Events  *events.Writer

	Store   *store.Store
	Remote  *remote.Client
	Session *identity.Session

	// Sync is nil unless Options.NeedsSync was set.
	Sync *reconcile.Controller

	Out *render.Renderer

	unsubscribe func()
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsSync starts the reconciliation controller so that local changes
	// and identity transitions reach the remote before the command exits.
	NeedsSync bool
}

// DefaultOptions returns options for commands that only read local state.
func DefaultOptions() Options {
	return Options{}
}

// WithSync returns options that start the sync controller.
func WithSync() Options {
	return Options{NeedsSync: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// Pending pushes are awaited and the database is closed when the wrapped
// function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		runErr := fn(app, cmd, args)
		closeErr := app.Close(context.Background())
		if runErr != nil {
			return runErr
		}
		return closeErr
	}
}

// Bootstrap loads configuration, applies persistent flag overrides and
// opens the App. Callers are responsible for calling App.Close when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return Open(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	overrides := []struct {
		flag string
		dst  *string
	}{
		{"db", &cfg.DBPath},
		{"api-url", &cfg.APIURL},
		{"output", &cfg.Output},
		{"log-level", &cfg.LogLevel},
	}
	for _, o := range overrides {
		if f := cmd.Flag(o.flag); f != nil {
			if v := f.Value.String(); v != "" {
				*o.dst = v
			}
		}
	}
}

// Open wires an App from an already loaded configuration. Command output
// goes to out and logs to logOut.
func Open(ctx context.Context, cfg *config.Config, out, logOut io.Writer, opts Options) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := logging.New(logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	format, err := render.ParseFormat(cfg.Output)
	if err != nil {
		return nil, err
	}

	database, err := db.OpenMigrated(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	app := &App{
		Config:  cfg,
		Log:     log,
		DB:      database,
		Storage: kv.NewSQLite(database, kv.DefaultNamespace),
		Events:  events.NewWriter(database.DB),
		Out:     render.NewRenderer(out, format),
	}

	app.Remote, err = remote.New(remote.Options{
		BaseURL: cfg.APIURL,
		Token:   cfg.APIToken,
		Timeout: cfg.RequestTimeout,
		Log:     log,
	})
	if err != nil {
		database.Close()
		return nil, err
	}

	app.Store = store.New(store.Options{Storage: app.Storage, Log: log})
	app.Store.Load(ctx)
	app.unsubscribe = app.Store.Bus().Subscribe(func(c events.Change) {
		if err := app.Events.LogChange(context.Background(), c); err != nil {
			log.WithError(err).Warn("failed to record change")
		}
	})

	app.Session, err = identity.NewSession(ctx, app.Storage)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	if opts.NeedsSync {
		app.Sync, err = reconcile.New(reconcile.Options{
			Store:        app.Store,
			Remote:       app.Remote,
			Storage:      app.Storage,
			Events:       app.Events,
			Log:          log,
			FetchFailure: reconcile.FetchFailurePolicy(cfg.FetchFailure),
			PushDebounce: cfg.PushDebounce,
		})
		if err != nil {
			app.Close(ctx)
			return nil, err
		}
		if err := app.Sync.Start(ctx, app.Session); err != nil {
			app.Close(ctx)
			return nil, err
		}
	}

	return app, nil
}

// Settle waits for the sync controller's queued work, bounded by twice the
// request timeout. It is a no-op without a controller.
func (a *App) Settle(ctx context.Context) error {
	if a.Sync == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*a.Config.RequestTimeout)
	defer cancel()
	return a.Sync.Wait(ctx)
}

// Close stops the controller, flushes local writes and releases the
// database. Safe to call multiple times.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.Sync != nil {
		closeCtx, cancel := context.WithTimeout(ctx, 2*a.Config.RequestTimeout)
		if err := a.Sync.Close(closeCtx); err != nil {
			firstErr = fmt.Errorf("sync did not finish: %w", err)
		}
		cancel()
		a.Sync = nil
	}
	if a.Store != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.Store.Flush(flushCtx); err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
	return firstErr
}

// Cart returns the local cart store.
func (a *App) Cart() *store.CartStore {
	return a.Store.Cart
}

// Wishlist returns the local wishlist store.
func (a *App) Wishlist() *store.WishlistStore {
	return a.Store.Wishlist
}
