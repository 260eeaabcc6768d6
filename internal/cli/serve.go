package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/cartsync/internal/backend"
	"github.com/lherron/cartsync/internal/config"
	"github.com/lherron/cartsync/internal/db"
	"github.com/lherron/cartsync/internal/logging"
	"github.com/lherron/cartsync/internal/server"
)

// ServeOptions configures the API server. Empty fields fall back to
// configuration.
type ServeOptions struct {
	Addr  string
	Token string
	// DBPath is the server database. It defaults to cartsyncd.db beside
	// the client database so the two never share user state.
	DBPath   string
	Seed     bool
	NoSale   bool
	LogLevel string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog and user data API server",
	Long: `Serves products, categories, the flash sale and per-user carts and
wishlists under /api/v1 until interrupted.

Examples:
  cartsync serve --seed
  cartsync serve --addr :8080 --token s3cret`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveOpts ServeOptions

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveOpts.Addr, "addr", "", "Listen address (overrides CARTSYNC_SERVER_ADDR)")
	serveCmd.Flags().StringVar(&serveOpts.Token, "token", "", "Bearer token required by clients (overrides CARTSYNC_SERVER_TOKEN)")
	serveCmd.Flags().BoolVar(&serveOpts.Seed, "seed", false, "Fill an empty catalog with demo products")
	serveCmd.Flags().BoolVar(&serveOpts.NoSale, "no-sale", false, "Do not run the default flash sale")
}

func runServe(cmd *cobra.Command, args []string) error {
	opts := serveOpts
	if dbPath := cmd.Flag("db").Value.String(); dbPath != "" {
		opts.DBPath = dbPath
	}
	opts.LogLevel = cmd.Flag("log-level").Value.String()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Serve(ctx, opts)
}

// Serve runs the API server until ctx is canceled.
func Serve(ctx context.Context, opts ServeOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.Addr == "" {
		opts.Addr = cfg.ServerAddr
	}
	if opts.Token == "" {
		opts.Token = cfg.ServerToken
	}
	if opts.DBPath == "" {
		opts.DBPath = filepath.Join(filepath.Dir(cfg.DBPath), "cartsyncd.db")
	}
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	} else if level == "warn" {
		level = "info"
	}

	log, err := logging.New(os.Stderr, level, cfg.LogFormat)
	if err != nil {
		return err
	}

	database, err := db.OpenMigrated(opts.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	var sale *backend.FlashSale
	if !opts.NoSale {
		sale = backend.DefaultFlashSale(time.Now())
	}
	store := backend.New(database, sale)

	if opts.Seed {
		n, err := store.Catalog.Seed(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			log.WithField("products", n).Info("seeded catalog")
		}
	}

	srv, err := server.New(server.Options{
		Store: store,
		Token: opts.Token,
		Rate:  cfg.ServerRate,
		Burst: cfg.ServerBurst,
		Log:   log,
	})
	if err != nil {
		return err
	}
	log.WithField("db", opts.DBPath).Info("starting server")
	return srv.ListenAndServe(ctx, opts.Addr)
}
