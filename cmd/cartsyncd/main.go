package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lherron/cartsync/internal/cli"
)

func main() {
	addr := flag.String("addr", os.Getenv("CARTSYNCD_ADDR"), "Listen address (default 127.0.0.1:7272)")
	token := flag.String("token", os.Getenv("CARTSYNCD_TOKEN"), "Bearer token required by clients")
	dbPath := flag.String("db", os.Getenv("CARTSYNCD_DB_PATH"), "Database path (defaults to cartsyncd.db beside the client database)")
	seed := flag.Bool("seed", false, "Fill an empty catalog with demo products")
	noSale := flag.Bool("no-sale", false, "Do not run the default flash sale")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	opts := cli.ServeOptions{
		Addr:     *addr,
		Token:    *token,
		DBPath:   *dbPath,
		Seed:     *seed,
		NoSale:   *noSale,
		LogLevel: *logLevel,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Serve(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
