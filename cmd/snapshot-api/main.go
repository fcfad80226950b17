// Command snapshot-api serves the read-only provenance query API (C7)
// and the buildinfo solver endpoint (C8) over the database populated by
// snapshot-ingest.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/fepitre/debian-snapshot/internal/api"
	"github.com/fepitre/debian-snapshot/internal/config"
	"github.com/fepitre/debian-snapshot/internal/layout"
	"github.com/fepitre/debian-snapshot/internal/store"
)

var errPrefix = color.New(color.FgRed, color.Bold).Sprint("[error]")
var infoPrefix = color.New(color.FgCyan).Sprint("[info]")

func main() {
	cfg := config.Default()
	fs := flag.NewFlagSet("snapshot-api", flag.ExitOnError)
	config.RegisterAPIFlags(fs, &cfg)
	fs.Parse(os.Args[1:])

	st, err := store.Open(cfg.DBUrl)
	if err != nil {
		log.Fatalf("%s open store: %v", errPrefix, err)
	}

	lay := layout.New(cfg.Upstream, cfg.Root)
	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      api.New(st, lay),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("%s listening on %s", infoPrefix, cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("%s serve: %v", errPrefix, err)
	}
}
