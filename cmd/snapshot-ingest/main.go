// Command snapshot-ingest fetches a (archive, timestamp, suite,
// component, architecture) selection from an upstream snapshot service,
// verifies and stores every referenced file, and records its provenance
// in the database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/fepitre/debian-snapshot/internal/config"
	"github.com/fepitre/debian-snapshot/internal/fetch"
	"github.com/fepitre/debian-snapshot/internal/ingest"
	"github.com/fepitre/debian-snapshot/internal/layout"
	"github.com/fepitre/debian-snapshot/internal/store"
)

var (
	errPrefix  = color.New(color.FgRed, color.Bold).Sprint("[error]")
	warnPrefix = color.New(color.FgYellow).Sprint("[warn]")
	infoPrefix = color.New(color.FgCyan).Sprint("[info]")
)

func main() {
	cfg := config.Default()
	fs := flag.NewFlagSet("snapshot-ingest", flag.ExitOnError)
	config.RegisterIngestFlags(fs, &cfg)
	verbose := fs.BoolP("verbose", "v", false, "log per-tuple progress")
	debug := fs.Bool("debug", false, "log per-file fetch decisions")
	fs.Parse(os.Args[1:])

	if cfg.Root == "" {
		fmt.Fprintln(os.Stderr, "snapshot-ingest: --root is required")
		os.Exit(2)
	}

	if len(cfg.Archives) == 0 {
		cfg.Archives = []string{"debian"}
	}
	if len(cfg.Suites) == 0 {
		cfg.Suites = []string{"unstable"}
	}
	if len(cfg.Components) == 0 {
		cfg.Components = []string{"main"}
	}
	if len(cfg.Timestamps) == 0 {
		cfg.Timestamps = []string{"latest"}
	}

	lay := layout.New(cfg.Upstream, cfg.Root)
	fc := fetch.NewClient(nil, 16, 4, 0, 256)

	st, err := store.Open(cfg.DBUrl)
	if err != nil {
		log.Fatalf("%s open store: %v", errPrefix, err)
	}

	pipeline := ingest.New(lay, fc, st)

	sel := ingest.Selection{
		Archives:   cfg.Archives,
		Suites:     cfg.Suites,
		Components: cfg.Components,
		Timestamps: cfg.Timestamps,
		// Architectures left nil: the pipeline intersects the selection
		// against whatever Release advertises for each tuple.
	}

	var bar *progressbar.ProgressBar
	if !*verbose && !*debug {
		bar = progressbar.Default(-1, "fetching files")
	}

	opts := ingest.Options{
		CheckOnly:          false,
		ProvisionDBOnly:    cfg.ProvisionDBOnly,
		IgnoreProvisioned:  cfg.IgnoreProvisioned,
		SkipInstallerFiles: !cfg.IncludeInstaller,
		NoCleanPartFile:    cfg.NoCleanPartFile,
		Workers:            cfg.Workers,
	}
	if bar != nil {
		opts.OnFileDone = func() { _ = bar.Add(1) }
	}

	if cfg.DryRun {
		timestamps, err := ingest.ResolveTimestamps(context.Background(), fc, lay, cfg.Archives[0], cfg.Timestamps)
		if err != nil {
			log.Fatalf("%s resolve timestamps: %v", errPrefix, err)
		}
		fmt.Printf("would ingest %d timestamp(s): %v\n", len(timestamps), timestamps)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *verbose {
		log.Printf("%s ingesting archives=%v suites=%v components=%v timestamps=%v",
			infoPrefix, cfg.Archives, cfg.Suites, cfg.Components, cfg.Timestamps)
	}

	summary, err := pipeline.Run(ctx, sel, opts)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		log.Printf("%s ingestion aborted: %v", errPrefix, err)
		os.Exit(1)
	}

	failed := 0
	for _, t := range summary.Tuples {
		failed += t.FilesFailed
		if *debug {
			for _, f := range t.Failures {
				log.Printf("%s %s/%s/%s %s: %v", warnPrefix, t.Archive, t.Timestamp, t.Suite, f.RepoPath, f.Err)
			}
		}
	}
	if failed > 0 {
		log.Printf("%s %d file(s) failed across %d tuple(s)", warnPrefix, failed, len(summary.Tuples))
		os.Exit(1)
	}
}
