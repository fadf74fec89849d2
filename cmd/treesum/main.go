// Command treesum computes a BLAKE2b hash for every regular file under a
// directory and writes an ordered manifest (relative path, hex digest) to a
// CSV file, stdout, or a SQLite database.
//
//	treesum [flags] DIRECTORY
//
// The manifest is reproducible: repeated runs over an unchanged tree produce
// byte-identical output regardless of worker count or scheduling. Unreadable
// files are recorded as failures and logged; they do not abort the run and
// do not affect the exit status.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/eargollo/treesum/internal/config"
	"github.com/eargollo/treesum/internal/hash"
	"github.com/eargollo/treesum/internal/manifest"
	"github.com/eargollo/treesum/internal/progress"
	"github.com/eargollo/treesum/internal/scan"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("treesum: %v", err)
	}
}

func parseFlags(args []string) (*config.Config, error) {
	fs := pflag.NewFlagSet("treesum", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: treesum [flags] DIRECTORY\n\nFlags:\n%s", fs.FlagUsages())
	}

	cfg := &config.Config{}
	fs.StringVarP(&cfg.Output, "output", "o", config.DefaultOutput, `manifest destination ("-" for stdout)`)
	fs.StringVar(&cfg.Format, "format", config.FormatCSV, "manifest format: csv or sqlite")
	fs.IntVarP(&cfg.Workers, "workers", "w", config.DefaultWorkers(), "number of parallel hash workers")
	fs.IntVar(&cfg.MaxFilesPerSecond, "max-files-per-second", 0, "throttle file starts per second (0 = unlimited)")
	fs.BoolVar(&cfg.SkipSymlinks, "skip-symlinks", false, "skip symlinks to regular files instead of hashing them")
	fs.StringSliceVar(&cfg.ExcludePatterns, "exclude", nil, "exclude pattern (glob on base name, or path segment); repeatable")
	excludeFrom := fs.String("exclude-from", "", "file with one exclude pattern per line (# comments)")
	fs.BoolVar(&cfg.NoProgress, "no-progress", false, "disable the live progress bar")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	cfg.Root = fs.Arg(0)

	if *excludeFrom != "" {
		patterns, err := scan.LoadExcludeFile(*excludeFrom)
		if err != nil {
			return nil, fmt.Errorf("exclude file: %w", err)
		}
		cfg.ExcludePatterns = append(cfg.ExcludePatterns, patterns...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	log.Printf("[scan] scanning %s", cfg.Root)
	entries, totalBytes, err := scan.Enumerate(ctx, cfg.Root, &scan.Options{
		ExcludePatterns: cfg.ExcludePatterns,
		SkipSymlinks:    cfg.SkipSymlinks,
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, scan.ErrNotADirectory) {
			return fmt.Errorf("%s: %w", cfg.Root, err)
		}
		return err
	}
	log.Printf("[scan] found %d files (%s) using %d worker(s)",
		len(entries), humanize.IBytes(uint64(totalBytes)), cfg.Workers)

	opts := &hash.Options{
		Workers:           cfg.Workers,
		MaxFilesPerSecond: cfg.MaxFilesPerSecond,
	}
	var bar *progress.Bar
	if !cfg.NoProgress {
		bar = progress.NewBar(totalBytes)
		opts.OnProgress = bar.Update
	}
	res, err := hash.Run(ctx, entries, totalBytes, opts)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	if err := writeManifest(ctx, cfg, res); err != nil {
		// Distinct from per-file failures: the hashes were computed but
		// could not be persisted; they are discarded.
		return fmt.Errorf("write manifest: %w", err)
	}

	logSummary(cfg, res)
	return nil
}

func writeManifest(ctx context.Context, cfg *config.Config, res *hash.RunResult) error {
	switch cfg.Format {
	case config.FormatSQLite:
		root, err := filepath.Abs(cfg.Root)
		if err != nil {
			root = cfg.Root
		}
		return manifest.WriteSQLite(ctx, cfg.Output, root, res)
	default:
		return manifest.WriteCSVFile(cfg.Output, res.Results)
	}
}

func logSummary(cfg *config.Config, res *hash.RunResult) {
	elapsed := res.Elapsed
	throughput := float64(res.BytesHashed)
	if sec := elapsed.Seconds(); sec > 0 {
		throughput /= sec
	}
	log.Printf("[hash] completed %d/%d files (%s) in %s, %s/s",
		res.Succeeded, len(res.Results), humanize.IBytes(uint64(res.BytesHashed)),
		elapsed.Round(10*time.Millisecond), humanize.IBytes(uint64(throughput)))
	if res.Failed > 0 {
		log.Printf("[hash] %d file(s) failed (see warnings above)", res.Failed)
	}
	dest := cfg.Output
	if dest == "-" {
		dest = "standard output"
	}
	log.Printf("[hash] manifest written to %s", dest)
}
