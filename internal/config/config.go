package config

import (
	"errors"
	"fmt"
	"runtime"
)

// Output formats accepted by --format.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Default values when a flag is unset.
const (
	DefaultOutput = "dir_hashes_blake2.csv"
	// MaxDefaultWorkers caps the automatic worker count on very wide machines;
	// beyond this the run is I/O bound and extra workers only add contention.
	MaxDefaultWorkers = 32
)

// DefaultWorkers returns min(available CPUs, MaxDefaultWorkers). An explicit
// --workers value overrides this.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > MaxDefaultWorkers {
		n = MaxDefaultWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Config holds one run's configuration as assembled by the CLI layer.
type Config struct {
	Root              string   // directory to hash
	Output            string   // manifest destination; "-" means stdout (csv only)
	Format            string   // FormatCSV or FormatSQLite
	Workers           int      // parallel hash workers, must be >= 1
	MaxFilesPerSecond int      // 0 = no throttle
	SkipSymlinks      bool     // skip symlinks to regular files instead of hashing them
	ExcludePatterns   []string // glob-on-basename or path-segment patterns
	NoProgress        bool     // suppress the live progress bar
}

// Validate checks the configuration before any work starts. All violations
// here are fatal; nothing is enumerated or hashed on error.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("directory is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1 (got %d)", c.Workers)
	}
	if c.Format != FormatCSV && c.Format != FormatSQLite {
		return fmt.Errorf("unknown format %q (want %q or %q)", c.Format, FormatCSV, FormatSQLite)
	}
	if c.Format == FormatSQLite && c.Output == "-" {
		return errors.New("sqlite format cannot be written to stdout")
	}
	if c.MaxFilesPerSecond < 0 {
		return fmt.Errorf("max-files-per-second must be >= 0 (got %d)", c.MaxFilesPerSecond)
	}
	return nil
}
