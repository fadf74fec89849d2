package scan

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotADirectory is returned by Enumerate when root exists but is not a directory.
var ErrNotADirectory = errors.New("root path is not a directory")

// Entry is one enumerated file. Index is the enumeration position and the
// canonical output-ordering key; workers finish out of order but results are
// emitted in Index order. RelPath is slash-separated and relative to the scan
// root so manifests are comparable across machines.
//
// Err is set when the entry could not be read during enumeration (permission
// denied, broken symlink, race-deleted). Such entries are placeholders: they
// are never dispatched to a worker and surface as failures in the result set.
type Entry struct {
	Index   int
	RelPath string
	AbsPath string
	Size    int64
	Err     error
}

// Options configures enumeration.
type Options struct {
	// ExcludePatterns are matched with ShouldExclude; excluded directories
	// are not descended into.
	ExcludePatterns []string
	// SkipSymlinks skips symlinks to regular files. By default such links
	// are hashed like any other file. Symlinked directories are never
	// descended into regardless of this setting (cycle avoidance).
	SkipSymlinks bool
}

// Enumerate walks root and returns every regular file in a deterministic
// order (depth-first, entries sorted by name within each directory, as
// filepath.WalkDir guarantees). It also returns the total byte size of the
// returned files, which the pipeline uses for progress totals.
//
// Directories, sockets, devices and fifos are not yielded. Unreadable
// entries yield placeholder Entries with Err set instead of aborting the
// walk. If root does not exist or is not a directory, Enumerate fails
// before yielding anything.
func Enumerate(ctx context.Context, root string, opts *Options) ([]Entry, int64, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, 0, err
	}
	if !info.IsDir() {
		return nil, 0, ErrNotADirectory
	}

	var patterns []string
	skipSymlinks := false
	if opts != nil {
		patterns = opts.ExcludePatterns
		skipSymlinks = opts.SkipSymlinks
	}

	var entries []Entry
	var totalBytes int64

	add := func(path string, size int64, entryErr error) {
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		entries = append(entries, Entry{
			Index:   len(entries),
			RelPath: filepath.ToSlash(rel),
			AbsPath: path,
			Size:    size,
			Err:     entryErr,
		})
		totalBytes += size
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Unreadable entry or directory: record a placeholder and keep
			// walking. WalkDir already skips the children of a directory
			// whose ReadDir failed.
			add(path, 0, err)
			return nil
		}
		if d.IsDir() {
			if path != root && ShouldExclude(path, patterns) {
				return fs.SkipDir
			}
			return nil
		}
		if ShouldExclude(path, patterns) {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if skipSymlinks {
				return nil
			}
			// Follow the link for files only; a symlinked directory is
			// never descended into.
			target, statErr := os.Stat(path)
			if statErr != nil {
				add(path, 0, statErr) // broken link
				return nil
			}
			if !target.Mode().IsRegular() {
				return nil
			}
			add(path, target.Size(), nil)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, infoErr := d.Info()
		if infoErr != nil {
			add(path, 0, infoErr) // deleted between ReadDir and Lstat
			return nil
		}
		add(path, fi.Size(), nil)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return entries, totalBytes, nil
}
