package hash

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/eargollo/treesum/internal/scan"
)

// writeTree creates files under dir and returns the enumeration.
func writeTree(t *testing.T, dir string, files map[string]string) ([]scan.Entry, int64) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	entries, total, err := scan.Enumerate(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	return entries, total
}

func TestRun_oneResultPerFileInEnumerationOrder(t *testing.T) {
	dir := t.TempDir()
	entries, total := writeTree(t, dir, map[string]string{
		"b.txt":       "bravo",
		"a.txt":       "alpha",
		"sub/c.txt":   "charlie",
		"sub/d/e.txt": "echo",
	})

	res, err := Run(context.Background(), entries, total, &Options{Workers: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Results) != len(entries) {
		t.Fatalf("got %d results, want %d", len(res.Results), len(entries))
	}
	for i, r := range res.Results {
		if r.Index != i {
			t.Errorf("result %d has Index %d", i, r.Index)
		}
		if r.RelPath != entries[i].RelPath {
			t.Errorf("result %d path %q, want %q (enumeration order)", i, r.RelPath, entries[i].RelPath)
		}
		if r.Failed() {
			t.Errorf("result %d failed: %v", i, r.Err)
		}
	}
	if res.Succeeded != 4 || res.Failed != 0 {
		t.Errorf("Succeeded/Failed = %d/%d, want 4/0", res.Succeeded, res.Failed)
	}
}

func TestRun_deterministicAcrossWorkerCounts(t *testing.T) {
	dir := t.TempDir()
	files := make(map[string]string)
	for i := 0; i < 40; i++ {
		files[fmt.Sprintf("d%d/f%d.dat", i%5, i)] = fmt.Sprintf("content-%d", i)
	}
	entries, total := writeTree(t, dir, files)

	one, err := Run(context.Background(), entries, total, &Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run W=1: %v", err)
	}
	many, err := Run(context.Background(), entries, total, &Options{Workers: 32})
	if err != nil {
		t.Fatalf("Run W=32: %v", err)
	}
	if len(one.Results) != len(many.Results) {
		t.Fatalf("result counts differ: %d vs %d", len(one.Results), len(many.Results))
	}
	for i := range one.Results {
		a, b := one.Results[i], many.Results[i]
		if a.RelPath != b.RelPath || !bytes.Equal(a.Digest, b.Digest) {
			t.Errorf("result %d differs between W=1 and W=32: %q/%x vs %q/%x",
				i, a.RelPath, a.Digest, b.RelPath, b.Digest)
		}
	}
}

func TestRun_identicalContentSameDigestDifferentPaths(t *testing.T) {
	dir := t.TempDir()
	entries, total := writeTree(t, dir, map[string]string{
		"one.bin": "same bytes",
		"two.bin": "same bytes",
	})

	res, err := Run(context.Background(), entries, total, &Options{Workers: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	a, b := res.Results[0], res.Results[1]
	if !bytes.Equal(a.Digest, b.Digest) {
		t.Errorf("identical content, digests differ: %x vs %x", a.Digest, b.Digest)
	}
	if a.RelPath == b.RelPath {
		t.Errorf("paths should differ: %q", a.RelPath)
	}
}

func TestRun_digestDependsOnContentNotName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "before.dat")
	if err := os.WriteFile(path, []byte("stable content"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, total, err := scan.Enumerate(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	first, err := Run(context.Background(), entries, total, &Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if err := os.Rename(path, filepath.Join(dir, "after.dat")); err != nil {
		t.Fatalf("rename: %v", err)
	}
	entries, total, err = scan.Enumerate(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	second, err := Run(context.Background(), entries, total, &Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !bytes.Equal(first.Results[0].Digest, second.Results[0].Digest) {
		t.Error("digest changed after rename; it must depend on content only")
	}
	if first.Results[0].RelPath == second.Results[0].RelPath {
		t.Error("path should have changed after rename")
	}
}

func TestRun_emptyTreeSucceedsWithNoResults(t *testing.T) {
	res, err := Run(context.Background(), nil, 0, &Options{Workers: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Results) != 0 || res.Succeeded != 0 || res.Failed != 0 || res.BytesHashed != 0 {
		t.Errorf("empty tree: %+v, want all zero", res)
	}
}

func TestRun_zeroByteFileHashesEmptyInput(t *testing.T) {
	dir := t.TempDir()
	entries, total := writeTree(t, dir, map[string]string{"empty": ""})

	res, err := Run(context.Background(), entries, total, &Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := blake2b.Sum512(nil)
	if !bytes.Equal(res.Results[0].Digest, want[:]) {
		t.Errorf("digest = %s, want blake2b-512 of empty input",
			hex.EncodeToString(res.Results[0].Digest))
	}
}

func TestRun_bytesHashedEqualsSumOfSuccessfulSizes(t *testing.T) {
	dir := t.TempDir()
	entries, total := writeTree(t, dir, map[string]string{
		"a": "12345",
		"b": "1234567890",
		"c": "",
	})

	res, err := Run(context.Background(), entries, total, &Options{Workers: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.BytesHashed != 15 {
		t.Errorf("BytesHashed = %d, want 15", res.BytesHashed)
	}
	if res.BytesHashed != total {
		t.Errorf("BytesHashed = %d, want enumerated total %d", res.BytesHashed, total)
	}
}

func TestRun_unreadableFileBecomesAccessFailureRunContinues(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root; permission checks are bypassed")
	}
	dir := t.TempDir()
	entries, total := writeTree(t, dir, map[string]string{
		"locked.txt": "secret",
		"open.txt":   "public",
	})
	if err := os.Chmod(filepath.Join(dir, "locked.txt"), 0000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(dir, "locked.txt"), 0644) })

	res, err := Run(context.Background(), entries, total, &Options{Workers: 2})
	if err != nil {
		t.Fatalf("Run must not fail on a per-file error: %v", err)
	}
	if res.Failed != 1 || res.Succeeded != 1 {
		t.Fatalf("Succeeded/Failed = %d/%d, want 1/1", res.Succeeded, res.Failed)
	}
	for _, r := range res.Results {
		switch r.RelPath {
		case "locked.txt":
			if !r.Failed() || r.Kind != KindAccess {
				t.Errorf("locked.txt: kind = %v, err = %v, want access failure", r.Kind, r.Err)
			}
			if r.Digest != nil {
				t.Error("locked.txt: digest must be nil on failure")
			}
		case "open.txt":
			if r.Failed() {
				t.Errorf("open.txt should still hash: %v", r.Err)
			}
		}
	}
}

func TestRun_enumerationPlaceholderResolvedAsFailure(t *testing.T) {
	dir := t.TempDir()
	entries, total := writeTree(t, dir, map[string]string{"ok.txt": "fine"})
	placeholder := scan.Entry{
		Index:   1,
		RelPath: "ghost.txt",
		AbsPath: filepath.Join(dir, "ghost.txt"),
		Err:     errors.New("permission denied"),
	}
	entries = append(entries, placeholder)

	res, err := Run(context.Background(), entries, total, &Options{Workers: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(res.Results))
	}
	ghost := res.Results[1]
	if !ghost.Failed() || ghost.Kind != KindAccess || ghost.RelPath != "ghost.txt" {
		t.Errorf("placeholder result = %+v, want access failure for ghost.txt", ghost)
	}
}

func TestRun_rejectsNonPositiveWorkers(t *testing.T) {
	for _, w := range []int{0, -1} {
		_, err := Run(context.Background(), nil, 0, &Options{Workers: w})
		if err == nil {
			t.Errorf("Workers = %d: err = nil, want configuration error", w)
		}
	}
}

func TestRun_cancelledContextDiscardsResults(t *testing.T) {
	dir := t.TempDir()
	files := make(map[string]string)
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("f%d", i)] = "x"
	}
	entries, total := writeTree(t, dir, files)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, entries, total, &Options{Workers: 2})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if res != nil {
		t.Error("res should be nil on cancellation (all-or-nothing)")
	}
}

func TestRun_finalSnapshotReportsCompletion(t *testing.T) {
	dir := t.TempDir()
	entries, total := writeTree(t, dir, map[string]string{
		"a": "aaaa",
		"b": "bbbbbb",
	})

	var snaps []Snapshot
	res, err := Run(context.Background(), entries, total, &Options{
		Workers:    2,
		OnProgress: func(s Snapshot) { snaps = append(snaps, s) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(snaps) == 0 {
		t.Fatal("no snapshots delivered")
	}
	last := snaps[len(snaps)-1]
	if last.BytesDone != total || last.BytesDone != res.BytesHashed {
		t.Errorf("final BytesDone = %d, want %d", last.BytesDone, total)
	}
	if last.FilesDone != 2 || last.FilesTotal != 2 {
		t.Errorf("final FilesDone/FilesTotal = %d/%d, want 2/2", last.FilesDone, last.FilesTotal)
	}
	if last.Percent() != 100 {
		t.Errorf("final Percent() = %v, want 100", last.Percent())
	}
	var prev int64
	for i, s := range snaps {
		if s.BytesDone < prev {
			t.Errorf("snapshot %d: BytesDone decreased %d -> %d", i, prev, s.BytesDone)
		}
		prev = s.BytesDone
	}
}

func TestRun_throttleDelaysFileStarts(t *testing.T) {
	dir := t.TempDir()
	entries, total := writeTree(t, dir, map[string]string{
		"a": "x", "b": "x", "c": "x",
	})

	start := time.Now()
	if _, err := Run(context.Background(), entries, total, &Options{Workers: 2, MaxFilesPerSecond: 5}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Errorf("throttle 5/s with 3 files: elapsed %v, want >= 400ms", elapsed)
	}
}

func TestRun_repeatedRunsBitIdentical(t *testing.T) {
	dir := t.TempDir()
	files := make(map[string]string)
	for i := 0; i < 15; i++ {
		files[fmt.Sprintf("n%02d.txt", i)] = fmt.Sprintf("payload %d", i)
	}
	entries, total := writeTree(t, dir, files)

	var prev []string
	for run := 0; run < 3; run++ {
		res, err := Run(context.Background(), entries, total, &Options{Workers: 8})
		if err != nil {
			t.Fatalf("Run %d: %v", run, err)
		}
		lines := make([]string, len(res.Results))
		for i, r := range res.Results {
			lines[i] = r.RelPath + "," + hex.EncodeToString(r.Digest)
		}
		if prev != nil {
			for i := range lines {
				if lines[i] != prev[i] {
					t.Fatalf("run %d line %d differs: %q vs %q", run, i, lines[i], prev[i])
				}
			}
		}
		prev = lines
	}
}
