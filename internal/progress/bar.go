// Package progress renders pipeline snapshots as a live terminal status
// line. It only consumes snapshots; it never touches the pipeline's counters
// or timing.
package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/eargollo/treesum/internal/hash"
)

// Bar is a byte-based progress bar for one run. It writes to stderr so a
// manifest streamed to stdout stays clean.
type Bar struct {
	bar *progressbar.ProgressBar
}

// NewBar returns a bar sized to the run's total bytes. Rendering is
// throttled by the bar itself; Update can be called at any cadence.
func NewBar(totalBytes int64) *Bar {
	b := progressbar.NewOptions64(
		totalBytes,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("hashing"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(120*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	_ = b.RenderBlank()
	return &Bar{bar: b}
}

// Update renders the snapshot. Safe to use as a hash.Sink.
func (b *Bar) Update(s hash.Snapshot) {
	processed := s.FilesDone + s.FilesFailed
	desc := fmt.Sprintf("hashing %d/%d files", processed, s.FilesTotal)
	if s.FilesFailed > 0 {
		desc = fmt.Sprintf("hashing %d/%d files (%d failed)", processed, s.FilesTotal, s.FilesFailed)
	}
	b.bar.Describe(desc)
	_ = b.bar.Set64(s.BytesDone)
}

// Finish completes and clears the bar. Call after the run ends, before the
// summary is logged.
func (b *Bar) Finish() {
	_ = b.bar.Finish()
}
