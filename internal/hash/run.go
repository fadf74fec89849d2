package hash

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/eargollo/treesum/internal/scan"
	"golang.org/x/time/rate"
)

const (
	// defaultQueueDepthPerWorker sizes the bounded job channel: a small
	// multiple of the worker count so a slow pool exerts backpressure on
	// the producer instead of buffering the whole tree.
	defaultQueueDepthPerWorker = 4
	defaultProgressInterval    = 200 * time.Millisecond
)

// EnvQueueDepth overrides the job channel capacity. Unset = 4 per worker.
const EnvQueueDepth = "TREESUM_QUEUE_DEPTH"

func queueDepth(workers int) int {
	if s := os.Getenv(EnvQueueDepth); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return defaultQueueDepthPerWorker * workers
}

// ErrorKind classifies a per-file failure.
type ErrorKind int

const (
	// KindAccess covers failures before any content was read: permission
	// denied, file vanished between enumeration and open, broken symlink.
	KindAccess ErrorKind = iota + 1
	// KindRead covers I/O errors mid-stream; any partial digest is discarded.
	KindRead
)

func (k ErrorKind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRead:
		return "read"
	default:
		return "unknown"
	}
}

// Result is the outcome for exactly one enumerated file. Digest is nil iff
// Err is non-nil. Size is the number of bytes actually hashed.
type Result struct {
	Index   int
	RelPath string
	Size    int64
	Digest  []byte
	Kind    ErrorKind
	Err     error
}

// Failed reports whether this is a failure result.
func (r Result) Failed() bool { return r.Err != nil }

// RunResult is the ordered outcome of one run: Results[i] corresponds to the
// i-th enumerated file, independent of worker completion order.
type RunResult struct {
	Results     []Result
	Succeeded   int
	Failed      int
	BytesHashed int64 // sum of successfully hashed files' sizes
	Elapsed     time.Duration
}

// Options configures the hash pipeline. Nil means defaults.
type Options struct {
	Workers           int           // parallel workers; must be >= 1
	ChunkBytes        int           // read chunk size (0 = DefaultChunkBytes or env override)
	MaxFilesPerSecond int           // 0 = no throttle
	OnProgress        Sink          // periodic snapshots; nil = no reporting
	ProgressInterval  time.Duration // 0 = defaultProgressInterval
}

func (o *Options) workers() int {
	if o == nil {
		return 1
	}
	return o.Workers
}

func (o *Options) chunkBytes() int {
	if o != nil && o.ChunkBytes > 0 {
		return o.ChunkBytes
	}
	return chunkBytesFromEnv()
}

func (o *Options) maxFilesPerSecond() int {
	if o == nil {
		return 0
	}
	return o.MaxFilesPerSecond
}

func (o *Options) progressInterval() time.Duration {
	if o != nil && o.ProgressInterval > 0 {
		return o.ProgressInterval
	}
	return defaultProgressInterval
}

// Run hashes every enumerated file with a pool of workers and returns results
// in enumeration order. Per-file failures become failure Results and never
// abort the run; Run itself fails only on invalid options, context
// cancellation, or an internal accounting mismatch. On cancellation the
// partial results are discarded.
//
// One producer streams tasks into a bounded channel, W workers consume, and
// the results are placed into a slice indexed by enumeration position, so
// output order never depends on worker scheduling.
func Run(ctx context.Context, entries []scan.Entry, totalBytes int64, opts *Options) (*RunResult, error) {
	w := opts.workers()
	if w < 1 {
		return nil, fmt.Errorf("workers must be >= 1 (got %d)", w)
	}
	chunk := opts.chunkBytes()
	start := time.Now()
	progress := NewProgress(int64(len(entries)), totalBytes)

	out := make([]Result, len(entries))

	// Entries that already failed during enumeration are resolved up front;
	// only readable files are dispatched to workers.
	tasks := make([]scan.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Err != nil {
			log.Printf("[hash] failed (access) %s: %v", e.RelPath, e.Err)
			out[e.Index] = Result{Index: e.Index, RelPath: e.RelPath, Kind: KindAccess, Err: e.Err}
			progress.FilesFailed.Add(1)
			continue
		}
		tasks = append(tasks, e)
	}

	// Reporter: its own ticker so rendering cadence is independent of task
	// completions. Stopped (and waited for) before the final snapshot so the
	// sink is never called concurrently.
	var stopReporter func()
	if sink := opts.OnProgress; sink != nil {
		stop := make(chan struct{})
		stopped := make(chan struct{})
		go func() {
			defer close(stopped)
			ticker := time.NewTicker(opts.progressInterval())
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					sink(progress.Snapshot())
				}
			}
		}()
		stopReporter = func() { close(stop); <-stopped }
	}

	jobs := make(chan scan.Entry, queueDepth(w))
	results := make(chan Result, w)

	// Producer: enumeration order in, bounded channel for backpressure.
	go func() {
		defer close(jobs)
		for _, e := range tasks {
			select {
			case jobs <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	var limiter *rate.Limiter
	if n := opts.maxFilesPerSecond(); n > 0 {
		limiter = rate.NewLimiter(rate.Limit(n), 1)
	}

	var wg sync.WaitGroup
	for i := 0; i < w; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(ctx, jobs, results, progress, chunk, limiter)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	received := 0
	for r := range results {
		out[r.Index] = r
		received++
	}

	if stopReporter != nil {
		stopReporter()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if received != len(tasks) {
		return nil, fmt.Errorf("pipeline lost results: got %d, want %d", received, len(tasks))
	}
	// Deliver the final 100% state even when the run outpaces the ticker.
	if sink := opts.OnProgress; sink != nil {
		sink(progress.Snapshot())
	}

	rr := &RunResult{Results: out, Elapsed: time.Since(start)}
	for i := range out {
		if out[i].Failed() {
			rr.Failed++
		} else {
			rr.Succeeded++
			rr.BytesHashed += out[i].Size
		}
	}
	return rr, nil
}

// runWorker pulls tasks until the jobs channel closes, hashing one file at a
// time. A file's failure never aborts the worker.
func runWorker(ctx context.Context, jobs <-chan scan.Entry, results chan<- Result, progress *Progress, chunkBytes int, limiter *rate.Limiter) {
	for e := range jobs {
		if ctx.Err() != nil {
			return
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
		r := hashOne(e, chunkBytes, progress)
		if r.Failed() {
			progress.FilesFailed.Add(1)
			log.Printf("[hash] failed (%s) %s: %v", r.Kind, e.RelPath, r.Err)
		} else {
			progress.FilesDone.Add(1)
		}
		results <- r
	}
}

func hashOne(e scan.Entry, chunkBytes int, progress *Progress) Result {
	f, err := os.Open(e.AbsPath)
	if err != nil {
		return Result{Index: e.Index, RelPath: e.RelPath, Kind: KindAccess, Err: err}
	}
	defer f.Close()
	digest, n, err := Sum(f, chunkBytes, func(n int64) {
		progress.BytesDone.Add(n)
	})
	if err != nil {
		return Result{Index: e.Index, RelPath: e.RelPath, Kind: KindRead, Err: err}
	}
	return Result{Index: e.Index, RelPath: e.RelPath, Size: n, Digest: digest}
}
