package hash

import (
	"sync/atomic"
	"time"
)

// Progress holds the live counters shared by all workers. The counters are
// atomic so workers increment and the reporter reads without locks; they are
// monotonically non-decreasing for the lifetime of one run. Totals are fixed
// at construction (enumeration is complete before hashing starts).
type Progress struct {
	BytesDone   atomic.Int64 // bytes hashed so far, including partial reads of files that later fail
	FilesDone   atomic.Int64 // files hashed successfully
	FilesFailed atomic.Int64 // files that produced a failure result

	filesTotal int64
	bytesTotal int64
	start      time.Time
}

// NewProgress returns a Progress with the given totals, started now.
func NewProgress(filesTotal, bytesTotal int64) *Progress {
	return &Progress{filesTotal: filesTotal, bytesTotal: bytesTotal, start: time.Now()}
}

// Snapshot is a point-in-time copy of the counters, safe to use after the
// run has moved on.
type Snapshot struct {
	BytesDone   int64
	BytesTotal  int64
	FilesDone   int64
	FilesFailed int64
	FilesTotal  int64
	Elapsed     time.Duration
}

// Snapshot reads the counters without blocking workers.
func (p *Progress) Snapshot() Snapshot {
	return Snapshot{
		BytesDone:   p.BytesDone.Load(),
		BytesTotal:  p.bytesTotal,
		FilesDone:   p.FilesDone.Load(),
		FilesFailed: p.FilesFailed.Load(),
		FilesTotal:  p.filesTotal,
		Elapsed:     time.Since(p.start),
	}
}

// Percent returns bytes-based completion in [0, 100]. 0 when there is
// nothing to hash.
func (s Snapshot) Percent() float64 {
	if s.BytesTotal <= 0 {
		return 0
	}
	pct := 100 * float64(s.BytesDone) / float64(s.BytesTotal)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Throughput returns bytes per second averaged since the run started,
// 0 when no time has elapsed.
func (s Snapshot) Throughput() float64 {
	sec := s.Elapsed.Seconds()
	if sec <= 0 {
		return 0
	}
	return float64(s.BytesDone) / sec
}

// ETA estimates the remaining duration from the average throughput.
// ok is false when throughput is zero and no estimate exists.
func (s Snapshot) ETA() (eta time.Duration, ok bool) {
	rate := s.Throughput()
	if rate <= 0 {
		return 0, false
	}
	remaining := s.BytesTotal - s.BytesDone
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(float64(remaining) / rate * float64(time.Second)), true
}

// Sink consumes periodic progress snapshots. The pipeline calls it from a
// single goroutine, never concurrently.
type Sink func(Snapshot)
