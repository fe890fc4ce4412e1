package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Options configures the progress reporter.
type Options struct {
	// TotalSize is the total number of bytes to verify.
	TotalSize int64

	// TotalBlocks is the total number of blocks.
	TotalBlocks int

	// Workers is the number of parallel workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// SourceURL is the remote being verified (for display).
	SourceURL string

	// BlockSize is the size of each block (for display).
	BlockSize int64
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu            sync.Mutex
	checkedBytes  atomic.Int64
	passedBlocks  atomic.Int32
	failedBlocks  atomic.Int32
	erroredBlocks atomic.Int32
	skippedBlocks atomic.Int32
	skippedBytes  atomic.Int64
	inProgress    atomic.Int32
	startTime     time.Time
	lastUpdate    time.Time
	lastBytes     int64
	stopCh        chan struct{}
	doneCh        chan struct{}
	started       bool
	stopped       bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[rangecheck] Verifying: %s\n", r.opts.SourceURL)
	fmt.Fprintf(r.opts.Output, "[rangecheck] Total size: %s | Blocks: %d x %s | Workers: %d\n",
		FormatBytes(r.opts.TotalSize),
		r.opts.TotalBlocks,
		FormatBytes(r.opts.BlockSize),
		r.opts.Workers,
	)

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status. It waits
// for the final status to be written.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stopCh)
	if started {
		<-r.doneCh
	}
}

// BlockStarted marks a block as in progress.
func (r *Reporter) BlockStarted() {
	r.inProgress.Add(1)
}

// BlockPassed marks a block of size bytes as verified and matching.
func (r *Reporter) BlockPassed(size int64) {
	r.checkedBytes.Add(size)
	r.passedBlocks.Add(1)
	r.inProgress.Add(-1)
}

// BlockFailed marks a block of size bytes as compared and different.
func (r *Reporter) BlockFailed(size int64) {
	r.checkedBytes.Add(size)
	r.failedBlocks.Add(1)
	r.inProgress.Add(-1)
}

// BlockErrored marks a block whose remote range could not be read.
func (r *Reporter) BlockErrored() {
	r.erroredBlocks.Add(1)
	r.inProgress.Add(-1)
}

// BlockSkipped marks a block of size bytes as verified by an earlier run.
// It counts towards completion but not towards speed.
func (r *Reporter) BlockSkipped(size int64) {
	r.skippedBytes.Add(size)
	r.skippedBlocks.Add(1)
}

// BlockAborted removes a block from in-progress without a verdict.
func (r *Reporter) BlockAborted() {
	r.inProgress.Add(-1)
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	checked := r.checkedBytes.Load()

	// Calculate speed
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(checked-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = checked

	// Calculate percentage and ETA
	var percent float64
	eta := "calculating..."
	done := checked + r.skippedBytes.Load()
	if r.opts.TotalSize > 0 {
		percent = float64(done) / float64(r.opts.TotalSize) * 100
		if speed > 0 {
			remaining := float64(r.opts.TotalSize - done)
			eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
		}
	}

	fmt.Fprintf(r.opts.Output, "[rangecheck] Progress: %.1f%% | %s / %s | Speed: %s/s | ETA: %s\n",
		percent,
		FormatBytes(done),
		FormatBytes(r.opts.TotalSize),
		FormatBytes(int64(speed)),
		eta,
	)
	fmt.Fprintf(r.opts.Output, "[rangecheck] Blocks: %s\n", r.blockCounts())
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	checked := r.checkedBytes.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(checked) / duration.Seconds()

	fmt.Fprintf(r.opts.Output, "[rangecheck] Blocks: %s\n", r.blockCounts())
	fmt.Fprintf(r.opts.Output, "[rangecheck] Total time: %s | Compared: %s | Average speed: %s/s\n",
		formatDuration(duration),
		FormatBytes(checked),
		FormatBytes(int64(avgSpeed)),
	)
}

func (r *Reporter) blockCounts() string {
	passed := int(r.passedBlocks.Load())
	failed := int(r.failedBlocks.Load())
	errored := int(r.erroredBlocks.Load())
	skipped := int(r.skippedBlocks.Load())
	inProgress := int(r.inProgress.Load())

	pending := r.opts.TotalBlocks - passed - failed - errored - skipped - inProgress
	if pending < 0 {
		pending = 0
	}
	counts := fmt.Sprintf("%d passed | %d failed | %d errored | %d in-progress | %d pending",
		passed, failed, errored, inProgress, pending)
	if skipped > 0 {
		counts += fmt.Sprintf(" | %d skipped", skipped)
	}
	return counts
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes formats bytes with IEC units, e.g. "256 MiB".
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}

// ParseBytes parses a human-readable byte string. IEC suffixes (KiB, MiB,
// ...) are powers of 1024, SI suffixes (KB, MB, ...) powers of 1000.
func ParseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid byte string %q: %w", s, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("byte string %q too large", s)
	}
	return int64(n), nil
}
