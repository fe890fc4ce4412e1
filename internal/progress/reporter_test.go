package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{32 * 1024 * 1024, "32 MiB"},
		{256 * 1024 * 1024, "256 MiB"},
		{1024 * 1024 * 1024, "1.0 GiB"},
		{1024 * 1024 * 1024 * 1024, "1.0 TiB"},
		{6 * 1024 * 1024 * 1024 * 1024, "6.0 TiB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"100B", 100},
		{"1KiB", 1024},
		{"1.5KiB", 1536},
		{"32MiB", 32 * 1024 * 1024},
		{" 32 MiB ", 32 * 1024 * 1024},
		{"1GiB", 1024 * 1024 * 1024},
		{"6TiB", 6 * 1024 * 1024 * 1024 * 1024},
		// SI units
		{"1KB", 1000},
		{"1MB", 1000 * 1000},
		{"1GB", 1000 * 1000 * 1000},
	}

	for _, tt := range tests {
		result, err := ParseBytes(tt.input)
		if err != nil {
			t.Errorf("ParseBytes(%q): %v", tt.input, err)
			continue
		}
		if result != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytesInvalid(t *testing.T) {
	_, err := ParseBytes("invalid")
	if err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestReporterBlockTracking(t *testing.T) {
	reporter := NewReporter(Options{
		TotalSize:      1024,
		TotalBlocks:    4,
		Workers:        2,
		UpdateInterval: 100 * time.Millisecond,
	})

	// Test block tracking without starting the reporter
	reporter.BlockStarted()
	if reporter.inProgress.Load() != 1 {
		t.Errorf("expected 1 in-progress, got %d", reporter.inProgress.Load())
	}

	reporter.BlockPassed(256)
	if reporter.inProgress.Load() != 0 {
		t.Errorf("expected 0 in-progress after pass, got %d", reporter.inProgress.Load())
	}
	if reporter.passedBlocks.Load() != 1 {
		t.Errorf("expected 1 passed, got %d", reporter.passedBlocks.Load())
	}
	if reporter.checkedBytes.Load() != 256 {
		t.Errorf("expected 256 bytes, got %d", reporter.checkedBytes.Load())
	}

	reporter.BlockStarted()
	reporter.BlockFailed(256)
	reporter.BlockStarted()
	reporter.BlockErrored()
	reporter.BlockStarted()
	reporter.BlockAborted()

	if reporter.inProgress.Load() != 0 {
		t.Errorf("expected 0 in-progress, got %d", reporter.inProgress.Load())
	}
	if reporter.failedBlocks.Load() != 1 || reporter.erroredBlocks.Load() != 1 {
		t.Errorf("expected 1 failed and 1 errored, got %d and %d",
			reporter.failedBlocks.Load(), reporter.erroredBlocks.Load())
	}
	if reporter.checkedBytes.Load() != 512 {
		t.Errorf("expected 512 bytes, got %d", reporter.checkedBytes.Load())
	}

	if got := reporter.blockCounts(); got != "1 passed | 1 failed | 1 errored | 0 in-progress | 1 pending" {
		t.Errorf("unexpected block counts %q", got)
	}
}

func TestReporterSkippedBlocksCountTowardsCompletion(t *testing.T) {
	var out bytes.Buffer
	reporter := NewReporter(Options{
		TotalSize:   1024,
		TotalBlocks: 4,
		Output:      &out,
	})

	reporter.BlockSkipped(256)
	reporter.BlockSkipped(256)
	reporter.BlockSkipped(256)
	reporter.BlockStarted()
	reporter.BlockPassed(256)

	reporter.printProgress()

	output := out.String()
	if !strings.Contains(output, "Progress: 100.0% | 1.0 KiB / 1.0 KiB") {
		t.Errorf("expected full completion in output:\n%s", output)
	}
	if !strings.Contains(output, "0 pending | 3 skipped") {
		t.Errorf("expected skipped count in output:\n%s", output)
	}
	if reporter.checkedBytes.Load() != 256 {
		t.Errorf("skipped bytes must not count as compared, got %d", reporter.checkedBytes.Load())
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReporterStartStop(t *testing.T) {
	out := &syncBuffer{}
	reporter := NewReporter(Options{
		TotalSize:      1024 * 1024,
		TotalBlocks:    4,
		Workers:        2,
		Output:         out,
		UpdateInterval: 10 * time.Millisecond,
		SourceURL:      "https://example.com/file.bin",
		BlockSize:      256 * 1024,
	})

	reporter.Start()

	reporter.BlockStarted()
	reporter.BlockPassed(256 * 1024)

	reporter.BlockStarted()
	reporter.BlockFailed(256 * 1024)

	time.Sleep(50 * time.Millisecond) // Let updates run

	reporter.Stop()
	reporter.Stop() // idempotent

	output := out.String()
	if !strings.Contains(output, "Verifying: https://example.com/file.bin") {
		t.Errorf("missing header in output:\n%s", output)
	}
	if !strings.Contains(output, "Blocks: 4 x 256 KiB") {
		t.Errorf("missing block layout in output:\n%s", output)
	}
	if !strings.Contains(output, "1 passed | 1 failed") {
		t.Errorf("missing final counts in output:\n%s", output)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "2h 3m 4s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.input); got != tt.expected {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
