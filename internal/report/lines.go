package report

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/ligustah/rangecheck/internal/verifier"
)

// LineSink writes one line per result and flushes after every line, so
// results are visible while the run is still going.
//
//	offset=0 block=0 pass
//	offset=33554432 block=1 FAIL mismatch_at=33554433 attempts=1
//	offset=67108864 block=2 ERROR attempts=6 err="..."
type LineSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewLineSink returns a sink writing to w.
func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: bufio.NewWriter(w)}
}

// Report implements verifier.Sink.
func (s *LineSink) Report(res verifier.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.w, FormatResult(res)+"\n"); err != nil {
		return err
	}
	return s.w.Flush()
}

// FormatResult renders a result as a single line without a trailing newline.
// Mismatch offsets are absolute file offsets.
func FormatResult(res verifier.Result) string {
	switch res.Outcome {
	case verifier.Pass:
		return fmt.Sprintf("offset=%d block=%d pass", res.Offset, res.Index)
	case verifier.Fail:
		return fmt.Sprintf("offset=%d block=%d FAIL mismatch_at=%d attempts=%d",
			res.Offset, res.Index, res.Offset+res.MismatchAt, res.Attempts)
	default:
		return fmt.Sprintf("offset=%d block=%d ERROR attempts=%d err=%q",
			res.Offset, res.Index, res.Attempts, errString(res.Err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
