package verifier

import (
	"fmt"
	"time"
)

// Outcome is the verdict for one block.
type Outcome int

const (
	// Pass means remote bytes equal local bytes.
	Pass Outcome = iota
	// Fail means the bytes differ or the remote range has the wrong length.
	Fail
	// Error means the remote range could not be read.
	Error
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the verdict for one block.
type Result struct {
	Block
	Outcome Outcome

	// MismatchAt is the offset of the first differing byte relative to the
	// start of the block, or -1.
	MismatchAt int64

	// Attempts is the number of remote requests made for this block.
	Attempts int

	// Err holds the remote error for Outcome == Error.
	Err error
}

// Summary aggregates the results of a run.
type Summary struct {
	Blocks        int
	Passed        int
	Failed        int
	Errored       int
	Skipped       int
	BytesVerified int64
	Elapsed       time.Duration

	// Problems holds every non-passing result, ordered by block index.
	Problems []Result
}

// OK reports whether every block passed or was skipped as already passed.
func (s *Summary) OK() bool {
	return s.Failed == 0 && s.Errored == 0 && s.Passed+s.Skipped == s.Blocks
}

// LocalIOError reports a failure to read the local reference file. It aborts
// the run: without the reference no block can be judged.
type LocalIOError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("read %s at offset %d: %v", e.Path, e.Offset, e.Err)
}

func (e *LocalIOError) Unwrap() error { return e.Err }
