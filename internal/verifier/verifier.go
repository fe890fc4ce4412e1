package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ligustah/rangecheck/internal/progress"
	"github.com/ligustah/rangecheck/internal/source"
)

// DefaultWorkers is the worker pool size used when Options.Workers is zero.
const DefaultWorkers = 64

// compareBufferSize bounds the memory used per in-flight block.
const compareBufferSize = 1 << 20

// Sink receives every result as soon as it is known. Report is called from
// many goroutines concurrently.
type Sink interface {
	Report(Result) error
}

// Ledger remembers which blocks already passed so a later run can skip them.
type Ledger interface {
	Done(index int) bool
	Record(index int) error
}

// Options configures a Verifier.
type Options struct {
	// File is the path of the local reference file.
	File string

	// Plan describes which blocks to verify.
	Plan Plan

	// Source reads ranges of the remote object.
	Source source.Source

	// Workers is the number of blocks verified concurrently.
	// Default: 64
	Workers int

	// Sink receives each result. Optional.
	Sink Sink

	// Ledger enables resume. Optional.
	Ledger Ledger

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

// Verifier compares a local file against a remote object block by block.
type Verifier struct {
	opts Options
	bufs sync.Pool
}

// New returns a Verifier.
func New(opts Options) (*Verifier, error) {
	if opts.File == "" {
		return nil, errors.New("verifier: local file is required")
	}
	if opts.Source == nil {
		return nil, errors.New("verifier: source is required")
	}
	if opts.Plan.NumBlocks() == 0 {
		return nil, errors.New("verifier: plan has no blocks")
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	v := &Verifier{opts: opts}
	v.bufs.New = func() any {
		b := make([]byte, 2*compareBufferSize)
		return &b
	}
	return v, nil
}

// Plan returns the plan the verifier was built with.
func (v *Verifier) Plan() Plan {
	return v.opts.Plan
}

// VerifyBlock verifies a single block and reports the result to the sink.
//
// Remote failures are part of the result, not the error: a non-nil error
// means the local file could not be read, the sink failed, or ctx is done.
func (v *Verifier) VerifyBlock(ctx context.Context, index int) (Result, error) {
	block, err := v.opts.Plan.Block(index)
	if err != nil {
		return Result{}, err
	}

	if v.opts.Progress != nil {
		v.opts.Progress.BlockStarted()
	}

	res, err := v.verify(ctx, block)
	if err != nil {
		if v.opts.Progress != nil {
			v.opts.Progress.BlockAborted()
		}
		return Result{}, err
	}

	if v.opts.Progress != nil {
		switch res.Outcome {
		case Pass:
			v.opts.Progress.BlockPassed(block.Length)
		case Fail:
			v.opts.Progress.BlockFailed(block.Length)
		default:
			v.opts.Progress.BlockErrored()
		}
	}

	if v.opts.Sink != nil {
		if err := v.opts.Sink.Report(res); err != nil {
			return res, fmt.Errorf("report block %d: %w", index, err)
		}
	}

	if res.Outcome == Pass && v.opts.Ledger != nil {
		if err := v.opts.Ledger.Record(index); err != nil {
			return res, fmt.Errorf("record block %d: %w", index, err)
		}
	}

	return res, nil
}

// verify opens the local file, fetches the remote range and compares them.
func (v *Verifier) verify(ctx context.Context, block Block) (Result, error) {
	res := Result{Block: block, MismatchAt: -1}

	f, err := os.Open(v.opts.File)
	if err != nil {
		return res, &LocalIOError{Path: v.opts.File, Offset: block.Offset, Err: err}
	}
	defer f.Close()
	local := io.NewSectionReader(f, block.Offset, block.Length)

	remote, err := v.opts.Source.ReadRange(ctx, block.Offset, block.Length)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Outcome = Error
		res.Attempts = source.Attempts(err)
		res.Err = err
		return res, nil
	}
	defer remote.Close()

	bp := v.bufs.Get().(*[]byte)
	defer v.bufs.Put(bp)

	mismatch, remoteErr, localErr := compare(local, remote, block.Length, *bp)
	res.Attempts = remote.Attempts
	switch {
	case localErr != nil:
		return res, &LocalIOError{Path: v.opts.File, Offset: block.Offset, Err: localErr}
	case remoteErr != nil:
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Outcome = Error
		res.Attempts = max(res.Attempts, source.Attempts(remoteErr))
		res.Err = fmt.Errorf("read remote body: %w", remoteErr)
	case mismatch >= 0:
		res.Outcome = Fail
		res.MismatchAt = mismatch
	default:
		res.Outcome = Pass
	}
	return res, nil
}

// compare reads length bytes from local and remote in lockstep and returns
// the offset of the first difference, or -1. Sources resume broken bodies
// themselves, so a remote stream that ends early is one that declared fewer
// bytes; it differs where the lengths diverge, as does one with extra bytes.
func compare(local, remote io.Reader, length int64, buf []byte) (mismatch int64, remoteErr, localErr error) {
	half := len(buf) / 2
	lb, rb := buf[:half], buf[half:]

	var pos int64
	for pos < length {
		n := int64(half)
		if rem := length - pos; rem < n {
			n = rem
		}

		if _, err := io.ReadFull(local, lb[:n]); err != nil {
			return -1, nil, err
		}

		m, err := io.ReadFull(remote, rb[:n])
		if i := firstDiff(lb[:m], rb[:m]); i >= 0 {
			return pos + int64(i), nil, nil
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return pos + int64(m), nil, nil
		}
		if err != nil {
			return -1, err, nil
		}
		pos += n
	}

	var extra [1]byte
	n, err := io.ReadFull(remote, extra[:])
	if n > 0 {
		return length, nil, nil
	}
	if err != nil && err != io.EOF {
		return -1, err, nil
	}
	return -1, nil, nil
}

func firstDiff(a, b []byte) int {
	if bytes.Equal(a, b) {
		return -1
	}
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return len(a)
}

// Run verifies every block of the plan with a bounded pool of workers and
// blocks until all of them are done.
//
// Block indices are dispatched in ascending order; results arrive in any
// order. Fail and Error outcomes never stop the run. A local I/O error or a
// cancelled ctx stops dispatch, waits for in-flight blocks, and is returned
// along with the partial summary.
func (v *Verifier) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	n := v.opts.Plan.NumBlocks()

	var (
		mu      sync.Mutex
		summary = &Summary{Blocks: n}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Workers)

	for i := 0; i < n; i++ {
		if v.opts.Ledger != nil && v.opts.Ledger.Done(i) {
			summary.Skipped++
			if v.opts.Progress != nil {
				block, _ := v.opts.Plan.Block(i)
				v.opts.Progress.BlockSkipped(block.Length)
			}
			continue
		}
		if gctx.Err() != nil {
			break
		}

		idx := i
		g.Go(func() error {
			// Go may have waited for a slot while another worker failed.
			if err := gctx.Err(); err != nil {
				return err
			}

			res, err := v.VerifyBlock(gctx, idx)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			switch res.Outcome {
			case Pass:
				summary.Passed++
				summary.BytesVerified += res.Length
			case Fail:
				summary.Failed++
				summary.Problems = append(summary.Problems, res)
			default:
				summary.Errored++
				summary.Problems = append(summary.Problems, res)
			}
			return nil
		})
	}

	err := g.Wait()

	sort.Slice(summary.Problems, func(i, j int) bool {
		return summary.Problems[i].Index < summary.Problems[j].Index
	})
	summary.Elapsed = time.Since(start)

	if err != nil {
		return summary, err
	}
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}
