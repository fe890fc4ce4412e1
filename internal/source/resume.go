package source

import (
	"context"
	"fmt"
	"io"

	"github.com/ligustah/rangecheck/internal/retry"
)

// opener opens [offset, offset+length) with policy p. It returns the body,
// the number of bytes the remote declared it will send, and the number of
// requests made, also on failure.
type opener func(ctx context.Context, p retry.Policy, offset, length int64) (body io.ReadCloser, declared int64, attempts int, err error)

// readRange opens a range and wraps its body so that a read failing before
// the declared end re-requests the rest of the range. Opening and resuming
// share one budget of p.Attempts+1 requests.
func readRange(ctx context.Context, p retry.Policy, open opener, offset, length int64) (*Range, error) {
	body, declared, attempts, err := open(ctx, p, offset, length)
	if err != nil {
		return nil, &AttemptsError{Attempts: attempts, Err: err}
	}

	rng := &Range{Attempts: attempts}
	rng.ReadCloser = &resumingReader{
		ctx:    ctx,
		policy: p,
		open:   open,
		rng:    rng,
		body:   body,
		pos:    offset,
		end:    offset + declared,
	}
	return rng, nil
}

// resumingReader reads [pos, end) across as many requests as the retry
// budget allows. A body that ends early or fails mid-stream is resumed from
// the first byte not yet delivered.
type resumingReader struct {
	ctx    context.Context
	policy retry.Policy
	open   opener
	rng    *Range

	body    io.ReadCloser
	pos     int64
	end     int64
	lastErr error
}

func (r *resumingReader) Read(p []byte) (int, error) {
	for {
		if r.pos >= r.end {
			return 0, io.EOF
		}
		if r.body == nil {
			if err := r.resume(); err != nil {
				return 0, err
			}
		}

		if rem := r.end - r.pos; int64(len(p)) > rem {
			p = p[:rem]
		}
		n, err := r.body.Read(p)
		r.pos += int64(n)
		if err == nil || r.pos >= r.end {
			return n, nil
		}

		// The body stopped short of what the remote declared.
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		r.body.Close()
		r.body = nil
		r.lastErr = err
		if n > 0 {
			return n, nil
		}
	}
}

// resume re-requests the remaining bytes with what is left of the budget.
func (r *resumingReader) resume() error {
	used := r.rng.Attempts
	if used > r.policy.Attempts {
		return &AttemptsError{Attempts: used, Err: fmt.Errorf("read body: %w", r.lastErr)}
	}
	if err := r.policy.Wait(r.ctx, used); err != nil {
		return err
	}

	p := r.policy
	p.Attempts = r.policy.Attempts - used
	body, declared, attempts, err := r.open(r.ctx, p, r.pos, r.end-r.pos)
	r.rng.Attempts += attempts
	if err != nil {
		if r.ctx.Err() != nil {
			return r.ctx.Err()
		}
		return &AttemptsError{Attempts: r.rng.Attempts, Err: fmt.Errorf("resume at %d after %v: %w", r.pos, r.lastErr, err)}
	}
	r.body = body
	// A remote that now declares less than before has changed under us;
	// let the comparison see the shorter stream.
	if e := r.pos + declared; e < r.end {
		r.end = e
	}
	return nil
}

func (r *resumingReader) Close() error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}
