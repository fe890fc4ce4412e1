package source

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/rangecheck/internal/retry"
)

// Blob reads ranges of one object in a gocloud bucket.
type Blob struct {
	bucket  *blob.Bucket
	key     string
	policy  retry.Policy
	display string
	owned   bool
}

// NewBlob returns a Source for key in bucket. The caller keeps ownership of
// bucket.
func NewBlob(bucket *blob.Bucket, key string, policy retry.Policy) *Blob {
	return &Blob{
		bucket:  bucket,
		key:     key,
		policy:  policy,
		display: "bucket",
	}
}

// Size returns the object size from its attributes.
func (s *Blob) Size(ctx context.Context) (int64, error) {
	var size int64
	attempts, err := retry.Do(ctx, s.policy, func(int) error {
		attrs, err := s.bucket.Attributes(ctx, s.key)
		if err != nil {
			return classify(err)
		}
		size = attrs.Size
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("source: attributes %s: %w", s.key, &AttemptsError{Attempts: attempts, Err: err})
	}
	return size, nil
}

// ReadRange opens a range reader on the object. A read failing mid-stream
// opens a new reader for the remainder.
func (s *Blob) ReadRange(ctx context.Context, offset, length int64) (*Range, error) {
	return readRange(ctx, s.policy, s.open, offset, length)
}

func (s *Blob) open(ctx context.Context, p retry.Policy, offset, length int64) (io.ReadCloser, int64, int, error) {
	var r *blob.Reader
	attempts, err := retry.Do(ctx, p, func(int) error {
		var err error
		r, err = s.bucket.NewRangeReader(ctx, s.key, offset, length, nil)
		if err != nil {
			return classify(err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, attempts, fmt.Errorf("source: range %d+%d of %s: %w", offset, length, s.key, err)
	}

	declared := length
	if rem := r.Size() - offset; rem < declared {
		declared = max(rem, 0)
	}
	return r, declared, attempts, nil
}

func (s *Blob) String() string {
	return s.display + "/" + s.key
}

// Close closes the bucket if it was opened by Open.
func (s *Blob) Close() error {
	if s.owned {
		return s.bucket.Close()
	}
	return nil
}

// classify marks errors that no amount of retrying will fix.
func classify(err error) error {
	switch gcerrors.Code(err) {
	case gcerrors.NotFound, gcerrors.PermissionDenied, gcerrors.InvalidArgument, gcerrors.Unimplemented:
		return retry.Permanent(err)
	}
	return err
}
