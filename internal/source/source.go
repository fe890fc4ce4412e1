package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"gocloud.dev/blob"

	rchttp "github.com/ligustah/rangecheck/internal/http"
)

// ErrObjectRequired is returned by Open when a bucket URL is given without
// an object key.
var ErrObjectRequired = errors.New("source: object key is required for bucket URLs")

// Range is an open byte-range read against a remote source.
type Range struct {
	io.ReadCloser

	// Attempts is the number of requests made for the range so far. It grows
	// while reading when a broken body has to be resumed.
	Attempts int
}

// Source reads byte ranges of one remote object.
type Source interface {
	// Size returns the size of the remote object in bytes.
	Size(ctx context.Context) (int64, error)

	// ReadRange opens length bytes starting at offset. Transient failures
	// are retried before an error is returned; the error then unwraps to
	// an *AttemptsError carrying the number of attempts made.
	ReadRange(ctx context.Context, offset, length int64) (*Range, error)

	// String describes the source for logs and reports.
	String() string

	io.Closer
}

// AttemptsError reports how many attempts were made before giving up.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AttemptsError) Unwrap() error { return e.Err }

// Attempts extracts the attempt count from an error returned by ReadRange.
// It returns 0 when the error carries no count.
func Attempts(err error) int {
	var ae *AttemptsError
	if errors.As(err, &ae) {
		return ae.Attempts
	}
	var re *rchttp.RangeError
	if errors.As(err, &re) {
		return re.Attempts
	}
	return 0
}

// Options configures how a source is opened.
type Options struct {
	// HTTP configures the client for http and https URLs. Its retry policy
	// is also used for bucket sources.
	HTTP rchttp.Options
}

// Open returns a Source for rawURL. http and https URLs are read with ranged
// GET requests; any other scheme is opened as a gocloud bucket URL and
// object is the key inside it.
func Open(ctx context.Context, rawURL, object string, opts Options) (Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("source: parse url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewHTTP(rawURL, opts.HTTP), nil
	case "":
		return nil, fmt.Errorf("source: url %q has no scheme", rawURL)
	}

	if object == "" {
		return nil, ErrObjectRequired
	}

	bucket, err := blob.OpenBucket(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("source: open bucket: %w", err)
	}
	src := NewBlob(bucket, object, opts.HTTP.Retry)
	src.display = rawURL
	src.owned = true
	return src, nil
}
