package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	rchttp "github.com/ligustah/rangecheck/internal/http"
	"github.com/ligustah/rangecheck/internal/retry"
)

// HTTP reads ranges from a URL with ranged GET requests.
type HTTP struct {
	url    string
	client *rchttp.Client
	policy retry.Policy
}

// NewHTTP returns a Source for an http or https URL.
func NewHTTP(url string, opts rchttp.Options) *HTTP {
	return &HTTP{
		url:    url,
		client: rchttp.NewClient(opts),
		policy: opts.Retry,
	}
}

// Size returns the Content-Length reported by a HEAD request.
func (s *HTTP) Size(ctx context.Context) (int64, error) {
	info, err := s.client.Head(ctx, s.url)
	if err != nil {
		return 0, err
	}
	if info.Size < 0 {
		return 0, fmt.Errorf("source: %s did not report a content length", s.url)
	}
	return info.Size, nil
}

// ReadRange issues a ranged GET for [offset, offset+length-1]. A body that
// breaks off early is resumed with a new ranged GET for the remainder.
func (s *HTTP) ReadRange(ctx context.Context, offset, length int64) (*Range, error) {
	return readRange(ctx, s.policy, s.open, offset, length)
}

func (s *HTTP) open(ctx context.Context, p retry.Policy, offset, length int64) (io.ReadCloser, int64, int, error) {
	resp, err := s.client.GetRangeWith(ctx, p, s.url, offset, offset+length-1)
	if err != nil {
		var re *rchttp.RangeError
		if errors.As(err, &re) {
			return nil, 0, re.Attempts, err
		}
		return nil, 0, 0, err
	}
	return resp.Body, resp.Length, resp.Attempts, nil
}

func (s *HTTP) String() string { return s.url }

// Close is a no-op; idle connections are reused by later clients.
func (s *HTTP) Close() error { return nil }
