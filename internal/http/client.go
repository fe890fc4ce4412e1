package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ligustah/rangecheck/internal/retry"
)

// Common errors.
var (
	ErrRangeNotSupported = errors.New("http: server does not support range requests")
	ErrRangeMismatch     = errors.New("http: server returned a different range")
	ErrNotFound          = errors.New("http: resource not found")
	ErrForbidden         = errors.New("http: access forbidden")
	ErrUnauthorized      = errors.New("http: unauthorized")
	ErrServerError       = errors.New("http: server error")
	ErrUnexpectedStatus  = errors.New("http: unexpected status")
)

// Range header names understood by GetRange.
const (
	// HeaderRange is the standard HTTP range header.
	HeaderRange = "Range"
	// HeaderMSRange is the Azure Blob Storage range header. It takes
	// precedence over Range on that service and is not limited to 4 MiB
	// ranges for older API versions.
	HeaderMSRange = "x-ms-range"
)

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 100
	MaxIdleConnsPerHost int

	// Timeout for individual requests, including reading the body.
	// Default: 5m
	Timeout time.Duration

	// Retry is the retry policy applied to every request.
	// Default: retry.DefaultPolicy()
	Retry retry.Policy

	// RangeHeader is the header used to request byte ranges.
	// Default: Range
	RangeHeader string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 100,
		Timeout:             5 * time.Minute,
		Retry:               retry.DefaultPolicy(),
		RangeHeader:         HeaderRange,
	}
}

// FileInfo contains metadata about a remote file.
type FileInfo struct {
	Size          int64
	ETag          string
	AcceptsRanges bool
	ContentType   string
	LastModified  time.Time
}

// RangeResponse represents a response from a range request.
type RangeResponse struct {
	Body          io.ReadCloser
	ContentLength int64
	ETag          string

	// Length is the number of bytes the server declared in Content-Range.
	// It is smaller than requested when the range runs past the end of the
	// resource.
	Length int64

	// Attempts is the number of requests made, including the successful one.
	Attempts int
}

// Client is an HTTP client for ranged reads of large remote files.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	if opts.RangeHeader == "" {
		opts.RangeHeader = HeaderRange
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // We want raw bytes for range requests
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// Head performs a HEAD request to get file metadata. Only network errors and
// 5xx responses are retried.
func (c *Client) Head(ctx context.Context, url string) (*FileInfo, error) {
	var info *FileInfo

	_, err := retry.Do(ctx, c.opts.Retry, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("create request: %w", err))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %s", ErrServerError, resp.Status)
		}
		if err := checkStatusCode(resp.StatusCode); err != nil {
			return retry.Permanent(err)
		}

		info = &FileInfo{
			Size:          resp.ContentLength,
			ETag:          cleanETag(resp.Header.Get("ETag")),
			AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
			ContentType:   resp.Header.Get("Content-Type"),
		}

		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				info.LastModified = t
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", url, err)
	}
	return info, nil
}

// GetRange requests bytes startByte through endByte (both inclusive).
//
// Network errors and every non-2xx status are retried according to the retry
// policy. A server that does not honour the range (416, or 200 without a
// Content-Range header) fails immediately with ErrRangeNotSupported.
func (c *Client) GetRange(ctx context.Context, url string, startByte, endByte int64) (*RangeResponse, error) {
	return c.GetRangeWith(ctx, c.opts.Retry, url, startByte, endByte)
}

// GetRangeWith is GetRange with an explicit retry policy.
func (c *Client) GetRangeWith(ctx context.Context, p retry.Policy, url string, startByte, endByte int64) (*RangeResponse, error) {
	var out *RangeResponse

	attempts, err := retry.Do(ctx, p, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set(c.opts.RangeHeader, fmt.Sprintf("bytes=%d-%d", startByte, endByte))

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
			resp.Body.Close()
			return retry.Permanent(ErrRangeNotSupported)
		case resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			if err := checkStatusCode(resp.StatusCode); err != nil {
				return fmt.Errorf("%w (%s)", err, resp.Status)
			}
			return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
		}

		cr := resp.Header.Get("Content-Range")
		if cr == "" {
			// A 206 must carry Content-Range; a 200 without it is the whole file.
			resp.Body.Close()
			return retry.Permanent(ErrRangeNotSupported)
		}
		start, end, _, err := ParseContentRange(cr)
		if err != nil || start != startByte {
			resp.Body.Close()
			return retry.Permanent(fmt.Errorf("%w: requested %d-%d, got %q", ErrRangeMismatch, startByte, endByte, cr))
		}

		out = &RangeResponse{
			Body:          resp.Body,
			ContentLength: resp.ContentLength,
			ETag:          cleanETag(resp.Header.Get("ETag")),
			Length:        end - start + 1,
		}
		return nil
	})
	if err != nil {
		return nil, &RangeError{Start: startByte, End: endByte, Attempts: attempts, Err: err}
	}

	out.Attempts = attempts
	return out, nil
}

// RangeError is returned by GetRange when no usable response was obtained.
type RangeError struct {
	Start, End int64
	Attempts   int
	Err        error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range %d-%d: %v", e.Start, e.End, e.Err)
}

func (e *RangeError) Unwrap() error { return e.Err }

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= 500:
		return ErrServerError
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	}
}

// cleanETag removes quotes from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return etag
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total may be -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	return start, end, total, nil
}
