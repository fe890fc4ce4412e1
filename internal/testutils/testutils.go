// Package testutils provides shared test infrastructure: deterministic test
// data and an HTTP server with range support and fault injection.
package testutils

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// GenerateTestData generates test data of the given size.
// For sizes <= 10MB, uses a deterministic pattern. For larger sizes, uses
// random data.
func GenerateTestData(t testing.TB, size int64) []byte {
	t.Helper()
	data := make([]byte, size)
	if size <= 10*1024*1024 {
		for i := range data {
			data[i] = byte(i % 251)
		}
	} else {
		if _, err := rand.Read(data); err != nil {
			t.Fatalf("generate random data: %v", err)
		}
	}
	return data
}

// WriteTempFile writes data to a file in a per-test temp dir and returns
// its path.
func WriteTempFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// ServerOptions configures a RangeServer.
type ServerOptions struct {
	// Header is the request header carrying the range. Default: Range
	Header string

	// FailFirst makes the first N GET requests for each distinct range
	// start fail with 503.
	FailFirst int

	// FailOffsets makes every GET for these range starts fail with 500.
	FailOffsets []int64

	// TruncateFirst makes the first N GET requests for each distinct range
	// end send the full headers but only half the body, then drop the
	// connection. A resumed request for the rest of a range has the same end
	// and counts against the same N.
	TruncateFirst int

	// Flip lists absolute offsets whose byte is inverted in responses.
	Flip []int64

	// IgnoreRange makes the server answer 200 with the whole body.
	IgnoreRange bool
}

// RangeServer serves one in-memory object with byte-range support.
type RangeServer struct {
	*httptest.Server

	data []byte
	opts ServerOptions

	mu       sync.Mutex
	requests map[int64]int
	ends     map[int64]int
	total    int
}

// StartRangeServer starts a RangeServer for data. It is closed when the test
// ends.
func StartRangeServer(t testing.TB, data []byte, opts ServerOptions) *RangeServer {
	t.Helper()
	if opts.Header == "" {
		opts.Header = "Range"
	}

	s := &RangeServer{
		data:     data,
		opts:     opts,
		requests: make(map[int64]int),
		ends:     make(map[int64]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Requests returns how many GET requests were made for the range starting
// at offset.
func (s *RangeServer) Requests(offset int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[offset]
}

// TotalRequests returns the number of GET requests served.
func (s *RangeServer) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *RangeServer) serve(w http.ResponseWriter, r *http.Request) {
	size := int64(len(s.data))

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("ETag", `"test-etag"`)
		return
	}

	rangeHeader := r.Header.Get(s.opts.Header)
	if rangeHeader == "" || s.opts.IgnoreRange {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.Write(s.data)
		return
	}

	// Parse range header: bytes=start-end
	rangeHeader = strings.TrimPrefix(rangeHeader, "bytes=")
	parts := strings.Split(rangeHeader, "-")
	if len(parts) != 2 {
		http.Error(w, "bad range", http.StatusBadRequest)
		return
	}
	start, err1 := strconv.ParseInt(parts[0], 10, 64)
	end, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil || start < 0 || start >= size || end < start {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if end >= size {
		end = size - 1
	}

	s.mu.Lock()
	s.total++
	s.requests[start]++
	n := s.requests[start]
	s.ends[end]++
	truncate := s.ends[end] <= s.opts.TruncateFirst
	s.mu.Unlock()

	if n <= s.opts.FailFirst {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	for _, off := range s.opts.FailOffsets {
		if off == start {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	body := s.data[start : end+1]
	if len(s.opts.Flip) > 0 {
		body = append([]byte(nil), body...)
		for _, off := range s.opts.Flip {
			if off >= start && off <= end {
				body[off-start] ^= 0xFF
			}
		}
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.Header().Set("ETag", `"test-etag"`)
	w.WriteHeader(http.StatusPartialContent)

	if truncate {
		w.Write(body[:len(body)/2])
		dropConnection(w)
		return
	}
	w.Write(body)
}

// dropConnection flushes what was written so far and closes the connection
// without finishing the response.
func dropConnection(w http.ResponseWriter) {
	// Hijack discards the response buffer, so push the partial body out first.
	w.(http.Flusher).Flush()

	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("testutils: response writer cannot be hijacked")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic("testutils: hijack: " + err.Error())
	}
	conn.Close()
}
