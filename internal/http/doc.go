// Package http provides an HTTP client for ranged reads of large remote files.
//
// This package handles:
//   - Connection pooling for high parallelism
//   - HEAD requests to get file metadata
//   - Range requests with either the standard Range header or x-ms-range
//   - Retry according to a retry.Policy (linear backoff by default)
//   - ETag and Content-Range parsing
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    MaxIdleConnsPerHost: 128,
//	    Timeout:             5 * time.Minute,
//	    Retry:               retry.DefaultPolicy(),
//	    RangeHeader:         http.HeaderMSRange,
//	})
//
//	// Get file info
//	info, err := client.Head(ctx, url)
//	// info.Size, info.ETag, info.AcceptsRanges
//
//	// Read a range
//	resp, err := client.GetRange(ctx, url, startByte, endByte)
//	defer resp.Body.Close()
package http
