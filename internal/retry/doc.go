// Package retry implements the backoff policy shared by every remote source.
//
// A [Policy] describes how many times to retry and how long to wait in
// between. The default is linear: the n-th retry waits n times the base
// backoff, so five retries with a one second base wait 1s, 2s, 3s, 4s, 5s.
//
//	attempts, err := retry.Do(ctx, retry.DefaultPolicy(), func(attempt int) error {
//	    return fetch(ctx)
//	})
//
// Wrap an error with [Permanent] to stop retrying immediately.
package retry
