// Package progress provides progress reporting for verification runs.
//
// This package outputs human-readable progress information to stderr,
// including completion percentage, comparison speed, ETA and per-outcome
// block counts. Result lines go to stdout separately, so progress output
// never interleaves with them.
//
// # Usage
//
//	reporter := progress.NewReporter(Options{
//	    TotalSize:   totalBytes,
//	    TotalBlocks: numBlocks,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.BlockStarted()
//	reporter.BlockPassed(blockSize)
//
// # Output Format
//
//	[rangecheck] Verifying: https://account.blob.core.windows.net/c/disk.vhd
//	[rangecheck] Total size: 6.0 TiB | Blocks: 196608 x 32 MiB | Workers: 64
//	[rangecheck] Progress: 45.2% | 2.7 TiB / 6.0 TiB | Speed: 1.2 GiB/s | ETA: 48m 2s
//	[rangecheck] Blocks: 88870 passed | 1 failed | 0 errored | 64 in-progress | 107673 pending
package progress
