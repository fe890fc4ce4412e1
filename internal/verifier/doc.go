// Package verifier checks that a remote object matches a local reference
// file, one block at a time.
//
// The reference file is split into blocks by a [Plan]. For each block the
// verifier opens the local file independently, reads the block through an
// io.SectionReader, fetches the same byte range from a source.Source, and
// compares the two streams. Each block yields a [Result] with outcome Pass,
// Fail, or Error.
//
// # Usage
//
//	plan, _ := verifier.NewPlan(0, size, 32<<20)
//	v, err := verifier.New(verifier.Options{
//	    File:    "/data/disk.img",
//	    Plan:    plan,
//	    Source:  src,
//	    Workers: 64,
//	    Sink:    report.NewLineSink(os.Stdout),
//	})
//	summary, err := v.Run(ctx)
//
// # Failure semantics
//
// Remote failures and mismatches are local to their block: they are reported
// and the run continues. A failure to read the local file is a *LocalIOError
// and aborts the run, since no block can be judged without the reference.
package verifier
