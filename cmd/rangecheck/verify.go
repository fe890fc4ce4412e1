package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ligustah/rangecheck/internal/config"
	"github.com/ligustah/rangecheck/internal/progress"
	"github.com/ligustah/rangecheck/internal/report"
	"github.com/ligustah/rangecheck/internal/source"
	"github.com/ligustah/rangecheck/internal/verifier"
)

// verifyFlags holds raw flag values. Sizes stay strings until resolve so
// they can be written as "32MiB".
type verifyFlags struct {
	configPath string

	url           string
	object        string
	file          string
	size          string
	blockSize     string
	workers       int
	start         string
	end           string
	rangeHeader   string
	timeout       time.Duration
	report        string
	reportKey     string
	resume        bool
	skipSizeCheck bool
	progress      bool

	retryAttempts   int
	retryBackoff    time.Duration
	retryMaxBackoff time.Duration
	retryPolicy     string
	retryJitter     bool
}

func newVerifyCmd(stdout, stderr io.Writer) *cobra.Command {
	var f verifyFlags

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare a local file with a remote object block by block",
		Long: `Compare a local file with a remote object block by block.

--url is either an http(s) URL served with range support, or a bucket URL
(gs://, s3://, azblob://, file://) combined with --object. Every block prints
one result line on stdout. Use --resume to skip blocks that passed in an
earlier interrupted run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return exit(ExitInvalidArgs, err)
			}
			return runVerify(cmd.Context(), cfg, stdout, stderr)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fl.StringVar(&f.url, "url", "", "Remote object URL or bucket URL (required)")
	fl.StringVar(&f.object, "object", "", "Object key when --url is a bucket")
	fl.StringVar(&f.file, "file", "", "Local reference file (required)")
	fl.StringVar(&f.size, "size", "", "Declared size of the data (default: local file size)")
	fl.StringVar(&f.blockSize, "block-size", "", "Block size (default 32MiB)")
	fl.IntVar(&f.workers, "workers", 0, "Number of blocks verified in parallel (default 64)")
	fl.StringVar(&f.start, "start", "", "First byte to verify (default 0)")
	fl.StringVar(&f.end, "end", "", "Stop verifying at this byte, exclusive (default: size)")
	fl.StringVar(&f.rangeHeader, "range-header", "", "Range request header: Range or x-ms-range")
	fl.DurationVar(&f.timeout, "timeout", 0, "Timeout per HTTP request (default 5m)")
	fl.StringVar(&f.report, "report", "", "Bucket URL to upload a JSON report to")
	fl.StringVar(&f.reportKey, "report-key", "", "Object key for the report (default rangecheck/<run-id>.json)")
	fl.BoolVar(&f.resume, "resume", false, "Skip blocks recorded as passed by an earlier run")
	fl.BoolVar(&f.skipSizeCheck, "skip-size-check", false, "Do not compare remote and local sizes before verifying")
	fl.BoolVar(&f.progress, "progress", false, "Show progress on stderr")
	fl.IntVar(&f.retryAttempts, "retry-attempts", 0, "Retries per block after the first attempt (default 5)")
	fl.DurationVar(&f.retryBackoff, "retry-backoff", 0, "Base delay between retries (default 1s)")
	fl.DurationVar(&f.retryMaxBackoff, "retry-max-backoff", 0, "Maximum delay between retries (default 30s)")
	fl.StringVar(&f.retryPolicy, "retry-policy", "", "Backoff growth: linear or exponential (default linear)")
	fl.BoolVar(&f.retryJitter, "retry-jitter", false, "Randomize retry delays")

	return cmd
}

// resolve builds the effective configuration: defaults, then the config
// file, then RANGECHECK_ environment variables, then flags.
func (f *verifyFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(f.configPath)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	override := config.Config{
		URL:           f.url,
		Object:        f.object,
		File:          f.file,
		Workers:       f.workers,
		RangeHeader:   f.rangeHeader,
		Timeout:       f.timeout,
		Report:        f.report,
		ReportKey:     f.reportKey,
		Resume:        f.resume,
		SkipSizeCheck: f.skipSizeCheck,
		Progress:      f.progress,
		Retry: config.RetryConfig{
			Attempts:   f.retryAttempts,
			Backoff:    f.retryBackoff,
			MaxBackoff: f.retryMaxBackoff,
			Policy:     f.retryPolicy,
			Jitter:     f.retryJitter,
		},
	}

	sizes := []struct {
		flag string
		raw  string
		dst  *int64
	}{
		{"size", f.size, &override.Size},
		{"block-size", f.blockSize, &override.BlockSize},
		{"start", f.start, &override.Start},
		{"end", f.end, &override.End},
	}
	for _, s := range sizes {
		if s.raw == "" {
			continue
		}
		n, err := progress.ParseBytes(s.raw)
		if err != nil {
			return config.Config{}, fmt.Errorf("--%s: %w", s.flag, err)
		}
		*s.dst = n
	}

	cfg = cfg.Merge(override)

	// Merge ignores zero values, but --retry-attempts 0 is meaningful.
	if cmd.Flags().Changed("retry-attempts") {
		cfg.Retry.Attempts = f.retryAttempts
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runVerify(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	// Determine the size of the data being verified.
	size := cfg.Size
	if size == 0 {
		info, err := os.Stat(cfg.File)
		if err != nil {
			return exit(ExitLocalIOError, fmt.Errorf("stat local file: %w", err))
		}
		size = info.Size()
	}

	src, err := source.Open(ctx, cfg.URL, cfg.Object, source.Options{HTTP: cfg.HTTPOptions()})
	if err != nil {
		if errors.Is(err, source.ErrObjectRequired) {
			return exit(ExitInvalidArgs, err)
		}
		return exit(ExitRemoteNotAccess, err)
	}
	defer src.Close()

	if !cfg.SkipSizeCheck {
		remoteSize, err := src.Size(ctx)
		if err != nil {
			return exit(ExitRemoteNotAccess, fmt.Errorf("remote size: %w", err))
		}
		if remoteSize != size {
			return exit(ExitSizeMismatch, fmt.Errorf("size mismatch: remote %s is %d bytes, expected %d",
				src, remoteSize, size))
		}
	}

	end := cfg.End
	if end == 0 {
		end = size
	}
	if end == 0 {
		logf(stderr, "Nothing to verify: %s is empty", cfg.File)
		return nil
	}
	if end > size {
		return exit(ExitInvalidArgs, fmt.Errorf("end %d is past the end of the data (%d bytes)", end, size))
	}
	plan, err := verifier.NewPlan(cfg.Start, end, cfg.BlockSize)
	if err != nil {
		return exit(ExitInvalidArgs, err)
	}

	var ledger *report.Ledger
	if cfg.Resume {
		ledger, err = report.OpenLedger(cfg.File + report.LedgerSuffix)
		if err != nil {
			return exit(ExitLocalIOError, err)
		}
		defer ledger.Close()
		if n := ledger.Len(); n > 0 {
			logf(stderr, "Resuming: %d/%d blocks already verified", n, plan.NumBlocks())
		}
	}

	logf(stderr, "Verifying %s against %s: %s in %d blocks of %s, %d workers",
		cfg.File, src, progress.FormatBytes(plan.Size()), plan.NumBlocks(),
		progress.FormatBytes(plan.BlockSize), cfg.Workers)

	opts := verifier.Options{
		File:    cfg.File,
		Plan:    plan,
		Source:  src,
		Workers: cfg.Workers,
		Sink:    report.NewLineSink(stdout),
	}
	if ledger != nil {
		opts.Ledger = ledger
	}

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalSize:   plan.Size(),
			TotalBlocks: plan.NumBlocks(),
			Workers:     cfg.Workers,
			Output:      stderr,
			SourceURL:   src.String(),
			BlockSize:   plan.BlockSize,
		})
		opts.Progress = reporter
	}

	v, err := verifier.New(opts)
	if err != nil {
		return exit(ExitInvalidArgs, err)
	}

	startedAt := time.Now()
	if reporter != nil {
		reporter.Start()
	}
	summary, runErr := v.Run(ctx)
	if reporter != nil {
		reporter.Stop()
	}

	logf(stderr, "Checked %d blocks (%s) in %s: %d passed, %d failed, %d errored, %d skipped",
		summary.Blocks, progress.FormatBytes(summary.BytesVerified), summary.Elapsed.Round(time.Millisecond),
		summary.Passed, summary.Failed, summary.Errored, summary.Skipped)

	if cfg.Report != "" {
		doc := report.NewDocument(src.String(), cfg.File, plan, summary, startedAt)
		key := cfg.ReportKey
		if key == "" {
			key = doc.Key()
		}
		// The report is still worth writing after an interrupt.
		if err := report.Upload(context.WithoutCancel(ctx), cfg.Report, key, doc); err != nil {
			return exit(ExitReportStorageError, err)
		}
		logf(stderr, "Report written to %s (key %s)", cfg.Report, key)
	}

	if runErr != nil {
		if cfg.Resume {
			logf(stderr, "Run again with --resume to continue")
		}
		var lio *verifier.LocalIOError
		if errors.As(runErr, &lio) {
			return exit(ExitLocalIOError, runErr)
		}
		return exit(ExitGeneralError, runErr)
	}

	if !summary.OK() {
		for _, p := range summary.Problems {
			logf(stderr, "Block %d at offset %d: %s", p.Index, p.Offset, describe(p))
		}
		return exit(ExitVerificationFailed, fmt.Errorf("%d of %d blocks did not verify",
			summary.Failed+summary.Errored, summary.Blocks))
	}

	if ledger != nil {
		if err := ledger.Remove(); err != nil {
			logf(stderr, "Warning: remove ledger: %v", err)
		}
	}
	logf(stderr, "All blocks verified")
	return nil
}

func describe(res verifier.Result) string {
	if res.Outcome == verifier.Fail {
		return fmt.Sprintf("content differs at byte %d", res.Offset+res.MismatchAt)
	}
	return fmt.Sprintf("%v after %d attempts", res.Err, res.Attempts)
}
