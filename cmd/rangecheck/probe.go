package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ligustah/rangecheck/internal/config"
	rchttp "github.com/ligustah/rangecheck/internal/http"
	"github.com/ligustah/rangecheck/internal/progress"
	"github.com/ligustah/rangecheck/internal/source"
)

func newProbeCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		url         string
		object      string
		file        string
		rangeHeader string
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that a remote object is reachable and serves byte ranges",
		Long: `Check that a remote object is reachable and serves byte ranges.

Prints the remote size and whether a one-byte ranged read succeeds. With
--file, the remote size is compared against the local file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				return exit(ExitInvalidArgs, errors.New("--url is required"))
			}
			cfg := config.Default()
			if err := cfg.LoadFromEnv(); err != nil {
				return exit(ExitInvalidArgs, err)
			}
			if rangeHeader != "" {
				cfg.RangeHeader = rangeHeader
			}
			if cfg.RangeHeader != rchttp.HeaderRange && cfg.RangeHeader != rchttp.HeaderMSRange {
				return exit(ExitInvalidArgs, fmt.Errorf("--range-header must be %q or %q",
					rchttp.HeaderRange, rchttp.HeaderMSRange))
			}
			// A probe should answer quickly; one attempt per request.
			cfg.Retry.Attempts = 0
			return runProbe(cmd.Context(), cfg, url, object, file, stdout, stderr)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&url, "url", "", "Remote object URL or bucket URL (required)")
	fl.StringVar(&object, "object", "", "Object key when --url is a bucket")
	fl.StringVar(&file, "file", "", "Local file to compare the size against")
	fl.StringVar(&rangeHeader, "range-header", "", "Range request header: Range or x-ms-range")

	return cmd
}

func runProbe(ctx context.Context, cfg config.Config, url, object, file string, stdout, stderr io.Writer) error {
	src, err := source.Open(ctx, url, object, source.Options{HTTP: cfg.HTTPOptions()})
	if err != nil {
		if errors.Is(err, source.ErrObjectRequired) {
			return exit(ExitInvalidArgs, err)
		}
		return exit(ExitRemoteNotAccess, err)
	}
	defer src.Close()

	size, err := src.Size(ctx)
	if err != nil {
		return exit(ExitRemoteNotAccess, fmt.Errorf("remote size: %w", err))
	}
	fmt.Fprintf(stdout, "size=%d\n", size)
	logf(stderr, "%s is %s", src, progress.FormatBytes(size))

	if size > 0 {
		r, err := src.ReadRange(ctx, 0, 1)
		if err != nil {
			fmt.Fprintf(stdout, "ranges=unsupported\n")
			return exit(ExitRemoteNotAccess, fmt.Errorf("ranged read: %w", err))
		}
		_, err = io.Copy(io.Discard, r)
		r.Close()
		if err != nil {
			return exit(ExitRemoteNotAccess, fmt.Errorf("ranged read: %w", err))
		}
		fmt.Fprintf(stdout, "ranges=ok\n")
	}

	if file != "" {
		info, err := os.Stat(file)
		if err != nil {
			return exit(ExitLocalIOError, fmt.Errorf("stat local file: %w", err))
		}
		if info.Size() != size {
			return exit(ExitSizeMismatch, fmt.Errorf("size mismatch: remote %d bytes, local %s %d bytes",
				size, file, info.Size()))
		}
		logf(stderr, "Local file %s matches remote size", file)
	}
	return nil
}
