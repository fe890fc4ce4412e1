package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Exit codes
const (
	ExitSuccess            = 0
	ExitGeneralError       = 1
	ExitInvalidArgs        = 2
	ExitRemoteNotAccess    = 3
	ExitSizeMismatch       = 4
	ExitLocalIOError       = 5
	ExitReportStorageError = 6
	ExitVerificationFailed = 7
)

// exitError carries the process exit code out of a cobra RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exit returns an error that makes run return code. A nil err means the
// command already explained itself on stderr.
func exit(code int, err error) error {
	return &exitError{code: code, err: err}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}

	// Anything else comes from cobra itself: unknown command or bad flags.
	fmt.Fprintf(stderr, "Error: %v\n", err)
	fmt.Fprintf(stderr, "Run 'rangecheck --help' for usage.\n")
	return ExitInvalidArgs
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "rangecheck",
		Short: "Verify a remote object against a local file using ranged reads",
		Long: `rangecheck compares a local reference file with a remote copy block by block.

Each block is fetched with a ranged GET (or a ranged bucket read) and compared
byte for byte with the same range of the local file. Blocks are verified in
parallel and transient failures are retried.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newVerifyCmd(stdout, stderr))
	root.AddCommand(newProbeCmd(stdout, stderr))
	return root
}

// logf writes a diagnostic line to stderr.
func logf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "[rangecheck] "+format+"\n", args...)
}
