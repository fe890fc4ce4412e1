package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ligustah/rangecheck/internal/report"
	"github.com/ligustah/rangecheck/internal/testutils"
)

// runCLI runs the CLI with fast retries and returns the exit code and output.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	t.Logf("rangecheck %s -> %d\nstderr:\n%s", strings.Join(args, " "), code, stderr.String())
	return code, stdout.String(), stderr.String()
}

func verifyArgs(url, file string, extra ...string) []string {
	args := []string{
		"verify",
		"--url", url,
		"--file", file,
		"--block-size", "64KiB",
		"--workers", "4",
		"--retry-backoff", "1ms",
	}
	return append(args, extra...)
}

func countLines(s, substr string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func TestVerifyAllPass(t *testing.T) {
	data := testutils.GenerateTestData(t, 256*1024+100)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{})

	code, stdout, _ := runCLI(t, verifyArgs(server.URL+"/ref.bin", file)...)
	if code != ExitSuccess {
		t.Fatalf("expected exit %d, got %d", ExitSuccess, code)
	}
	if got := countLines(stdout, " pass"); got != 5 {
		t.Errorf("expected 5 pass lines, got %d:\n%s", got, stdout)
	}
}

func TestVerifyMismatch(t *testing.T) {
	data := testutils.GenerateTestData(t, 256*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	flip := int64(3*64*1024 + 77)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{Flip: []int64{flip}})

	code, stdout, _ := runCLI(t, verifyArgs(server.URL+"/ref.bin", file)...)
	if code != ExitVerificationFailed {
		t.Fatalf("expected exit %d, got %d", ExitVerificationFailed, code)
	}
	if got := countLines(stdout, " pass"); got != 3 {
		t.Errorf("expected 3 pass lines, got %d", got)
	}
	want := "offset=196608 block=3 FAIL mismatch_at=196685"
	if !strings.Contains(stdout, want) {
		t.Errorf("expected %q in output:\n%s", want, stdout)
	}
}

func TestVerifyRemoteErrorIsReported(t *testing.T) {
	data := testutils.GenerateTestData(t, 256*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{
		FailOffsets: []int64{64 * 1024},
	})

	code, stdout, _ := runCLI(t, verifyArgs(server.URL+"/ref.bin", file, "--retry-attempts", "2")...)
	if code != ExitVerificationFailed {
		t.Fatalf("expected exit %d, got %d", ExitVerificationFailed, code)
	}
	if !strings.Contains(stdout, "offset=65536 block=1 ERROR attempts=3") {
		t.Errorf("expected error line for block 1:\n%s", stdout)
	}
	if got := server.Requests(64 * 1024); got != 3 {
		t.Errorf("expected 3 requests for block 1, got %d", got)
	}
	if got := countLines(stdout, " pass"); got != 3 {
		t.Errorf("expected the other 3 blocks to pass, got %d", got)
	}
}

func TestVerifyTransientFailuresPass(t *testing.T) {
	data := testutils.GenerateTestData(t, 128*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{FailFirst: 3})

	code, _, _ := runCLI(t, verifyArgs(server.URL+"/ref.bin", file)...)
	if code != ExitSuccess {
		t.Fatalf("expected exit %d, got %d", ExitSuccess, code)
	}
}

func TestVerifyBrokenBodiesPass(t *testing.T) {
	data := testutils.GenerateTestData(t, 256*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{TruncateFirst: 1})

	code, stdout, _ := runCLI(t, verifyArgs(server.URL+"/ref.bin", file)...)
	if code != ExitSuccess {
		t.Fatalf("expected exit %d, got %d:\n%s", ExitSuccess, code, stdout)
	}
	if got := countLines(stdout, " pass"); got != 4 {
		t.Errorf("expected 4 pass lines, got %d:\n%s", got, stdout)
	}
	if strings.Contains(stdout, "FAIL") {
		t.Errorf("a dropped connection was reported as a mismatch:\n%s", stdout)
	}
	// One truncated and one resumed request per block.
	if got := server.TotalRequests(); got != 8 {
		t.Errorf("expected 8 requests, got %d", got)
	}
}

func TestVerifyZeroRetries(t *testing.T) {
	data := testutils.GenerateTestData(t, 64*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{FailFirst: 1})

	code, _, _ := runCLI(t, verifyArgs(server.URL+"/ref.bin", file, "--retry-attempts", "0")...)
	if code != ExitVerificationFailed {
		t.Fatalf("expected exit %d, got %d", ExitVerificationFailed, code)
	}
	if got := server.Requests(0); got != 1 {
		t.Errorf("expected a single request, got %d", got)
	}
}

func TestVerifySizeMismatch(t *testing.T) {
	data := testutils.GenerateTestData(t, 128*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data[:100*1024], testutils.ServerOptions{})

	code, _, stderr := runCLI(t, verifyArgs(server.URL+"/ref.bin", file)...)
	if code != ExitSizeMismatch {
		t.Fatalf("expected exit %d, got %d", ExitSizeMismatch, code)
	}
	if !strings.Contains(stderr, "size mismatch") {
		t.Errorf("expected size mismatch message, got:\n%s", stderr)
	}
	if server.TotalRequests() != 0 {
		t.Errorf("expected no range requests, got %d", server.TotalRequests())
	}
}

func TestVerifyWindow(t *testing.T) {
	data := testutils.GenerateTestData(t, 256*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	// The flipped byte lies outside the window.
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{Flip: []int64{10}})

	code, stdout, _ := runCLI(t, verifyArgs(server.URL+"/ref.bin", file,
		"--start", "64KiB", "--end", "192KiB")...)
	if code != ExitSuccess {
		t.Fatalf("expected exit %d, got %d", ExitSuccess, code)
	}
	if got := countLines(stdout, " pass"); got != 2 {
		t.Errorf("expected 2 blocks in window, got %d", got)
	}
	if server.Requests(0) != 0 {
		t.Error("block before the window was requested")
	}
}

func TestVerifyMSRangeHeader(t *testing.T) {
	data := testutils.GenerateTestData(t, 128*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{Header: "x-ms-range"})

	code, _, _ := runCLI(t, verifyArgs(server.URL+"/ref.bin", file, "--range-header", "x-ms-range")...)
	if code != ExitSuccess {
		t.Fatalf("expected exit %d, got %d", ExitSuccess, code)
	}
}

func TestVerifyRangeIgnored(t *testing.T) {
	data := testutils.GenerateTestData(t, 128*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{IgnoreRange: true})

	code, stdout, _ := runCLI(t, verifyArgs(server.URL+"/ref.bin", file)...)
	if code != ExitVerificationFailed {
		t.Fatalf("expected exit %d, got %d", ExitVerificationFailed, code)
	}
	if got := countLines(stdout, "ERROR"); got != 2 {
		t.Errorf("expected 2 error lines, got %d:\n%s", got, stdout)
	}
}

func TestVerifyInvalidArgs(t *testing.T) {
	file := testutils.WriteTempFile(t, "ref.bin", []byte("data"))

	tests := []struct {
		name string
		args []string
	}{
		{"no command", []string{}},
		{"unknown command", []string{"upload"}},
		{"unknown flag", []string{"verify", "--bogus"}},
		{"missing url", []string{"verify", "--file", file}},
		{"missing file", []string{"verify", "--url", "http://localhost/x"}},
		{"bad block size", []string{"verify", "--url", "http://localhost/x", "--file", file, "--block-size", "huge"}},
		{"bad policy", []string{"verify", "--url", "http://localhost/x", "--file", file, "--retry-policy", "random"}},
		{"bucket without object", []string{"verify", "--url", "mem://", "--file", file}},
		{"probe without url", []string{"probe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(t, tt.args...)
			want := ExitInvalidArgs
			if len(tt.args) == 0 {
				// cobra prints help for a bare root command
				want = ExitSuccess
			}
			if code != want {
				t.Errorf("expected exit %d, got %d", want, code)
			}
		})
	}
}

func TestVerifyMissingLocalFile(t *testing.T) {
	data := testutils.GenerateTestData(t, 1024)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{})

	missing := filepath.Join(t.TempDir(), "missing.bin")
	code, _, _ := runCLI(t, verifyArgs(server.URL+"/ref.bin", missing)...)
	if code != ExitLocalIOError {
		t.Fatalf("expected exit %d, got %d", ExitLocalIOError, code)
	}
}

func TestVerifyRemoteNotAccessible(t *testing.T) {
	data := testutils.GenerateTestData(t, 1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{})
	url := server.URL + "/ref.bin"
	server.Close()

	code, _, _ := runCLI(t, verifyArgs(url, file, "--retry-attempts", "1")...)
	if code != ExitRemoteNotAccess {
		t.Fatalf("expected exit %d, got %d", ExitRemoteNotAccess, code)
	}
}

func TestVerifyBucketSource(t *testing.T) {
	data := testutils.GenerateTestData(t, 200*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "copy.bin"), data, 0644); err != nil {
		t.Fatalf("write remote copy: %v", err)
	}

	code, stdout, _ := runCLI(t, verifyArgs("file://"+dir, file, "--object", "copy.bin")...)
	if code != ExitSuccess {
		t.Fatalf("expected exit %d, got %d", ExitSuccess, code)
	}
	if got := countLines(stdout, " pass"); got != 4 {
		t.Errorf("expected 4 pass lines, got %d", got)
	}
}

func TestVerifyReport(t *testing.T) {
	data := testutils.GenerateTestData(t, 128*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{Flip: []int64{100}})
	reportDir := t.TempDir()

	code, _, _ := runCLI(t, verifyArgs(server.URL+"/ref.bin", file,
		"--report", "file://"+reportDir, "--report-key", "report.json")...)
	if code != ExitVerificationFailed {
		t.Fatalf("expected exit %d, got %d", ExitVerificationFailed, code)
	}

	raw, err := os.ReadFile(filepath.Join(reportDir, "report.json"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var doc report.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if doc.OK || doc.Blocks != 2 || doc.Passed != 1 || doc.Failed != 1 {
		t.Errorf("unexpected report: %+v", doc)
	}
	if len(doc.Problems) != 1 || doc.Problems[0].MismatchAt == nil || *doc.Problems[0].MismatchAt != 100 {
		t.Errorf("unexpected problems: %+v", doc.Problems)
	}
	if doc.RunID == "" {
		t.Error("expected a run id")
	}
}

func TestVerifyReportStorageError(t *testing.T) {
	data := testutils.GenerateTestData(t, 64*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{})

	code, _, _ := runCLI(t, verifyArgs(server.URL+"/ref.bin", file, "--report", "nosuchscheme://bucket")...)
	if code != ExitReportStorageError {
		t.Fatalf("expected exit %d, got %d", ExitReportStorageError, code)
	}
}

func TestVerifyResume(t *testing.T) {
	data := testutils.GenerateTestData(t, 256*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	ledgerPath := file + report.LedgerSuffix

	broken := testutils.StartRangeServer(t, data, testutils.ServerOptions{
		FailOffsets: []int64{2 * 64 * 1024},
	})
	code, _, _ := runCLI(t, verifyArgs(broken.URL+"/ref.bin", file, "--resume", "--retry-attempts", "0")...)
	if code != ExitVerificationFailed {
		t.Fatalf("first run: expected exit %d, got %d", ExitVerificationFailed, code)
	}
	if _, err := os.Stat(ledgerPath); err != nil {
		t.Fatalf("expected ledger after failed run: %v", err)
	}

	healthy := testutils.StartRangeServer(t, data, testutils.ServerOptions{})
	code, stdout, stderr := runCLI(t, verifyArgs(healthy.URL+"/ref.bin", file, "--resume")...)
	if code != ExitSuccess {
		t.Fatalf("second run: expected exit %d, got %d", ExitSuccess, code)
	}
	if !strings.Contains(stderr, "Resuming: 3/4 blocks already verified") {
		t.Errorf("expected resume message, got:\n%s", stderr)
	}
	if healthy.TotalRequests() != 1 || healthy.Requests(2*64*1024) != 1 {
		t.Errorf("expected only block 2 to be requested, got %d requests", healthy.TotalRequests())
	}
	if got := countLines(stdout, " pass"); got != 1 {
		t.Errorf("expected 1 pass line, got %d", got)
	}
	if _, err := os.Stat(ledgerPath); !os.IsNotExist(err) {
		t.Errorf("expected ledger removed after passing run, stat err = %v", err)
	}
}

func TestVerifyConfigFile(t *testing.T) {
	data := testutils.GenerateTestData(t, 256*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{})

	cfgPath := filepath.Join(t.TempDir(), "rangecheck.yaml")
	yaml := "url: " + server.URL + "/ref.bin\n" +
		"file: " + file + "\n" +
		"block_size: 32KiB\n" +
		"retry:\n  backoff: 1ms\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// Flags override the file.
	code, stdout, _ := runCLI(t, "verify", "--config", cfgPath, "--block-size", "128KiB")
	if code != ExitSuccess {
		t.Fatalf("expected exit %d, got %d", ExitSuccess, code)
	}
	if got := countLines(stdout, " pass"); got != 2 {
		t.Errorf("expected 2 blocks of 128KiB, got %d", got)
	}
}

func TestVerifyEnv(t *testing.T) {
	data := testutils.GenerateTestData(t, 256*1024)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{})

	t.Setenv("RANGECHECK_URL", server.URL+"/ref.bin")
	t.Setenv("RANGECHECK_FILE", file)
	t.Setenv("RANGECHECK_BLOCK_SIZE", "16KiB")

	code, stdout, _ := runCLI(t, "verify", "--progress")
	if code != ExitSuccess {
		t.Fatalf("expected exit %d, got %d", ExitSuccess, code)
	}
	if got := countLines(stdout, " pass"); got != 16 {
		t.Errorf("expected 16 blocks, got %d", got)
	}
}

func TestVerifyEmptyFile(t *testing.T) {
	file := testutils.WriteTempFile(t, "empty.bin", nil)
	server := testutils.StartRangeServer(t, nil, testutils.ServerOptions{})

	code, stdout, _ := runCLI(t, verifyArgs(server.URL+"/empty.bin", file)...)
	if code != ExitSuccess {
		t.Fatalf("expected exit %d, got %d", ExitSuccess, code)
	}
	if stdout != "" {
		t.Errorf("expected no result lines, got %q", stdout)
	}
}

func TestProbe(t *testing.T) {
	data := testutils.GenerateTestData(t, 4096)
	file := testutils.WriteTempFile(t, "ref.bin", data)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{})

	code, stdout, _ := runCLI(t, "probe", "--url", server.URL+"/ref.bin", "--file", file)
	if code != ExitSuccess {
		t.Fatalf("expected exit %d, got %d", ExitSuccess, code)
	}
	if stdout != "size=4096\nranges=ok\n" {
		t.Errorf("unexpected output %q", stdout)
	}
}

func TestProbeSizeMismatch(t *testing.T) {
	data := testutils.GenerateTestData(t, 4096)
	file := testutils.WriteTempFile(t, "ref.bin", data[:100])
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{})

	code, _, _ := runCLI(t, "probe", "--url", server.URL+"/ref.bin", "--file", file)
	if code != ExitSizeMismatch {
		t.Fatalf("expected exit %d, got %d", ExitSizeMismatch, code)
	}
}

func TestProbeRangeUnsupported(t *testing.T) {
	data := testutils.GenerateTestData(t, 4096)
	server := testutils.StartRangeServer(t, data, testutils.ServerOptions{IgnoreRange: true})

	code, stdout, _ := runCLI(t, "probe", "--url", server.URL+"/ref.bin")
	if code != ExitRemoteNotAccess {
		t.Fatalf("expected exit %d, got %d", ExitRemoteNotAccess, code)
	}
	if !strings.Contains(stdout, "ranges=unsupported") {
		t.Errorf("unexpected output %q", stdout)
	}
}
