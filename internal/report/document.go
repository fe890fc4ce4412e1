package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	"gocloud.dev/blob"

	"github.com/ligustah/rangecheck/internal/verifier"
)

// Document is the JSON report of one verification run.
type Document struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	File       string    `json:"file"`
	Start      int64     `json:"start"`
	End        int64     `json:"end"`
	BlockSize  int64     `json:"block_size"`
	Blocks     int       `json:"blocks"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	Errored    int       `json:"errored"`
	Skipped    int       `json:"skipped"`
	OK         bool      `json:"ok"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Problems   []Problem `json:"problems,omitempty"`
}

// Problem describes one block that did not pass.
type Problem struct {
	Block      int    `json:"block"`
	Offset     int64  `json:"offset"`
	Length     int64  `json:"length"`
	Outcome    string `json:"outcome"`
	MismatchAt *int64 `json:"mismatch_at,omitempty"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
}

// NewDocument builds a report from a finished run. The run ID is a KSUID,
// so report keys sort by start time.
func NewDocument(src, file string, plan verifier.Plan, summary *verifier.Summary, startedAt time.Time) *Document {
	doc := &Document{
		RunID:      ksuid.New().String(),
		Source:     src,
		File:       file,
		Start:      plan.Start,
		End:        plan.End,
		BlockSize:  plan.BlockSize,
		Blocks:     summary.Blocks,
		Passed:     summary.Passed,
		Failed:     summary.Failed,
		Errored:    summary.Errored,
		Skipped:    summary.Skipped,
		OK:         summary.OK(),
		StartedAt:  startedAt.UTC(),
		FinishedAt: startedAt.Add(summary.Elapsed).UTC(),
	}

	for _, res := range summary.Problems {
		p := Problem{
			Block:    res.Index,
			Offset:   res.Offset,
			Length:   res.Length,
			Outcome:  res.Outcome.String(),
			Attempts: res.Attempts,
			Error:    errString(res.Err),
		}
		if res.Outcome == verifier.Fail {
			at := res.Offset + res.MismatchAt
			p.MismatchAt = &at
		}
		doc.Problems = append(doc.Problems, p)
	}
	return doc
}

// Key returns the default object key for the document.
func (d *Document) Key() string {
	return "rangecheck/" + d.RunID + ".json"
}

// Upload writes the document as JSON to key in the bucket at bucketURL.
func Upload(ctx context.Context, bucketURL, key string, doc *Document) error {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return fmt.Errorf("report: open bucket: %w", err)
	}
	defer bucket.Close()

	return Write(ctx, bucket, key, doc)
}

// Write writes the document as JSON to key in bucket.
func Write(ctx context.Context, bucket *blob.Bucket, key string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}

	if err := bucket.WriteAll(ctx, key, data, &blob.WriterOptions{
		ContentType: "application/json",
	}); err != nil {
		return fmt.Errorf("report: write %s: %w", key, err)
	}
	return nil
}
