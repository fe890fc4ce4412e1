// Package report delivers verification results.
//
// [LineSink] prints one flushed line per block as results arrive.
// [Ledger] records passed blocks so an interrupted run can resume.
// [Document] is the JSON summary of a run; [Upload] stores it in any
// gocloud bucket:
//
//	{bucket}/rangecheck/{run_id}.json
package report
