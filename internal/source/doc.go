// Package source abstracts the remote side of a verification run.
//
// A [Source] reads byte ranges of a single remote object. Two
// implementations exist:
//   - [HTTP] issues ranged GET requests (Range or x-ms-range header) through
//     the internal http client
//   - [Blob] uses gocloud.dev/blob, so any registered driver works
//     (s3://, gs://, azblob://, file://, mem://)
//
// Both retry transient failures with the same retry.Policy. [Open] picks an
// implementation from the URL scheme. Bucket drivers are registered by the
// binary, not by this package.
package source
