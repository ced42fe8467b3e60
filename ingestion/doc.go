// Package ingestion turns raw document text into stored vector points.
//
// The Pipeline type runs the ingestion workflow for a document:
//   - Splitting the text into overlapping passages
//   - Embedding all passages in one batched call
//   - Upserting one point per passage, keyed by source and position
//
// Chunk and Store are exposed separately so a workflow can memoize each
// half. IngestAll fans several documents out over a worker pool.
package ingestion
