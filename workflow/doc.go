// Package workflow runs event-triggered functions as durable, step-wise runs.
//
// Sending an event validates it, creates one run per function registered
// for the event name, and schedules the runs on a worker pool. A handler
// splits its work into named steps with Run:
//
//	chunks, err := workflow.Run(ctx, steps, "load-and-chunk", func(ctx context.Context) ([]core.Chunk, error) {
//	    return pipeline.Chunk(event.SourceID, event.RawText)
//	})
//
// Each step result is stored once per run. When a run is resumed after an
// interruption, completed steps return their stored value instead of
// executing again. Failed steps are retried with exponential backoff
// unless the error is permanent.
//
// Run state moves from Queued to Running and then to exactly one of
// Completed, Failed, or Cancelled; terminal states never change.
package workflow
