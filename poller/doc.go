// Package poller waits for workflow runs to finish.
//
// A Poller repeatedly asks a StatusSource for the runs triggered by an
// event until the first run reports a success or failure status, or the
// timeout elapses. Success statuses include the aliases external engines
// use (Succeeded, Success, Finished) besides Completed. Timing out only
// stops waiting; the run keeps going.
package poller
