// Package remote talks to an external Inngest-compatible workflow engine.
//
// Events are posted to {EventURL}/e/{EventKey} and runs are listed from
// {APIBase}/events/{id}/runs. Client satisfies poller.StatusSource, so the
// same poller waits on local and remote runs.
package remote
