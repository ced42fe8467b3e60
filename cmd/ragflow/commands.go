package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/poiesic/ragflow"
	"github.com/poiesic/ragflow/config"
	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/ingestion"
	"github.com/poiesic/ragflow/poller"
	"github.com/poiesic/ragflow/remote"
	"github.com/urfave/cli/v2"
)

// eventClient is what the commands need from either engine.
type eventClient interface {
	SendEvent(ctx context.Context, event core.Event) (string, error)
	poller.StatusSource
}

// session is an open local engine or remote client.
type session struct {
	cfg    *config.Config
	client eventClient
	engine *ragflow.Engine // nil in remote mode
}

func (s *session) Close() error {
	if s.engine != nil {
		return s.engine.Close()
	}
	return nil
}

func (s *session) poller(c *cli.Context) (*poller.Poller, error) {
	opts := s.cfg.PollerOptions()
	if d := c.Duration("timeout"); d > 0 {
		opts = append(opts, poller.WithTimeout(d))
	}
	return poller.NewPoller(s.client, opts...)
}

func (a *cliApp) loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}

func (a *cliApp) openSession(c *cli.Context) (*session, error) {
	cfg, err := a.loadConfig(c)
	if err != nil {
		return nil, err
	}

	if c.Bool("remote") {
		client, err := remote.NewClient(cfg.RemoteConfig())
		if err != nil {
			return nil, err
		}
		return &session{cfg: cfg, client: client}, nil
	}

	engine, err := ragflow.Open(c.Context, cfg, a.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("opening engine: %w", err)
	}
	return &session{cfg: cfg, client: engine, engine: engine}, nil
}

func (a *cliApp) openLocal(c *cli.Context) (*session, error) {
	if c.Bool("remote") {
		return nil, fmt.Errorf("%s is only available for the local engine", c.Command.Name)
	}
	return a.openSession(c)
}

func (a *cliApp) ingestCommand(c *cli.Context) error {
	ctx := c.Context
	files := c.Args().Slice()
	if len(files) == 0 {
		return errors.New("at least one file is required")
	}
	sourceID := c.String("source-id")
	if sourceID != "" && len(files) > 1 {
		return errors.New("--source-id can only be used with a single file")
	}

	events := make([]core.IngestDocumentEvent, 0, len(files))
	for _, path := range files {
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		id := sourceID
		if id == "" {
			id = filepath.Base(path)
		}
		events = append(events, core.IngestDocumentEvent{SourceID: id, RawText: string(text)})
	}

	if c.Bool("direct") {
		return a.ingestDirect(c, events)
	}

	sess, err := a.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	eventIDs := make([]string, len(events))
	for i, ev := range events {
		eventIDs[i], err = sess.client.SendEvent(ctx, ev)
		if err != nil {
			return fmt.Errorf("sending %s: %w", ev.SourceID, err)
		}
	}

	if c.Bool("no-wait") {
		for i, ev := range events {
			fmt.Fprintf(a.out, "%s\t%s\n", eventIDs[i], ev.SourceID)
		}
		return nil
	}

	p, err := sess.poller(c)
	if err != nil {
		return err
	}

	tracker := NewProgressTracker(a.errOut, len(events), "documents")
	tracker.Start()
	var errs []error
	chunks := 0
	for i, ev := range events {
		result, err := poller.WaitFor[core.IngestResult](ctx, p, eventIDs[i])
		if err != nil {
			tracker.Fail()
			errs = append(errs, fmt.Errorf("%s (event %s): %w", ev.SourceID, eventIDs[i], err))
			continue
		}
		chunks += result.Ingested
		tracker.Increment(1)
	}
	tracker.Finish()

	fmt.Fprintf(a.out, "Ingested %d chunks from %d of %d documents in %s\n",
		chunks, len(events)-len(errs), len(events), tracker.Elapsed().Round(time.Millisecond))
	return errors.Join(errs...)
}

func (a *cliApp) ingestDirect(c *cli.Context, events []core.IngestDocumentEvent) error {
	if c.Bool("remote") {
		return errors.New("--direct is only available for the local engine")
	}
	if c.Bool("no-wait") {
		return errors.New("--direct cannot be combined with --no-wait")
	}

	sess, err := a.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	docs := make([]ingestion.Document, len(events))
	for i, ev := range events {
		docs[i] = ingestion.Document{SourceID: ev.SourceID, Text: ev.RawText}
	}

	tracker := NewProgressTracker(a.errOut, len(docs), "documents")
	tracker.Start()
	var chunks, failed atomic.Int64
	err = sess.engine.IngestAll(c.Context, docs, func(_ ingestion.Document, result core.IngestResult, err error) {
		if err != nil {
			failed.Add(1)
			tracker.Fail()
			return
		}
		chunks.Add(int64(result.Ingested))
		tracker.Increment(1)
	})
	tracker.Finish()

	fmt.Fprintf(a.out, "Ingested %d chunks from %d of %d documents in %s\n",
		chunks.Load(), int64(len(docs))-failed.Load(), len(docs), tracker.Elapsed().Round(time.Millisecond))
	return err
}

func (a *cliApp) queryCommand(c *cli.Context) error {
	ctx := c.Context
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("a question is required")
	}

	sess, err := a.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	topK := sess.cfg.Query.TopK
	if c.IsSet("top-k") {
		topK = c.Int("top-k")
	}

	eventID, err := sess.client.SendEvent(ctx, core.QueryDocumentEvent{
		Question:     question,
		TopK:         topK,
		SourceFilter: c.String("source"),
	})
	if err != nil {
		return err
	}

	p, err := sess.poller(c)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		output, err := p.WaitForOutput(ctx, eventID)
		if err != nil {
			return err
		}
		return a.printJSON(output)
	}

	result, err := poller.WaitFor[core.QueryResult](ctx, p, eventID)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, result.Answer)
	if len(result.Sources) > 0 {
		fmt.Fprintln(a.out)
		fmt.Fprintf(a.out, "Sources (%d contexts):\n", result.NumContexts)
		for _, src := range result.Sources {
			fmt.Fprintf(a.out, "  - %s\n", src)
		}
	}
	return nil
}

func (a *cliApp) statusCommand(c *cli.Context) error {
	eventID := c.Args().First()
	if eventID == "" {
		return errors.New("an event id is required")
	}

	sess, err := a.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	runs, err := sess.client.FetchRuns(c.Context, eventID)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(a.out, "No runs for event %s\n", eventID)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tFUNCTION\tSTATUS\tUPDATED")
	for _, run := range runs {
		updated := "-"
		if !run.UpdatedAt.IsZero() {
			updated = run.UpdatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", run.ID, run.FunctionID, run.Status, updated)
	}
	return w.Flush()
}

func (a *cliApp) waitCommand(c *cli.Context) error {
	eventID := c.Args().First()
	if eventID == "" {
		return errors.New("an event id is required")
	}

	sess, err := a.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	if sess.engine != nil {
		// Runs of this event may have been left unfinished by an earlier process.
		if _, err := sess.engine.ResumePending(c.Context); err != nil {
			return err
		}
	}

	p, err := sess.poller(c)
	if err != nil {
		return err
	}
	output, err := p.WaitForOutput(c.Context, eventID)
	if err != nil {
		return err
	}
	return a.printJSON(output)
}

func (a *cliApp) resumeCommand(c *cli.Context) error {
	sess, err := a.openLocal(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	resumed, err := sess.engine.ResumePending(c.Context)
	if err != nil {
		return err
	}
	sess.engine.Wait()
	fmt.Fprintf(a.out, "Resumed %d runs\n", resumed)
	return nil
}

func (a *cliApp) cancelCommand(c *cli.Context) error {
	runID := c.Args().First()
	if runID == "" {
		return errors.New("a run id is required")
	}

	sess, err := a.openLocal(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.engine.Cancel(c.Context, runID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Cancelled run %s\n", runID)
	return nil
}

func (a *cliApp) printJSON(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(a.out)
	return err
}
