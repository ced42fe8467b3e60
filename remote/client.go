package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/poiesic/ragflow/core"
)

const (
	DefaultAPIBase  = "http://127.0.0.1:8288/v1"
	DefaultEventURL = "http://127.0.0.1:8288"
	DefaultEventKey = "dev"
	DefaultTimeout  = 15 * time.Second
)

// Config locates a remote workflow engine.
type Config struct {
	APIBase  string
	EventURL string
	EventKey string
}

// DefaultConfig returns the settings of a local development server.
func DefaultConfig() Config {
	return Config{
		APIBase:  DefaultAPIBase,
		EventURL: DefaultEventURL,
		EventKey: DefaultEventKey,
	}
}

// Client sends events to and reads runs from an Inngest-compatible engine.
type Client struct {
	apiBase  string
	eventURL string
	eventKey string
	http     *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets the HTTP client used for requests.
// Default is an http.Client with a 15s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc != nil {
			c.http = hc
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewClient creates a client for the engine described by cfg.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIBase) == "" {
		return nil, ErrAPIBaseRequired
	}
	if strings.TrimSpace(cfg.EventURL) == "" {
		return nil, ErrEventURLRequired
	}
	if cfg.EventKey == "" {
		cfg.EventKey = DefaultEventKey
	}

	c := &Client{
		apiBase:  strings.TrimRight(cfg.APIBase, "/"),
		eventURL: strings.TrimRight(cfg.EventURL, "/"),
		eventKey: cfg.EventKey,
		http:     &http.Client{Timeout: DefaultTimeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "remote")
	return c, nil
}

type wireEvent struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

type sendResponse struct {
	IDs    []string `json:"ids"`
	Status int      `json:"status"`
	Error  string   `json:"error"`
}

// Send validates an event and posts it to the engine, returning the
// event id assigned by the engine.
func (c *Client) Send(ctx context.Context, name string, data []byte) (string, error) {
	event, err := core.DecodeEvent(name, data)
	if err != nil {
		return "", err
	}
	return c.SendEvent(ctx, event)
}

// SendEvent posts a typed event.
func (c *Client) SendEvent(ctx context.Context, event core.Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("%w: nil event", core.ErrValidation)
	}
	if err := core.ValidateEvent(event); err != nil {
		return "", err
	}
	data, err := core.EncodeEvent(event)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrValidation, err)
	}

	endpoint := c.eventURL + "/e/" + url.PathEscape(c.eventKey)
	var resp sendResponse
	if err := c.do(ctx, http.MethodPost, endpoint, []wireEvent{{Name: event.EventName(), Data: data}}, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("sending event %s: %s", event.EventName(), resp.Error)
	}
	if len(resp.IDs) == 0 {
		return "", ErrNoEventID
	}

	c.logger.Info("event sent", "event", event.EventName(), "event_id", resp.IDs[0])
	return resp.IDs[0], nil
}

type wireRun struct {
	RunID        string          `json:"run_id"`
	FunctionID   string          `json:"function_id"`
	Status       string          `json:"status"`
	Output       json.RawMessage `json:"output"`
	RunStartedAt *time.Time      `json:"run_started_at"`
	EndedAt      *time.Time      `json:"ended_at"`
}

type runsResponse struct {
	Data []wireRun `json:"data"`
}

// FetchRuns returns the runs the engine created for an event.
func (c *Client) FetchRuns(ctx context.Context, eventID string) ([]*core.Run, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, fmt.Errorf("%w: event id is required", core.ErrInvalidArgument)
	}

	endpoint := c.apiBase + "/events/" + url.PathEscape(eventID) + "/runs"
	var resp runsResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	runs := make([]*core.Run, 0, len(resp.Data))
	for _, wr := range resp.Data {
		run := &core.Run{
			ID:         wr.RunID,
			FunctionID: wr.FunctionID,
			EventID:    eventID,
			Status:     core.RunStatus(wr.Status),
			Output:     wr.Output,
		}
		if wr.RunStartedAt != nil {
			run.CreatedAt = *wr.RunStartedAt
		}
		if wr.EndedAt != nil {
			run.UpdatedAt = *wr.EndedAt
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: %s: %s", ErrUnexpectedStatus, method, endpoint, resp.Status, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}
	return nil
}
