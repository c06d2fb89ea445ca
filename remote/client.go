// Package remote talks to the board service over HTTP. It implements the
// mutation sink of the optimistic controller and the status source of the
// job poller.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

const (
	tracerName = "github.com/crypticpy/Grantscope-2-sub004/remote"

	// maxErrorBody caps how much of a failed response is kept on StatusError.
	maxErrorBody = 4 << 10
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
	// Message is the server's own explanation when the body carried one.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Body != "" {
		return fmt.Sprintf("board service returned %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("board service returned %d", e.Code)
}

// Client wraps http.Client with the board service routes.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client

	// NewKey generates idempotency keys for mutations that carry none.
	NewKey func() string
}

// New creates a Client. A non-positive timeout leaves requests unbounded
// apart from their context.
func New(baseURL, bearer string, timeout time.Duration) *Client {
	hc := &http.Client{}
	if timeout > 0 {
		hc.Timeout = timeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    hc,
		NewKey:  uuid.NewString,
	}
}

// PerformMutation sends m as a single command. A duplicate acknowledgement
// counts as success.
func (c *Client) PerformMutation(ctx context.Context, m domain.Mutation) (err error) {
	ctx, span := c.start(ctx, "remote.perform_mutation",
		attribute.String("board.mutation", string(m.Kind)),
		attribute.String("board.item_id", m.ItemID),
	)
	defer func() { end(span, err) }()

	key := m.IdempotencyKey
	if key == "" {
		key = c.NewKey()
	}
	cmd, err := domain.NewCommand(m, key)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	var resp domain.CommandsResponse
	if err := c.do(ctx, http.MethodPost, "/api/commands", []domain.Command{cmd}, &resp); err != nil {
		return err
	}
	for _, r := range resp.Results {
		if r.Status == domain.CommandRejected {
			return fmt.Errorf("command %s rejected: %s", r.IdempotencyKey, r.Error)
		}
	}
	return nil
}

// PollJobStatus reads one job snapshot. Only transport failures and non-2xx
// responses are errors.
func (c *Client) PollJobStatus(ctx context.Context, jobID string) (snap domain.JobSnapshot, err error) {
	ctx, span := c.start(ctx, "remote.poll_job", attribute.String("board.job_id", jobID))
	defer func() {
		span.SetAttributes(attribute.String("board.job_status", string(snap.Status)))
		end(span, err)
	}()
	err = c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &snap)
	return snap, err
}

// FetchBoard returns every item of the caller's board.
func (c *Client) FetchBoard(ctx context.Context) (items []domain.Item, err error) {
	ctx, span := c.start(ctx, "remote.fetch_board")
	defer func() {
		span.SetAttributes(attribute.Int("board.items", len(items)))
		end(span, err)
	}()
	var resp domain.TasksResponse
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// StartJob asks the service to run a brief or scan job.
func (c *Client) StartJob(ctx context.Context, kind, itemID string) (acc domain.JobAccepted, err error) {
	ctx, span := c.start(ctx, "remote.start_job", attribute.String("board.job_kind", kind))
	defer func() { end(span, err) }()
	err = c.do(ctx, http.MethodPost, "/api/jobs", domain.JobRequest{Kind: kind, ItemID: itemID}, &acc)
	return acc, err
}

// FetchResult downloads the full result document of a completed job.
func (c *Client) FetchResult(ctx context.Context, jobID string) (doc sonic.NoCopyRawMessage, err error) {
	ctx, span := c.start(ctx, "remote.fetch_result", attribute.String("board.job_id", jobID))
	defer func() { end(span, err) }()
	err = c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID)+"/result", nil, &doc)
	return doc, err
}

// Finalize has the shape of poller.Options.Finalize.
func (c *Client) Finalize(ctx context.Context, snap domain.JobSnapshot) (sonic.NoCopyRawMessage, error) {
	return c.FetchResult(ctx, snap.JobID)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if doc, ok := out.(*sonic.NoCopyRawMessage); ok {
		*doc = raw
		return nil
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// statusError keeps the head of the body and lifts a server message out of
// a commands response.
func statusError(resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	var cr domain.CommandsResponse
	if sonic.Unmarshal(raw, &cr) == nil {
		for _, r := range cr.Results {
			if r.Status == domain.CommandRejected && r.Error != "" {
				se.Message = r.Error
				return se
			}
		}
		se.Message = cr.Error
	}
	return se
}

func (c *Client) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
