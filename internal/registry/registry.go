// Package registry talks to the external arena registry: it validates arenas
// before a socket is upgraded and receives final results.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DoyleJ11/arena-sessions/internal/engine"
)

var (
	ErrNotConfigured    = errors.New("registry not configured")
	ErrUnexpectedStatus = errors.New("unexpected registry status")
)

const (
	statusPath   = "/api/arenas/status"
	finalizePath = "/api/arenas/finalize"

	// error bodies are logged, not parsed
	maxErrorBody = 4 << 10
)

type ArenaStatus string

const (
	StatusLobby  ArenaStatus = "lobby"
	StatusActive ArenaStatus = "active"
	StatusEnded  ArenaStatus = "ended"
)

// Status is the registry's view of an arena. Status is empty when the arena
// does not exist.
type Status struct {
	Exists bool        `json:"exists"`
	Status ArenaStatus `json:"status"`
}

// StatusError carries a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry responded %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	tracer  trace.Tracer
}

func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
		tracer:  otel.Tracer("github.com/DoyleJ11/arena-sessions/internal/registry"),
	}
}

// Status looks up arenaID.
func (c *Client) Status(ctx context.Context, arenaID string) (Status, error) {
	ctx, span := c.tracer.Start(ctx, "registry.Status",
		trace.WithAttributes(attribute.String("arena.id", arenaID)))
	defer span.End()

	if c.baseURL == "" {
		return Status{}, ErrNotConfigured
	}

	u := c.baseURL + statusPath + "?" + url.Values{"arenaId": {arenaID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Status{}, err
	}

	var out Status
	if err := c.do(req, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Status{}, err
	}
	return out, nil
}

type finalizeResponse struct {
	Success bool `json:"success"`
}

// Finalize posts results with the service bearer secret.
func (c *Client) Finalize(ctx context.Context, results engine.Results) error {
	ctx, span := c.tracer.Start(ctx, "registry.Finalize",
		trace.WithAttributes(
			attribute.String("arena.id", results.ArenaID),
			attribute.String("arena.end_reason", string(results.EndReason)),
		))
	defer span.End()

	if c.baseURL == "" || c.secret == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+finalizePath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	var out finalizeResponse
	if err := c.do(req, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !out.Success {
		return fmt.Errorf("%w: success=false", ErrUnexpectedStatus)
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
