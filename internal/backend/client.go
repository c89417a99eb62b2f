// Package backend is the HTTP client for the users API consumed by the
// front-end: list, create, update and delete against one collection URL.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/simp-lee/usercrud/internal/domain"
	"github.com/simp-lee/usercrud/internal/pkg"
)

// Operation names used in logs and metric labels.
const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// requestIDHeader forwards the front-end request ID to the users API.
const requestIDHeader = "X-Request-ID"

// maxErrorBody bounds how much of a failed response body is kept for logs.
const maxErrorBody = 512

// StatusError reports a list response with a non-success status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the users collection at a fixed URL.
type Client struct {
	httpClient *http.Client
	usersURL   string
	logger     *slog.Logger
}

// New creates a users API client for baseURL+usersPath.
// A zero timeout means requests are never timed out by the client.
func New(baseURL, usersPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	raw := strings.TrimRight(baseURL, "/") + "/" + strings.Trim(usersPath, "/")
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse users url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid users url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid users url %q: host is required", raw)
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		usersURL:   strings.TrimRight(u.String(), "/"),
		logger:     logger.With(slog.String("component", "users_api")),
	}, nil
}

// URL returns the users collection URL.
func (c *Client) URL() string {
	return c.usersURL
}

// List fetches the full user list.
// GET <users-url>
//
// Any failure (transport, non-2xx status, undecodable body) is returned as
// a fetch error.
func (c *Client) List(ctx context.Context) ([]domain.UserRecord, error) {
	resp, err := c.do(ctx, OpList, http.MethodGet, c.usersURL, nil)
	if err != nil {
		return nil, domain.NewFetchError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, domain.NewFetchError(&StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	var users []domain.UserRecord
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, domain.NewFetchError(fmt.Errorf("decode users: %w", err))
	}
	if users == nil {
		users = []domain.UserRecord{}
	}
	return users, nil
}

// Create submits a new user.
// POST <users-url>
//
// The response body is discarded. The returned status is informational; an
// error is returned only when no response was received.
func (c *Client) Create(ctx context.Context, form domain.FormState) (int, error) {
	return c.mutate(ctx, OpCreate, http.MethodPost, c.usersURL, &form)
}

// Update replaces the user with the given id.
// PUT <users-url>/{id}
func (c *Client) Update(ctx context.Context, id int64, form domain.FormState) (int, error) {
	return c.mutate(ctx, OpUpdate, http.MethodPut, c.userURL(id), &form)
}

// Delete removes the user with the given id.
// DELETE <users-url>/{id}
func (c *Client) Delete(ctx context.Context, id int64) (int, error) {
	return c.mutate(ctx, OpDelete, http.MethodDelete, c.userURL(id), nil)
}

func (c *Client) userURL(id int64) string {
	return c.usersURL + "/" + strconv.FormatInt(id, 10)
}

func (c *Client) mutate(ctx context.Context, op, method, target string, form *domain.FormState) (int, error) {
	resp, err := c.do(ctx, op, method, target, form)
	if err != nil {
		return 0, domain.NewMutationError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// do sends one request and records its outcome. body, when non-nil, is sent
// as JSON.
func (c *Client) do(ctx context.Context, op, method, target string, body *domain.FormState) (*http.Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := pkg.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(requestIDHeader, id)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:gosec // URL comes from configuration
	elapsed := time.Since(start)

	if err != nil {
		observeRequest(op, "error", elapsed)
		c.logger.DebugContext(ctx, "users api request failed",
			slog.String("op", op),
			slog.String("method", method),
			slog.String("url", target),
			slog.Duration("latency", elapsed),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}

	observeRequest(op, strconv.Itoa(resp.StatusCode), elapsed)
	c.logger.DebugContext(ctx, "users api request",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("url", target),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", elapsed),
	)
	return resp, nil
}
