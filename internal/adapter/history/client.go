// Package history is the REST client of the paginated notification store.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/reconnect"
	"github.com/webitel/im-live-notify/internal/service"
)

// Interface guard
var _ service.HistoryStore = (*Client)(nil)

var (
	ErrNotFound     = errors.New("history: not found")
	ErrUnauthorized = errors.New("history: unauthorized")
	ErrBadRequest   = errors.New("history: bad request")
	ErrServer       = errors.New("history: server error")
)

// BreakerSettings tune the circuit breaker guarding the API.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

type Client struct {
	http    *http.Client
	base    *url.URL
	tokens  reconnect.TokenSource
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// New builds a client for base + path, e.g. http://host/api/notifications.
func New(base, path string, timeout time.Duration, tokens reconnect.TokenSource, bs BreakerSettings, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("history: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("history: base url %q must be absolute", base)
	}

	c := &Client{
		http:   &http.Client{Timeout: timeout},
		base:   u.JoinPath(path),
		tokens: tokens,
		logger: logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "history-api",
		MaxRequests: bs.MaxRequests,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < max(bs.MinRequests, 1) {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= bs.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[HISTORY] circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		// client errors say nothing about the health of the API
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrUnauthorized) ||
				errors.Is(err, ErrBadRequest)
		},
	})

	return c, nil
}

func (c *Client) List(ctx context.Context, cursor string, limit int) (model.Page, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var page model.Page
	if err := c.do(ctx, http.MethodGet, c.base, q, &page); err != nil {
		return model.Page{}, err
	}

	valid := page.Items[:0]
	for _, n := range page.Items {
		if err := n.Validate(); err != nil {
			c.logger.Warn("[HISTORY] malformed item dropped", slog.Any("err", err))
			continue
		}
		valid = append(valid, n)
	}
	page.Items = valid
	return page, nil
}

func (c *Client) MarkRead(ctx context.Context, id model.ID) error {
	return c.do(ctx, http.MethodPost, c.base.JoinPath(id.String(), "read"), nil, nil)
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.base.JoinPath("read-all"), nil, nil)
}

func (c *Client) DeleteRead(ctx context.Context) (int, error) {
	var res struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, c.base.JoinPath("read"), nil, &res); err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, q url.Values, out any) error {
	target := *u
	if q != nil {
		target.RawQuery = q.Encode()
	}

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, target.String(), out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrServer, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("history: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("history: token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("history: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("history: decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	var sentinel error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		sentinel = ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		sentinel = ErrUnauthorized
	case resp.StatusCode < 500:
		sentinel = ErrBadRequest
	default:
		sentinel = ErrServer
	}
	return fmt.Errorf("%w: %s: %s", sentinel, resp.Status, body)
}
