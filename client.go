package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/idempotency"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/tokenstore"
)

const maxResponseBytes = 4 << 20

// Client talks to the banking API on behalf of one user session.
type Client struct {
	config     Config
	baseURL    string
	store      tokenstore.Store
	closeStore func() error
	doer       middleware.Doer
	bare       *http.Client
	session    *Session
	flows      flows.Deps
	transfers  *idempotency.Manager
	accounts   *idempotency.Manager
	terminal   map[int]struct{}
	audit      *internalaudit.Dispatcher
	metrics    *internalmetrics.Metrics
	logger     *slog.Logger
	navigator  Navigator

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Close flushes audit events and closes a store opened by Build. Injected
// stores stay open.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.audit != nil {
			c.audit.Close()
		}
		c.closeErr = c.closeStore()
	})
	return c.closeErr
}

// Session returns the session bound to this client.
func (c *Client) Session() *Session { return c.session }

// Config returns a copy of the configuration the client was built with.
func (c *Client) Config() Config { return cloneConfig(c.config) }

// Store returns the backing token store.
func (c *Client) Store() tokenstore.Store { return c.store }

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

func (c *Client) observeLatency(_ *http.Request, d time.Duration) {
	if c.metrics != nil {
		c.metrics.Observe(MetricRequestLatency, d)
	}
}

func (c *Client) onReplayed(req *http.Request, status int, err error) {
	c.metricInc(MetricRequestReplayed)
	c.logger.DebugContext(req.Context(), "request replayed after refresh",
		slog.String("path", req.URL.Path),
		slog.Int("status", status),
		slog.Bool("failed", err != nil),
	)
}

// call sends a JSON request through the session pipeline. A non-2xx answer
// becomes a *StatusError; no answer at all wraps ErrTransport. out may be a
// *string to receive a plain-text body.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	target := c.endpoint(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.config.API.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.API.UserAgent)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		if errors.Is(err, ErrSessionTerminated) {
			return err
		}
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %w", ErrTransport, method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp.StatusCode, data)
	}
	return decodeBody(data, out)
}

func decodeBody(data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if s, ok := out.(*string); ok {
		var quoted string
		if json.Unmarshal(data, &quoted) == nil {
			*s = quoted
			return nil
		}
		*s = string(bytes.TrimSpace(data))
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
