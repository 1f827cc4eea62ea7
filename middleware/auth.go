package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

const maxFailureBodyBytes = 64 << 10

// ErrSessionTerminated is matched by errors returned after a failed refresh forced
// the session to end.
var ErrSessionTerminated = errors.New("session terminated")

// SessionTerminatedError carries the auth-failure response that started the
// refresh and the reason the refresh failed.
type SessionTerminatedError struct {
	StatusCode int
	Body       []byte
	Cause      error
}

func (e *SessionTerminatedError) Error() string {
	msg := "session terminated after status " + strconv.Itoa(e.StatusCode)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SessionTerminatedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrSessionTerminated}
	}
	return []error{ErrSessionTerminated, e.Cause}
}

// SessionSource reads the current access token.
type SessionSource interface {
	AccessToken(ctx context.Context) (token string, ok bool, err error)
}

// Refresher obtains and persists a new access token. stale is the token the
// failed request was sent with.
type Refresher interface {
	Refresh(ctx context.Context, stale string) (string, error)
}

// Terminator ends the session after an irrecoverable refresh failure.
type Terminator interface {
	Terminate(ctx context.Context, cause error)
}

// Hooks observe the auth path. Nil fields are skipped.
type Hooks struct {
	OnRefreshed  func(req *http.Request)
	OnTerminated func(req *http.Request, cause error)
	OnReplayed   func(req *http.Request, status int, err error)
}

// AuthOption configures Authenticate.
type AuthOption func(*authenticator)

// WithHooks registers observation hooks.
func WithHooks(h Hooks) AuthOption {
	return func(a *authenticator) { a.hooks = h }
}

type retriedKey struct{}

// IsRetry reports whether ctx belongs to a replayed request.
func IsRetry(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

type authenticator struct {
	cfg       Config
	session   SessionSource
	refresher Refresher
	term      Terminator
	hooks     Hooks
	next      Doer
}

// Authenticate attaches "Authorization: Bearer <access>" to every non-excluded
// request. When the response status is an auth failure and the request has not
// been retried yet, it refreshes the token and replays the request once with the
// new token; the replay's outcome is returned as-is. If the refresh fails the
// session is terminated and a *SessionTerminatedError is returned.
func Authenticate(cfg Config, session SessionSource, refresher Refresher, term Terminator, opts ...AuthOption) Middleware {
	return func(next Doer) Doer {
		a := &authenticator{
			cfg:       cfg,
			session:   session,
			refresher: refresher,
			term:      term,
			next:      next,
		}
		for _, opt := range opts {
			opt(a)
		}
		return a
	}
}

func (a *authenticator) Do(req *http.Request) (*http.Response, error) {
	if a.cfg.Excluded(req.URL.Path) {
		return a.next.Do(req)
	}
	if err := makeReplayable(req); err != nil {
		return nil, err
	}

	ctx := req.Context()
	token, ok, err := a.session.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}

	attempt, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	if ok && token != "" {
		attempt.Header.Set("Authorization", "Bearer "+token)
	} else {
		attempt.Header.Del("Authorization")
	}

	resp, err := a.next.Do(attempt)
	if err != nil || !a.cfg.IsAuthFailure(resp.StatusCode) || IsRetry(ctx) {
		return resp, err
	}

	status := resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxFailureBodyBytes))
	_ = resp.Body.Close()

	if _, err := a.refresher.Refresh(ctx, token); err != nil {
		// The caller gave up; the session itself may still be fine.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if a.term != nil {
			a.term.Terminate(ctx, err)
		}
		if a.hooks.OnTerminated != nil {
			a.hooks.OnTerminated(req, err)
		}
		return nil, &SessionTerminatedError{StatusCode: status, Body: body, Cause: err}
	}
	if a.hooks.OnRefreshed != nil {
		a.hooks.OnRefreshed(req)
	}

	resp, err = a.Do(req.WithContext(markRetried(ctx)))
	if a.hooks.OnReplayed != nil {
		replayStatus := 0
		if resp != nil {
			replayStatus = resp.StatusCode
		}
		a.hooks.OnReplayed(req, replayStatus, err)
	}
	return resp, err
}

// makeReplayable buffers the body once so that every attempt can send it again.
func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	req.ContentLength = int64(len(data))
	return nil
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = body
	}
	return out, nil
}
