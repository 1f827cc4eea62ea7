package goSession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/sessionclock"
	"github.com/MrEthical07/goSession/tokenstore"
)

// Login exchanges credentials for a token pair and stores it. A 401 from the
// API yields ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidRequest)
	}

	res := flows.RunLogin(ctx, email, password, c.flows.Login)
	if res.Failure != flows.LoginFailureNone {
		c.metricInc(MetricLoginFailure)
		c.emitAudit(ctx, AuditEvent{
			EventType:  AuditLogin,
			StatusCode: StatusCode(res.Err),
			Error:      res.Err.Error(),
		})
		return res.Err
	}

	c.metricInc(MetricLoginSuccess)
	c.emitAudit(ctx, AuditEvent{EventType: AuditLogin, UserID: c.session.UserID(ctx), Success: true})
	return nil
}

func (c *Client) authenticate(ctx context.Context, email, password string) (refresh.TokenPair, error) {
	var raw json.RawMessage
	err := c.call(ctx, http.MethodPost, c.config.API.LoginPath, nil, map[string]string{
		"email":    email,
		"password": password,
	}, &raw)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
			return refresh.TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return refresh.TokenPair{}, err
	}
	return refresh.DecodePair(raw)
}

// Signup registers a user. The phone number is reduced to digits and an empty
// role becomes RoleUser. A 409 yields ErrEmailTaken.
func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidRequest)
	}
	req.Phone = digitsOnly(req.Phone)
	if req.Role == "" {
		req.Role = RoleUser
	}

	err := c.call(ctx, http.MethodPost, c.config.API.SignupPath, nil, req, nil)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %w", ErrEmailTaken, err)
	}
	return err
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CheckEmail reports whether email can still be registered. A 409 answer means
// taken; a 2xx answer is read as a JSON boolean or {"available": bool} and
// otherwise means available.
func (c *Client) CheckEmail(ctx context.Context, email string) (bool, error) {
	var raw json.RawMessage
	err := c.call(ctx, http.MethodGet, c.config.API.CheckEmailPath, url.Values{"email": {email}}, nil, &raw)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
			return false, nil
		}
		return false, err
	}

	var available bool
	if json.Unmarshal(raw, &available) == nil {
		return available, nil
	}
	var obj struct {
		Available *bool `json:"available"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Available != nil {
		return *obj.Available, nil
	}
	return true, nil
}

// Logout tells the API (best effort, failures are only logged), removes the
// token pair and sends the navigator to login.
func (c *Client) Logout(ctx context.Context) error {
	userID := c.session.UserID(ctx)
	deps := c.flows.Logout
	deps.Revoke = c.revoke

	res := flows.RunLogout(ctx, deps)
	c.metricInc(MetricLogout)
	event := AuditEvent{EventType: AuditLogout, UserID: userID, Success: res.Err == nil}
	if res.RevokeErr != nil {
		event.Metadata = map[string]string{"server": "unreachable"}
	}
	c.emitAudit(ctx, event)
	return res.Err
}

// revoke posts to the logout endpoint outside the pipeline so that a rejected
// token cannot start a refresh during logout.
func (c *Client) revoke(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.config.API.LogoutPath), strings.NewReader("{}"))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.bare.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp.StatusCode, nil)
	}
	return nil
}

// ExtendSession refreshes the access token on demand and returns its new
// expiry. Any failure logs the user out.
func (c *Client) ExtendSession(ctx context.Context) (time.Time, error) {
	if _, err := c.session.Refresh(ctx, ""); err != nil {
		if ctx.Err() != nil {
			return time.Time{}, err
		}
		_ = c.Logout(context.WithoutCancel(ctx))
		return time.Time{}, err
	}

	claims, err := c.session.Claims(ctx)
	if err == nil {
		if exp, ok := claims.Expiry(); ok {
			return exp, nil
		}
		err = fmt.Errorf("%w: access token has no exp", ErrMalformedTokenResponse)
	}
	_ = c.Logout(context.WithoutCancel(ctx))
	return time.Time{}, err
}

// WatchSession starts a countdown to the access token's expiry. onTick (may be
// nil) receives the remaining time once per Session.TickInterval. When the token
// expires the user is logged out. A missing or unreadable token, or one without
// exp, logs out immediately and returns ErrNoSession. Stop the returned clock
// or cancel ctx to stop watching.
func (c *Client) WatchSession(ctx context.Context, onTick func(remaining time.Duration)) (*sessionclock.Clock, error) {
	claims, err := c.session.Claims(ctx)
	var exp time.Time
	ok := false
	if err == nil {
		exp, ok = claims.Expiry()
	}
	if !ok {
		c.logger.WarnContext(ctx, "no usable session to watch", slog.Any("error", err))
		_ = c.Logout(context.WithoutCancel(ctx))
		if err != nil && !errors.Is(err, ErrNoSession) {
			return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
		}
		return nil, ErrNoSession
	}

	opts := []sessionclock.Option{
		sessionclock.WithInterval(c.config.Session.TickInterval),
		sessionclock.OnExpired(func() {
			bg := context.WithoutCancel(ctx)
			c.metricInc(MetricSessionExpired)
			c.emitAudit(bg, AuditEvent{EventType: AuditSessionExpired, UserID: claims.Subject, Success: true})
			_ = c.Logout(bg)
		}),
	}
	if onTick != nil {
		opts = append(opts, sessionclock.OnTick(onTick))
	}
	clock := sessionclock.New(exp, opts...)
	clock.Start(ctx)
	return clock, nil
}

// HasSession reports whether an access token is stored.
func (c *Client) HasSession(ctx context.Context) (bool, error) {
	token, ok, err := c.store.Get(ctx, tokenstore.AccessTokenKey)
	return ok && token != "", err
}
