package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/tokenstore"
)

// Session is the explicit session context: the stored token pair plus the
// operations that create, rotate and destroy it. It is the single source of
// tokens for the request pipeline.
type Session struct {
	c *Client
}

// Init stores a token pair as the current session. An empty refreshToken
// removes any stored refresh token.
func (s *Session) Init(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return ErrMalformedTokenResponse
	}
	if err := flows.StorePair(ctx, s.c.store, refresh.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}); err != nil {
		return err
	}
	if refreshToken == "" {
		return s.c.store.Remove(ctx, tokenstore.RefreshTokenKey)
	}
	return nil
}

// Teardown removes the token pair. Pending idempotency keys are kept unless
// Session.PurgeStoreOnLogout is set.
func (s *Session) Teardown(ctx context.Context) error {
	if s.c.config.Session.PurgeStoreOnLogout {
		return s.c.store.ClearAll(ctx)
	}
	return tokenstore.RemoveMany(ctx, s.c.store, tokenstore.AccessTokenKey, tokenstore.RefreshTokenKey)
}

func (s *Session) AccessToken(ctx context.Context) (string, bool, error) {
	return s.c.store.Get(ctx, tokenstore.AccessTokenKey)
}

func (s *Session) RefreshToken(ctx context.Context) (string, bool, error) {
	return s.c.store.Get(ctx, tokenstore.RefreshTokenKey)
}

// Claims decodes the current access token without verifying it. A missing
// token yields ErrNoSession.
func (s *Session) Claims(ctx context.Context) (*jwt.Claims, error) {
	token, ok, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if !ok || token == "" {
		return nil, ErrNoSession
	}
	return jwt.Parse(token)
}

// UserID is the token subject, or Idempotency.DefaultUserID when there is no
// readable token.
func (s *Session) UserID(ctx context.Context) string {
	claims, err := s.Claims(ctx)
	if err != nil || claims.Subject == "" {
		return s.c.config.Idempotency.DefaultUserID
	}
	return claims.Subject
}

// Info summarizes the stored session. A token without exp is reported with a
// zero ExpiresAt.
func (s *Session) Info(ctx context.Context) (SessionInfo, error) {
	claims, err := s.Claims(ctx)
	if err != nil {
		return SessionInfo{}, err
	}
	rt, ok, err := s.RefreshToken(ctx)
	if err != nil {
		return SessionInfo{}, err
	}
	info := SessionInfo{
		UserID:          claims.Subject,
		Role:            claims.Role,
		HasRefreshToken: ok && rt != "",
	}
	if exp, ok := claims.Expiry(); ok {
		info.ExpiresAt = exp
		info.Remaining = claims.Remaining(time.Now())
	}
	return info, nil
}

// Refresh obtains a new access token for a request that failed while carrying
// stale. Concurrent calls share one exchange when single-flight refresh is on.
// Errors are returned as-is when ctx ended; otherwise they are wrapped with the
// failure kind.
func (s *Session) Refresh(ctx context.Context, stale string) (string, error) {
	c := s.c
	res := flows.RunRefresh(ctx, stale, c.flows.Refresh)

	switch res.Failure {
	case flows.RefreshFailureNone:
		switch {
		case res.Reused:
			c.metricInc(MetricRefreshReused)
		case res.Shared:
			c.metricInc(MetricRefreshSuccess)
			c.metricInc(MetricRefreshShared)
		default:
			c.metricInc(MetricRefreshSuccess)
			c.emitAudit(ctx, AuditEvent{
				EventType: AuditRefresh,
				UserID:    s.UserID(ctx),
				Success:   true,
				Metadata:  map[string]string{"rotated": fmt.Sprint(res.Rotated)},
			})
		}
		c.logger.DebugContext(ctx, "access token refreshed",
			slog.Bool("shared", res.Shared),
			slog.Bool("reused", res.Reused),
			slog.Bool("rotated", res.Rotated),
		)
		return res.AccessToken, nil

	case flows.RefreshFailureCanceled:
		return "", res.Err

	default:
		c.metricInc(MetricRefreshFailure)
		c.emitAudit(ctx, AuditEvent{
			EventType:  AuditRefresh,
			UserID:     s.UserID(ctx),
			StatusCode: res.StatusCode,
			Error:      res.Failure.String(),
		})
		c.logger.WarnContext(ctx, "refresh failed",
			slog.String("kind", res.Failure.String()),
			slog.Int("status", res.StatusCode),
		)
		return "", fmt.Errorf("refresh %s: %w", res.Failure, res.Err)
	}
}

// Terminate ends the session after an irrecoverable refresh failure: the token
// pair is removed and the navigator is sent to login. No server call is made.
func (s *Session) Terminate(ctx context.Context, cause error) {
	c := s.c
	userID := s.UserID(ctx)
	cleanup := context.WithoutCancel(ctx)

	res := flows.RunLogout(cleanup, flows.LogoutDeps{
		Store:    c.store,
		PurgeAll: c.config.Session.PurgeStoreOnLogout,
		Navigate: c.navigator.ToLogin,
	})
	c.metricInc(MetricForcedLogout)

	event := AuditEvent{EventType: AuditForcedLogout, UserID: userID, Success: res.Err == nil}
	if cause != nil {
		event.Error = cause.Error()
	}
	c.emitAudit(cleanup, event)

	attrs := []any{slog.Any("cause", cause)}
	if res.Err != nil {
		attrs = append(attrs, slog.Any("cleanup_error", res.Err))
	}
	c.logger.WarnContext(cleanup, "session terminated", attrs...)
}

// IsSessionTerminated reports whether err came from a forced logout.
func IsSessionTerminated(err error) bool {
	return errors.Is(err, ErrSessionTerminated)
}
