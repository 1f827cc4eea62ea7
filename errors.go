package goSession

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/refresh"
)

var (
	// ErrBuilderUsed is returned by a second Build call.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrClientClosed is returned by operations on a closed Client.
	ErrClientClosed = errors.New("client closed")
	// ErrNoSession is returned when no usable access token is stored.
	ErrNoSession = errors.New("no active session")
	// ErrInvalidCredentials is returned when the API rejects a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited is matched by StatusErrors carrying 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmailTaken is returned by Signup when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrMalformedTokenResponse is returned when a login or refresh response has
	// no usable access token.
	ErrMalformedTokenResponse = refresh.ErrMalformedResponse
	// ErrNoRefreshToken is returned when a refresh is needed but none is stored.
	ErrNoRefreshToken = refresh.ErrNoRefreshToken
	// ErrTransport wraps failures where no HTTP response was received. The
	// server may or may not have applied the request.
	ErrTransport = errors.New("transport failure")
	// ErrInvalidRequest is returned before any I/O when a request is incomplete.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSessionTerminated is matched by errors returned after a failed
	// refresh ended the session.
	ErrSessionTerminated = middleware.ErrSessionTerminated
)

// SessionTerminatedError carries the auth-failure response that started the
// refresh and the refresh failure.
type SessionTerminatedError = middleware.SessionTerminatedError

// StatusError is a non-2xx API response. Message comes from the JSON error body
// ({code, message}) or the plain-text body.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
	Body       []byte
	kind       error
}

func (e *StatusError) Error() string {
	msg := "api returned status " + strconv.Itoa(e.StatusCode)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.kind }

const maxErrorMessage = 512

func newStatusError(status int, body []byte) *StatusError {
	e := &StatusError{StatusCode: status, Body: body}
	var dto struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &dto) == nil && (dto.Code != "" || dto.Message != "") {
		e.Code = dto.Code
		e.Message = dto.Message
	} else {
		e.Message = strings.TrimSpace(string(body))
		var quoted string
		if json.Unmarshal(body, &quoted) == nil {
			e.Message = quoted
		}
	}
	if len(e.Message) > maxErrorMessage {
		e.Message = e.Message[:maxErrorMessage]
	}
	if status == 429 {
		e.kind = ErrRateLimited
	}
	return e
}

// Ambiguous reports whether err leaves the outcome of a request unknown: no
// response arrived, the caller gave up, or the server failed with a 5xx.
func Ambiguous(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransport) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
