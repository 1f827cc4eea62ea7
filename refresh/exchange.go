package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

const maxResponseBytes = 1 << 20

var (
	// ErrNoRefreshToken is returned when no refresh token is available.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrMalformedResponse is returned when the refresh response has no usable
	// access token.
	ErrMalformedResponse = errors.New("malformed refresh response")
)

// TokenPair is the result of a successful exchange. RefreshToken is empty when
// the server did not rotate it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RejectedError reports a non-2xx refresh response.
type RejectedError struct {
	StatusCode int
	Body       []byte
}

func (e *RejectedError) Error() string {
	return "refresh rejected with status " + strconv.Itoa(e.StatusCode)
}

// Exchanger performs the refresh HTTP call.
type Exchanger struct {
	client   *http.Client
	endpoint string
}

// NewExchanger returns an Exchanger posting to endpoint (an absolute URL). client
// must not carry session middleware; nil uses a client with no timeout override.
func NewExchanger(client *http.Client, endpoint string) *Exchanger {
	if client == nil {
		client = &http.Client{}
	}
	return &Exchanger{client: client, endpoint: endpoint}
}

// Endpoint returns the refresh URL.
func (e *Exchanger) Endpoint() string { return e.endpoint }

// Exchange trades refreshToken for a new pair.
func (e *Exchanger) Exchange(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, ErrNoRefreshToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return TokenPair{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return TokenPair{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return TokenPair{}, fmt.Errorf("read refresh response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TokenPair{}, &RejectedError{StatusCode: resp.StatusCode, Body: body}
	}
	return DecodePair(body)
}

// DecodePair reads an {accessToken, refreshToken?} body. The access token must
// be a non-empty string; a refresh token of any other type is ignored.
func DecodePair(body []byte) (TokenPair, error) {
	var raw struct {
		AccessToken  any `json:"accessToken"`
		RefreshToken any `json:"refreshToken"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	access, ok := raw.AccessToken.(string)
	if !ok || access == "" {
		return TokenPair{}, ErrMalformedResponse
	}
	refresh, _ := raw.RefreshToken.(string)
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
