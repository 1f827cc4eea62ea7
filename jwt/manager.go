package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TypeAccess marks access tokens.
	TypeAccess = "access"
	// TypeRefresh marks refresh tokens.
	TypeRefresh = "refresh"
)

// ErrWrongTokenType is returned when a refresh token is presented as an access
// token or the other way round.
var ErrWrongTokenType = errors.New("wrong token type")

// Config defines a public type used by goSession APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secret     []byte
	Issuer     string
	Leeway     time.Duration
	// Now overrides the clock used for issuance. Verification honours it too.
	Now func() time.Time
}

// Manager issues and verifies HS256 tokens. It backs the in-process bank server
// used by tests, the demo and the load test.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.Secret) < 16 {
		return nil, errors.New("hs256 requires a secret of at least 16 bytes")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret
	return &Manager{config: cfg}, nil
}

// CreateAccess signs an access token for subject with the given role.
func (m *Manager) CreateAccess(subject, role string) (string, error) {
	return m.sign(subject, role, TypeAccess, m.config.AccessTTL)
}

// CreateRefresh signs a refresh token for subject.
func (m *Manager) CreateRefresh(subject string) (string, error) {
	return m.sign(subject, "", TypeRefresh, m.config.RefreshTTL)
}

func (m *Manager) sign(subject, role, typ string, ttl time.Duration) (string, error) {
	now := m.config.Now()
	claims := Claims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(token string) (*Claims, error) {
	return m.verify(token, TypeAccess)
}

// ParseRefresh verifies a refresh token and returns its claims.
func (m *Manager) ParseRefresh(token string) (*Claims, error) {
	return m.verify(token, TypeRefresh)
}

func (m *Manager) verify(tokenStr, typ string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Type != typ {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
