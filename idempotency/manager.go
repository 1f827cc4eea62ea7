package idempotency

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/MrEthical07/goSession/tokenstore"
	"github.com/google/uuid"
)

const (
	// DefaultScope is the storage scope used for transfers.
	DefaultScope = "transfer"
	// DefaultUserID stands in for the user when the session has no subject.
	DefaultUserID = "me"

	keyPrefix = "idem."
)

// ErrEmptyFingerprint is returned when GetOrCreateKey is called without a fingerprint.
var ErrEmptyFingerprint = errors.New("empty fingerprint")

// Key is an idempotency key and the store entry holding it.
type Key struct {
	Value      string
	StorageKey string
	// Reused is true when the key was already persisted by an earlier submission.
	Reused bool
}

// Record is a retained key found by Pending.
type Record struct {
	StorageKey  string
	Fingerprint string
	Value       string
}

// KeyFunc generates a new random key.
type KeyFunc func() (string, error)

// Option configures a Manager.
type Option func(*Manager)

// WithScope sets the storage scope ("transfer", "account", ...).
func WithScope(scope string) Option {
	return func(m *Manager) {
		if scope != "" {
			m.scope = scope
		}
	}
}

// WithKeyFunc replaces the primary key generator.
func WithKeyFunc(fn KeyFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newKey = fn
		}
	}
}

// WithLogger sets the logger used for low-assurance key warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager binds fingerprints to persisted keys within one scope.
//
// Two concurrent first submissions of the same fingerprint may both generate a key;
// the last write wins and the earlier request carries an orphaned key.
type Manager struct {
	store  tokenstore.Store
	scope  string
	newKey KeyFunc
	logger *slog.Logger
}

// NewManager returns a Manager persisting keys in store.
func NewManager(store tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		scope:  DefaultScope,
		newKey: NewKey,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Scope returns the storage scope.
func (m *Manager) Scope() string { return m.scope }

// StorageKey returns "idem.<scope>.<userID>.<fingerprint>".
func (m *Manager) StorageKey(userID, fingerprint string) string {
	return m.userPrefix(userID) + fingerprint
}

func (m *Manager) userPrefix(userID string) string {
	if userID == "" {
		userID = DefaultUserID
	}
	return keyPrefix + m.scope + "." + userID + "."
}

// GetOrCreateKey returns the key bound to (userID, fingerprint), generating and
// persisting one first when none exists.
func (m *Manager) GetOrCreateKey(ctx context.Context, userID, fingerprint string) (Key, error) {
	if fingerprint == "" {
		return Key{}, ErrEmptyFingerprint
	}
	storageKey := m.StorageKey(userID, fingerprint)

	existing, ok, err := m.store.Get(ctx, storageKey)
	if err != nil {
		return Key{}, fmt.Errorf("read idempotency key: %w", err)
	}
	if ok && existing != "" {
		return Key{Value: existing, StorageKey: storageKey, Reused: true}, nil
	}

	value, err := m.newKey()
	if err != nil {
		m.logger.Warn("idempotency key generator failed, using low-assurance fallback", "error", err)
		value = fallbackKey()
	}
	if err := m.store.Set(ctx, storageKey, value); err != nil {
		return Key{}, fmt.Errorf("persist idempotency key: %w", err)
	}
	return Key{Value: value, StorageKey: storageKey}, nil
}

// ClearKey deletes a stored key. Clearing an absent key is not an error.
func (m *Manager) ClearKey(ctx context.Context, storageKey string) error {
	if err := m.store.Remove(ctx, storageKey); err != nil {
		return fmt.Errorf("clear idempotency key: %w", err)
	}
	return nil
}

// Pending lists keys retained for userID in this scope, typically left behind by
// submissions whose outcome was ambiguous.
func (m *Manager) Pending(ctx context.Context, userID string) ([]Record, error) {
	prefix := m.userPrefix(userID)
	names, err := m.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list idempotency keys: %w", err)
	}
	out := make([]Record, 0, len(names))
	for _, name := range names {
		fp := strings.TrimPrefix(name, prefix)
		// "alice@example" must not pick up "alice@example.com" records
		if !strings.HasPrefix(fp, "{") {
			continue
		}
		value, ok, err := m.store.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("read idempotency key: %w", err)
		}
		if !ok {
			continue
		}
		out = append(out, Record{
			StorageKey:  name,
			Fingerprint: fp,
			Value:       value,
		})
	}
	return out, nil
}

// NewKey returns a random (version 4) UUID.
func NewKey() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// fallbackKey is used only when the system entropy source fails. Keys from the
// seeded PRNG are unique enough for deduplication but not unpredictable.
func fallbackKey() string {
	var id uuid.UUID
	hi, lo := rand.Uint64(), rand.Uint64()
	for i := 0; i < 8; i++ {
		id[i] = byte(hi >> (56 - 8*i))
		id[8+i] = byte(lo >> (56 - 8*i))
	}
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id.String()
}
