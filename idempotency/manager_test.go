package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/goSession/tokenstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transfer = Fields{
	"fromBankId":        1,
	"toBankId":          2,
	"fromAccountNumber": "111",
	"toAccountNumber":   "222",
	"amount":            100,
}

func TestGetOrCreateKeyReusesUntilCleared(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewMemory()
	m := NewManager(store)
	fp := Fingerprint(transfer)

	first, err := m.GetOrCreateKey(ctx, "alice", fp)
	require.NoError(t, err)
	assert.False(t, first.Reused)
	assert.Equal(t, "idem.transfer.alice."+fp, first.StorageKey)
	_, err = uuid.Parse(first.Value)
	assert.NoError(t, err)

	second, err := m.GetOrCreateKey(ctx, "alice", fp)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.Value, second.Value)

	require.NoError(t, m.ClearKey(ctx, first.StorageKey))
	third, err := m.GetOrCreateKey(ctx, "alice", fp)
	require.NoError(t, err)
	assert.False(t, third.Reused)
	assert.NotEqual(t, first.Value, third.Value)
}

func TestGetOrCreateKeySurvivesManagerRestart(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewMemory()
	fp := Fingerprint(transfer)

	a, err := NewManager(store).GetOrCreateKey(ctx, "alice", fp)
	require.NoError(t, err)
	b, err := NewManager(store).GetOrCreateKey(ctx, "alice", fp)
	require.NoError(t, err)
	assert.Equal(t, a.Value, b.Value)
}

func TestKeysAreScopedPerUserAndScope(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewMemory()
	fp := Fingerprint(transfer)

	alice, err := NewManager(store).GetOrCreateKey(ctx, "alice", fp)
	require.NoError(t, err)
	bob, err := NewManager(store).GetOrCreateKey(ctx, "bob", fp)
	require.NoError(t, err)
	acct, err := NewManager(store, WithScope("account")).GetOrCreateKey(ctx, "alice", fp)
	require.NoError(t, err)

	assert.NotEqual(t, alice.Value, bob.Value)
	assert.NotEqual(t, alice.Value, acct.Value)
	assert.Equal(t, "idem.account.alice."+fp, acct.StorageKey)
}

func TestEmptyUserFallsBackToDefault(t *testing.T) {
	m := NewManager(tokenstore.NewMemory())
	assert.Equal(t, "idem.transfer.me.{}", m.StorageKey("", "{}"))
}

func TestGetOrCreateKeyRejectsEmptyFingerprint(t *testing.T) {
	_, err := NewManager(tokenstore.NewMemory()).GetOrCreateKey(context.Background(), "alice", "")
	assert.ErrorIs(t, err, ErrEmptyFingerprint)
}

func TestGeneratorFailureUsesFallback(t *testing.T) {
	m := NewManager(tokenstore.NewMemory(), WithKeyFunc(func() (string, error) {
		return "", errors.New("entropy unavailable")
	}))
	k, err := m.GetOrCreateKey(context.Background(), "alice", "{}")
	require.NoError(t, err)

	id, err := uuid.Parse(k.Value)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())
	assert.Equal(t, uuid.RFC4122, id.Variant())
}

type failingStore struct {
	tokenstore.Store
	err error
}

func (f failingStore) Get(context.Context, string) (string, bool, error) { return "", false, f.err }

func TestStoreFailureIsReported(t *testing.T) {
	sentinel := errors.New("disk gone")
	m := NewManager(failingStore{Store: tokenstore.NewMemory(), err: sentinel})
	_, err := m.GetOrCreateKey(context.Background(), "alice", "{}")
	assert.ErrorIs(t, err, sentinel)
}

func TestPendingListsRetainedKeys(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewMemory()
	m := NewManager(store)

	fp1 := Fingerprint(transfer)
	fp2 := Fingerprint(Fields{"amount": 5})
	k1, err := m.GetOrCreateKey(ctx, "alice@example.com", fp1)
	require.NoError(t, err)
	_, err = m.GetOrCreateKey(ctx, "alice@example.com", fp2)
	require.NoError(t, err)
	_, err = m.GetOrCreateKey(ctx, "bob", fp1)
	require.NoError(t, err)

	pending, err := m.Pending(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	byFP := map[string]Record{}
	for _, r := range pending {
		byFP[r.Fingerprint] = r
	}
	assert.Equal(t, k1.Value, byFP[fp1].Value)
	assert.Contains(t, byFP, fp2)
}

func TestConcurrentFirstSubmissionsConverge(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewMemory()
	m := NewManager(store)
	fp := Fingerprint(transfer)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.GetOrCreateKey(ctx, "alice", fp)
		}()
	}
	wg.Wait()

	// whichever writer won, later calls agree on one key
	a, err := m.GetOrCreateKey(ctx, "alice", fp)
	require.NoError(t, err)
	b, err := m.GetOrCreateKey(ctx, "alice", fp)
	require.NoError(t, err)
	assert.Equal(t, a.Value, b.Value)
	assert.True(t, a.Reused)
}

func TestPendingDoesNotLeakAcrossUserPrefixes(t *testing.T) {
	ctx := context.Background()
	m := NewManager(tokenstore.NewMemory())

	_, err := m.GetOrCreateKey(ctx, "alice@example.com", Fingerprint(transfer))
	require.NoError(t, err)

	pending, err := m.Pending(ctx, "alice@example")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
