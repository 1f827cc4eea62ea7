package flows

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T, entries map[string]string) *tokenstore.Memory {
	t.Helper()
	s := tokenstore.NewMemory()
	require.NoError(t, s.SetMany(context.Background(), entries))
	return s
}

func value(t *testing.T, s tokenstore.Store, name string) string {
	t.Helper()
	v, _, err := s.Get(context.Background(), name)
	require.NoError(t, err)
	return v
}

func TestRunRefreshPersistsPair(t *testing.T) {
	store := seeded(t, map[string]string{"jwtToken": "A1", "refreshToken": "R1"})
	rotate := func(ctx context.Context, rt string) (refresh.TokenPair, bool, error) {
		assert.Equal(t, "R1", rt)
		pair := refresh.TokenPair{AccessToken: "A2", RefreshToken: "R2"}
		return pair, false, StorePair(ctx, store, pair)
	}

	res := RunRefresh(context.Background(), "A1", RefreshDeps{Store: store, Rotate: rotate})
	require.Equal(t, RefreshFailureNone, res.Failure, res.Err)
	assert.Equal(t, "A2", res.AccessToken)
	assert.True(t, res.Rotated)
	assert.Equal(t, "A2", value(t, store, "jwtToken"))
	assert.Equal(t, "R2", value(t, store, "refreshToken"))
}

func TestStorePairKeepsRefreshTokenWithoutRotation(t *testing.T) {
	store := seeded(t, map[string]string{"jwtToken": "A1", "refreshToken": "R1"})
	require.NoError(t, StorePair(context.Background(), store, refresh.TokenPair{AccessToken: "A2"}))
	assert.Equal(t, "A2", value(t, store, "jwtToken"))
	assert.Equal(t, "R1", value(t, store, "refreshToken"))
}

func TestRunRefreshWithoutTokenNeverRotates(t *testing.T) {
	store := seeded(t, map[string]string{"jwtToken": "A1"})
	res := RunRefresh(context.Background(), "A1", RefreshDeps{
		Store: store,
		Rotate: func(context.Context, string) (refresh.TokenPair, bool, error) {
			t.Fatal("rotate called without a refresh token")
			return refresh.TokenPair{}, false, nil
		},
	})
	assert.Equal(t, RefreshFailureNoToken, res.Failure)
	assert.ErrorIs(t, res.Err, refresh.ErrNoRefreshToken)
}

func TestRunRefreshReusesNewerAccessToken(t *testing.T) {
	store := seeded(t, map[string]string{"jwtToken": "A2", "refreshToken": "R2"})
	res := RunRefresh(context.Background(), "A1", RefreshDeps{
		Store:            store,
		ReuseNewerAccess: true,
		Rotate: func(context.Context, string) (refresh.TokenPair, bool, error) {
			t.Fatal("rotate called although a newer token is stored")
			return refresh.TokenPair{}, false, nil
		},
	})
	require.Equal(t, RefreshFailureNone, res.Failure)
	assert.True(t, res.Reused)
	assert.Equal(t, "A2", res.AccessToken)
}

func TestRunRefreshClassifiesFailures(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name string
		ctx  context.Context
		err  error
		want RefreshFailureKind
	}{
		{"rejected", context.Background(), &refresh.RejectedError{StatusCode: 401}, RefreshFailureRejected},
		{"malformed", context.Background(), refresh.ErrMalformedResponse, RefreshFailureMalformed},
		{"persist", context.Background(), errors.Join(ErrPersist, errors.New("disk")), RefreshFailurePersist},
		{"transport", context.Background(), errors.New("connection reset"), RefreshFailureTransport},
		{"canceled", canceled, context.Canceled, RefreshFailureCanceled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := seeded(t, map[string]string{"refreshToken": "R1"})
			res := RunRefresh(tc.ctx, "", RefreshDeps{
				Store: store,
				Rotate: func(context.Context, string) (refresh.TokenPair, bool, error) {
					return refresh.TokenPair{}, false, tc.err
				},
			})
			assert.Equal(t, tc.want, res.Failure, res.Failure.String())
		})
	}
}

func TestNewRotateFuncCoalesces(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"accessToken":"A2","refreshToken":"R2"}`))
	}))
	t.Cleanup(srv.Close)

	store := seeded(t, map[string]string{"jwtToken": "A1", "refreshToken": "R1"})
	rotate := NewRotateFunc(refresh.NewExchanger(srv.Client(), srv.URL), store, true)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := RunRefresh(context.Background(), "", RefreshDeps{Store: store, Rotate: rotate})
			assert.Equal(t, "A2", res.AccessToken)
		}()
	}
	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "R2", value(t, store, "refreshToken"))
}

func TestRunLoginStoresPair(t *testing.T) {
	store := seeded(t, map[string]string{"refreshToken": "OLD"})
	res := RunLogin(context.Background(), "a@b.c", "pw", LoginDeps{
		Store: store,
		Authenticate: func(_ context.Context, email, password string) (refresh.TokenPair, error) {
			assert.Equal(t, "a@b.c", email)
			return refresh.TokenPair{AccessToken: "A1"}, nil
		},
	})
	require.Equal(t, LoginFailureNone, res.Failure)
	assert.Equal(t, "A1", value(t, store, "jwtToken"))
	_, ok, _ := store.Get(context.Background(), "refreshToken")
	assert.False(t, ok)
}

func TestRunLoginFailures(t *testing.T) {
	store := tokenstore.NewMemory()
	res := RunLogin(context.Background(), "a", "b", LoginDeps{
		Store: store,
		Authenticate: func(context.Context, string, string) (refresh.TokenPair, error) {
			return refresh.TokenPair{}, errors.New("401")
		},
	})
	assert.Equal(t, LoginFailureRequest, res.Failure)

	res = RunLogin(context.Background(), "a", "b", LoginDeps{
		Store: store,
		Authenticate: func(context.Context, string, string) (refresh.TokenPair, error) {
			return refresh.TokenPair{}, nil
		},
	})
	assert.Equal(t, LoginFailureMalformed, res.Failure)
	_, ok, _ := store.Get(context.Background(), "jwtToken")
	assert.False(t, ok)
}

func TestRunLogoutIsBestEffort(t *testing.T) {
	store := seeded(t, map[string]string{"jwtToken": "A1", "refreshToken": "R1", "idem.transfer.me.{}": "k"})
	var (
		revokedWith string
		navigated   bool
		warned      bool
	)
	res := RunLogout(context.Background(), LogoutDeps{
		Store: store,
		Revoke: func(_ context.Context, access string) error {
			revokedWith = access
			return errors.New("server down")
		},
		Navigate: func(context.Context) { navigated = true },
		Warn:     func(string, ...any) { warned = true },
	})

	assert.NoError(t, res.Err)
	assert.Error(t, res.RevokeErr)
	assert.False(t, res.Revoked)
	assert.Equal(t, "A1", revokedWith)
	assert.True(t, navigated)
	assert.True(t, warned)

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"idem.transfer.me.{}"}, names)
}

func TestRunLogoutPurgeAll(t *testing.T) {
	store := seeded(t, map[string]string{"jwtToken": "A1", "idem.transfer.me.{}": "k"})
	res := RunLogout(context.Background(), LogoutDeps{Store: store, PurgeAll: true})
	require.NoError(t, res.Err)
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRunLogoutWithoutTokenSkipsServer(t *testing.T) {
	res := RunLogout(context.Background(), LogoutDeps{
		Store: tokenstore.NewMemory(),
		Revoke: func(context.Context, string) error {
			t.Fatal("revoke without access token")
			return nil
		},
	})
	assert.NoError(t, res.Err)
	assert.False(t, res.Revoked)
}
