package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/kvstore"
	"github.com/angelmondragon/storefront/pkg/storefrontapi"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAPI struct {
	mu       sync.Mutex
	profile  *storefrontapi.Profile
	err      error
	login    *storefrontapi.LoginResult
	loginErr error
	calls    int
	block    chan struct{}
}

func (s *stubAPI) GetProfile(ctx context.Context, credential, userID string) (*storefrontapi.Profile, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	if s.err != nil {
		return nil, s.err
	}
	copied := *s.profile
	return &copied, nil
}

func (s *stubAPI) Login(ctx context.Context, email, password string) (*storefrontapi.LoginResult, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return s.login, nil
}

type recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *recorder) IdentityChanged(_ context.Context, t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recorder) merges() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, t := range r.transitions {
		if t.Merge {
			count++
		}
	}
	return count
}

func (r *recorder) last() Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitions[len(r.transitions)-1]
}

func livProfile() *storefrontapi.Profile {
	return &storefrontapi.Profile{ID: "u1", Name: "Asha", Phone: "555", Address: "12 Main"}
}

func newResolver(t *testing.T, kv kvstore.Store, api *stubAPI) (*Resolver, *recorder) {
	t.Helper()
	rec := &recorder{}
	r, err := NewResolver(kv, api, nil, rec)
	require.NoError(t, err)
	return r, rec
}

func seedSession(t *testing.T, kv kvstore.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, kvstore.CredentialKey, "opaque-token"))
	require.NoError(t, kv.Set(ctx, kvstore.UserIDKey, "u1"))
	require.NoError(t, kv.Set(ctx, kvstore.ProfileKey, `{"_id":"u1","name":"Cached","phone":"111","address":"Old St"}`))
}

func TestBootstrapWithoutCredentialIsGuest(t *testing.T) {
	r, rec := newResolver(t, kvstore.NewMemoryStore(), &stubAPI{})
	assert.Equal(t, enums.IdentityStateUnresolved, r.Current().State)

	id, err := r.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enums.IdentityStateGuest, id.State)
	assert.Equal(t, enums.IdentityStateGuest, rec.last().State)
}

func TestBootstrapAdoptsCachedProfileWithoutNetwork(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	seedSession(t, kv)
	api := &stubAPI{profile: livProfile()}
	r, rec := newResolver(t, kv, api)

	id, err := r.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enums.IdentityStateAuthenticated, id.State)
	assert.Equal(t, "Cached", id.Profile.Name)
	assert.False(t, id.Verified)
	assert.Equal(t, 0, api.calls)
	assert.Equal(t, Transition{State: enums.IdentityStateAuthenticated, UserID: "u1"}, rec.last())
}

func TestBootstrapFallsBackToCredentialClaims(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "u9",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("server"))
	require.NoError(t, err)
	require.NoError(t, kv.Set(context.Background(), kvstore.CredentialKey, token))

	r, _ := newResolver(t, kv, &stubAPI{})
	id, err := r.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enums.IdentityStateAuthenticated, id.State)
	assert.Equal(t, "u9", id.UserID)
}

func TestBootstrapDiscardsCredentialWithoutUser(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	require.NoError(t, kv.Set(context.Background(), kvstore.CredentialKey, "opaque"))

	r, _ := newResolver(t, kv, &stubAPI{})
	id, err := r.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enums.IdentityStateGuest, id.State)
	_, found, _ := kv.Get(context.Background(), kvstore.CredentialKey)
	assert.False(t, found)
}

func TestRefreshSuccessVerifiesAndMergesOnce(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	seedSession(t, kv)
	r, rec := newResolver(t, kv, &stubAPI{profile: livProfile()})
	ctx := context.Background()

	_, err := r.Bootstrap(ctx)
	require.NoError(t, err)

	id, err := r.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, id.Verified)
	assert.Equal(t, "Asha", id.Profile.Name)
	assert.Equal(t, 1, rec.merges())

	_, err = r.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.merges(), "a second refresh in the same login session must not merge")

	raw, _, _ := kv.Get(ctx, kvstore.ProfileKey)
	assert.Contains(t, raw, "Asha", "live profile replaces the cache")
}

func TestRefreshAuthRejectedPurgesAndBecomesGuest(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	seedSession(t, kv)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, kvstore.CartKey("u1"), `[{"productId":"p1","quantity":1,"unitPrice":"1"}]`))

	rejected := pkgerrors.New(pkgerrors.CodeAuthRejected, "profile rejected the credential")
	r, rec := newResolver(t, kv, &stubAPI{err: rejected})
	_, err := r.Bootstrap(ctx)
	require.NoError(t, err)

	id, err := r.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeAuthRejected, pkgerrors.CodeOf(err))
	assert.Equal(t, enums.IdentityStateGuest, id.State)
	assert.Equal(t, enums.IdentityStateGuest, rec.last().State)
	assert.Equal(t, 0, rec.merges())

	for _, key := range []string{kvstore.CredentialKey, kvstore.UserIDKey, kvstore.ProfileKey} {
		_, found, _ := kv.Get(ctx, key)
		assert.False(t, found, "%s must be purged", key)
	}
	_, found, _ := kv.Get(ctx, kvstore.CartKey("u1"))
	assert.True(t, found, "user cart survives credential rejection")
}

func TestRefreshNetworkFailureKeepsOptimisticIdentity(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	seedSession(t, kv)
	ctx := context.Background()
	api := &stubAPI{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "execute profile request")}
	r, rec := newResolver(t, kv, api)
	_, err := r.Bootstrap(ctx)
	require.NoError(t, err)

	id, err := r.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, enums.IdentityStateAuthenticated, id.State)
	assert.False(t, id.Verified)
	assert.Equal(t, "Cached", id.Profile.Name)
	assert.Equal(t, 0, rec.merges())

	api.err = nil
	api.profile = livProfile()
	_, err = r.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.merges(), "merge happens on the first confirmed authentication")
}

func TestRefreshForGuestIsNoop(t *testing.T) {
	api := &stubAPI{}
	r, _ := newResolver(t, kvstore.NewMemoryStore(), api)
	_, err := r.Bootstrap(context.Background())
	require.NoError(t, err)

	id, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enums.IdentityStateGuest, id.State)
	assert.Equal(t, 0, api.calls)
}

func TestConcurrentRefreshSharesOneRequest(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	seedSession(t, kv)
	api := &stubAPI{profile: livProfile(), block: make(chan struct{})}
	r, rec := newResolver(t, kv, api)
	ctx := context.Background()
	_, err := r.Bootstrap(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Refresh(ctx)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(api.block)
	wg.Wait()

	assert.LessOrEqual(t, api.calls, 5)
	assert.Equal(t, 1, rec.merges())
}

func TestRefreshFromPreviousSessionIsDiscarded(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	seedSession(t, kv)
	api := &stubAPI{profile: livProfile(), block: make(chan struct{})}
	r, _ := newResolver(t, kv, api)
	ctx := context.Background()
	_, err := r.Bootstrap(ctx)
	require.NoError(t, err)

	done := make(chan Identity)
	go func() {
		id, _ := r.Refresh(ctx)
		done <- id
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Logout(ctx))
	close(api.block)

	id := <-done
	assert.Equal(t, enums.IdentityStateGuest, id.State)
	assert.Equal(t, enums.IdentityStateGuest, r.Current().State)
}

func TestLoginPersistsAndMerges(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	api := &stubAPI{login: &storefrontapi.LoginResult{Token: "tok", User: *livProfile()}}
	r, rec := newResolver(t, kv, api)
	ctx := context.Background()
	_, err := r.Bootstrap(ctx)
	require.NoError(t, err)

	id, err := r.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)
	assert.True(t, id.IsAuthenticated())
	assert.True(t, id.Verified)
	assert.Equal(t, Transition{State: enums.IdentityStateAuthenticated, UserID: "u1", Merge: true}, rec.last())

	token, _, _ := kv.Get(ctx, kvstore.CredentialKey)
	userID, _, _ := kv.Get(ctx, kvstore.UserIDKey)
	assert.Equal(t, "tok", token)
	assert.Equal(t, "u1", userID)

	api.profile = livProfile()
	_, err = r.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.merges(), "refresh after login must not merge again")
}

func TestLoginFailureKeepsState(t *testing.T) {
	api := &stubAPI{loginErr: pkgerrors.New(pkgerrors.CodeAuthRejected, "invalid credentials")}
	r, _ := newResolver(t, kvstore.NewMemoryStore(), api)
	_, err := r.Bootstrap(context.Background())
	require.NoError(t, err)

	id, err := r.Login(context.Background(), "a@b.c", "bad")
	require.Error(t, err)
	assert.Equal(t, enums.IdentityStateGuest, id.State)
}

func TestAdoptLoginValidation(t *testing.T) {
	r, _ := newResolver(t, kvstore.NewMemoryStore(), &stubAPI{})
	_, err := r.AdoptLogin(context.Background(), "", storefrontapi.Profile{ID: "u1"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	_, err = r.AdoptLogin(context.Background(), "tok", storefrontapi.Profile{})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestLogoutClearsCredentialAndResetsMerge(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	api := &stubAPI{login: &storefrontapi.LoginResult{Token: "tok", User: *livProfile()}}
	r, rec := newResolver(t, kv, api)
	ctx := context.Background()

	_, err := r.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)
	require.NoError(t, r.Logout(ctx))
	assert.Equal(t, enums.IdentityStateGuest, r.Current().State)
	assert.Empty(t, r.Current().Credential)
	_, found, _ := kv.Get(ctx, kvstore.CredentialKey)
	assert.False(t, found)

	_, err = r.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.merges(), "a new login session merges again")
}

func TestRejectSignsOutAuthenticatedSession(t *testing.T) {
	api := &stubAPI{login: &storefrontapi.LoginResult{Token: "tok", User: *livProfile()}}
	r, rec := newResolver(t, kvstore.NewMemoryStore(), api)
	ctx := context.Background()
	_, err := r.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	r.Reject(ctx, errors.New("401"))
	assert.Equal(t, enums.IdentityStateGuest, r.Current().State)
	count := len(rec.transitions)

	r.Reject(ctx, errors.New("401"))
	assert.Len(t, rec.transitions, count, "rejecting a guest session does nothing")
}
