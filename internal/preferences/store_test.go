package preferences

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	kvstore.Store
	failSet bool
	failGet bool
}

func (f *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, pkgerrors.Wrap(pkgerrors.CodeStorage, errors.New("disk"), "read")
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, errors.New("disk full"), "write")
	}
	return f.Store.Set(ctx, key, value)
}

func ptr(s string) *string { return &s }

func newStore(t *testing.T, kv kvstore.Store) *Store {
	t.Helper()
	s, err := NewStore(kv, nil, nil, Defaults())
	require.NoError(t, err)
	return s
}

func TestGuestGetsDefaultsAndNothingIsPersisted(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	s := newStore(t, kv)

	assert.Equal(t, Defaults(), s.Get(ctx).Preferences)

	out, err := s.Update(ctx, Patch{Theme: ptr("dark")})
	require.NoError(t, err)
	assert.Equal(t, enums.ThemeDark, out.Preferences.Theme)
	assert.Empty(t, kv.Keys(), "guest preferences stay in memory")
}

func TestUserPreferencesPersistPerUser(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	s := newStore(t, kv)

	s.UseUser(ctx, "u1")
	_, err := s.Update(ctx, Patch{Theme: ptr("dark"), Language: ptr("fr"), Extra: map[string]*string{"currency": ptr("NGN")}})
	require.NoError(t, err)

	s.UseUser(ctx, "u2")
	assert.Equal(t, Defaults(), s.Get(ctx).Preferences, "u2 does not see u1's preferences")

	fresh := newStore(t, kv)
	got := fresh.UseUser(ctx, "u1").Preferences
	assert.Equal(t, Preferences{Theme: enums.ThemeDark, Language: "fr", Extra: map[string]string{"currency": "NGN"}}, got)

	raw, found, err := kv.Get(ctx, kvstore.PreferencesKey("u1"))
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"theme":"dark","language":"fr","extra":{"currency":"NGN"}}`, raw)
}

func TestPatchLeavesOtherFieldsAndRemovesExtraKeys(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, kvstore.NewMemoryStore())
	s.UseUser(ctx, "u1")

	_, err := s.Update(ctx, Patch{Language: ptr("yo"), Extra: map[string]*string{"a": ptr("1"), "b": ptr("2")}})
	require.NoError(t, err)
	out, err := s.Update(ctx, Patch{Extra: map[string]*string{"a": nil}})
	require.NoError(t, err)

	assert.Equal(t, enums.ThemeSystem, out.Preferences.Theme)
	assert.Equal(t, "yo", out.Preferences.Language)
	assert.Equal(t, map[string]string{"b": "2"}, out.Preferences.Extra)
}

func TestUpdateValidation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, kvstore.NewMemoryStore())

	_, err := s.Update(ctx, Patch{Theme: ptr("neon")})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = s.Update(ctx, Patch{Language: ptr("not a language!")})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = s.Update(ctx, Patch{Extra: map[string]*string{" ": ptr("x")}})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestLogoutReturnsToGuestPreferences(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, kvstore.NewMemoryStore())

	s.UseUser(ctx, "u1")
	_, err := s.Update(ctx, Patch{Theme: ptr("light")})
	require.NoError(t, err)

	out := s.UseGuest(ctx)
	assert.Equal(t, enums.ThemeSystem, out.Preferences.Theme)
}

func TestPersistenceFailureKeepsMemoryAndReportsNotice(t *testing.T) {
	ctx := context.Background()
	kv := &failingStore{Store: kvstore.NewMemoryStore(), failSet: true}
	s := newStore(t, kv)
	s.UseUser(ctx, "u1")

	out, err := s.Update(ctx, Patch{Theme: ptr("dark")})
	require.NoError(t, err)
	require.Len(t, out.Notices, 1)
	assert.Equal(t, string(pkgerrors.CodeStorage), out.Notices[0].Code)
	assert.Equal(t, enums.ThemeDark, s.Get(ctx).Preferences.Theme)
}

func TestUnreadableSlotFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, kvstore.PreferencesKey("u1"), "{not json"))
	require.NoError(t, kv.Set(ctx, kvstore.PreferencesKey("u2"), `{"theme":"sepia"}`))
	s := newStore(t, kv)

	out := s.UseUser(ctx, "u1")
	assert.Equal(t, Defaults(), out.Preferences)
	assert.Len(t, out.Notices, 1)

	out = s.UseUser(ctx, "u2")
	assert.Equal(t, Defaults(), out.Preferences, "unknown theme and missing language take defaults")
	assert.Empty(t, out.Notices)
}

func TestReadFailureReportsNotice(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, &failingStore{Store: kvstore.NewMemoryStore(), failGet: true})
	out := s.UseUser(ctx, "u1")
	assert.Equal(t, Defaults(), out.Preferences)
	require.Len(t, out.Notices, 1)
}

func TestReadFailureNeverOverwritesSavedPreferences(t *testing.T) {
	ctx := context.Background()
	mem := kvstore.NewMemoryStore()
	seed := newStore(t, mem)
	seed.UseUser(ctx, "u1")
	_, err := seed.Update(ctx, Patch{Theme: ptr("dark")})
	require.NoError(t, err)

	kv := &failingStore{Store: mem, failGet: true}
	s := newStore(t, kv)
	s.UseUser(ctx, "u1")
	_, err = s.Update(ctx, Patch{Language: ptr("fr")})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStorage, pkgerrors.CodeOf(err))

	kv.failGet = false
	out := s.Get(ctx)
	assert.Empty(t, out.Notices)
	assert.Equal(t, enums.ThemeDark, out.Preferences.Theme, "saved slot survives and the read is retried")
}

func TestNewStoreRejectsInvalidDefaults(t *testing.T) {
	_, err := NewStore(kvstore.NewMemoryStore(), nil, nil, Preferences{Theme: "neon"})
	assert.Error(t, err)
	_, err = NewStore(nil, nil, nil, Defaults())
	assert.Error(t, err)
}
