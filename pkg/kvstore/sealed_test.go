package kvstore

import (
	"bytes"
	"context"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecret() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func TestSealedStoreConformance(t *testing.T) {
	sealed, err := NewSealedStore(NewMemoryStore(), testSecret())
	require.NoError(t, err)
	exerciseStore(t, sealed)
}

func TestSealedStoreEncryptsCoveredKeysOnly(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	sealed, err := NewSealedStore(inner, testSecret(), SensitiveKeys()...)
	require.NoError(t, err)

	require.NoError(t, sealed.Set(ctx, CredentialKey, "header.payload.sig"))
	require.NoError(t, sealed.Set(ctx, GuestCartKey, "[]"))

	raw, _, _ := inner.Get(ctx, CredentialKey)
	assert.True(t, strings.HasPrefix(raw, sealedPrefix))
	assert.NotContains(t, raw, "header.payload.sig")

	raw, _, _ = inner.Get(ctx, GuestCartKey)
	assert.Equal(t, "[]", raw)

	value, ok, err := sealed.Get(ctx, CredentialKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "header.payload.sig", value)
}

func TestSealedStoreRejectsSwappedKeys(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	sealed, err := NewSealedStore(inner, testSecret(), SensitiveKeys()...)
	require.NoError(t, err)

	require.NoError(t, sealed.Set(ctx, CredentialKey, "token"))
	raw, _, _ := inner.Get(ctx, CredentialKey)
	require.NoError(t, inner.Set(ctx, ProfileKey, raw))

	_, _, err = sealed.Get(ctx, ProfileKey)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStorage))
}

func TestSealedStoreReadsLegacyPlaintext(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	require.NoError(t, inner.Set(ctx, ProfileKey, `{"id":"u1"}`))

	sealed, err := NewSealedStore(inner, testSecret(), SensitiveKeys()...)
	require.NoError(t, err)

	value, ok, err := sealed.Get(ctx, ProfileKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"id":"u1"}`, value)
}

func TestNewSealedStoreRejectsShortKey(t *testing.T) {
	_, err := NewSealedStore(NewMemoryStore(), []byte("short"))
	require.Error(t, err)
}
