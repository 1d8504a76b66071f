package kvstore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "sealed:v1:"

// SealedStore encrypts selected keys with XChaCha20-Poly1305 before handing
// them to the wrapped store. The key name is bound as associated data so a
// sealed value cannot be replayed under another key. Values written before
// sealing was enabled are returned as-is.
type SealedStore struct {
	inner  Store
	aead   cipher.AEAD
	sealed map[string]struct{}
}

// NewSealedStore wraps inner. When keys is empty every key is sealed.
func NewSealedStore(inner Store, secret []byte, keys ...string) (*SealedStore, error) {
	aead, err := chacha20poly1305.NewX(secret)
	if err != nil {
		return nil, fmt.Errorf("building seal cipher: %w", err)
	}
	sealed := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		sealed[key] = struct{}{}
	}
	return &SealedStore{inner: inner, aead: aead, sealed: sealed}, nil
}

func (s *SealedStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok || !s.covers(key) {
		return value, ok, err
	}
	plain, err := s.open(key, value)
	if err != nil {
		return "", false, storageError("get", key, err)
	}
	return plain, true, nil
}

func (s *SealedStore) Set(ctx context.Context, key, value string) error {
	if !s.covers(key) {
		return s.inner.Set(ctx, key, value)
	}
	sealed, err := s.seal(key, value)
	if err != nil {
		return storageError("set", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *SealedStore) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}

// Apply seals the covered values and forwards the batch to the wrapped store.
func (s *SealedStore) Apply(ctx context.Context, batch Batch) error {
	sets := make(map[string]string, len(batch.Sets))
	for key, value := range batch.Sets {
		if !s.covers(key) {
			sets[key] = value
			continue
		}
		sealed, err := s.seal(key, value)
		if err != nil {
			return storageError("apply", key, err)
		}
		sets[key] = sealed
	}
	return Apply(ctx, s.inner, Batch{Sets: sets, Removes: batch.Removes})
}

func (s *SealedStore) covers(key string) bool {
	if len(s.sealed) == 0 {
		return true
	}
	_, ok := s.sealed[key]
	return ok
}

func (s *SealedStore) seal(key, value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

func (s *SealedStore) open(key, value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decoding sealed value: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", fmt.Errorf("opening sealed value: %w", err)
	}
	return string(plain), nil
}
