// Package kvstore is the durable key-value facility the cart, identity and
// preferences stores persist through. Values are opaque strings; callers own
// their encoding. Implementations never retry.
package kvstore

import (
	"context"
	"fmt"
	"sort"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// Store is the asynchronous get/set/remove contract every backend satisfies.
type Store interface {
	// Get returns the value stored at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value at key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Batch groups writes that should land together.
type Batch struct {
	Sets    map[string]string
	Removes []string
}

// Batcher is implemented by backends able to commit a Batch atomically.
type Batcher interface {
	Apply(ctx context.Context, batch Batch) error
}

// Apply commits batch through store. Backends implementing Batcher commit it
// atomically; the others get the sets (in key order) followed by the removes,
// stopping at the first failure.
func Apply(ctx context.Context, store Store, batch Batch) error {
	if batcher, ok := store.(Batcher); ok {
		return batcher.Apply(ctx, batch)
	}
	for _, key := range sortedKeys(batch.Sets) {
		if err := store.Set(ctx, key, batch.Sets[key]); err != nil {
			return err
		}
	}
	for _, key := range batch.Removes {
		if err := store.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func storageError(op, key string, err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, fmt.Sprintf("kv %s %q", op, key))
}
