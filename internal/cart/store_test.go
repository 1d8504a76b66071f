package cart

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/kvstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func newTestStore(t *testing.T, kv kvstore.Store) *Store {
	t.Helper()
	store, err := NewStore(kv, nil, nil)
	require.NoError(t, err)
	return store
}

func price(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func add(t *testing.T, s *Store, id string, qty int) Outcome {
	t.Helper()
	out, err := s.AddLine(context.Background(), LineInput{ProductID: id, Name: "item " + id, UnitPrice: price(10), Quantity: qty})
	require.NoError(t, err)
	return out
}

func quantities(c Cart) map[string]int {
	got := make(map[string]int, len(c.Lines))
	for _, line := range c.Lines {
		got[line.ProductID] = line.Quantity
	}
	return got
}

func TestNewStoreRequiresDurableStore(t *testing.T) {
	_, err := NewStore(nil, nil, nil)
	require.Error(t, err)
}

func TestAddLineIncrementsAndReportsAddedQuantity(t *testing.T) {
	s := newTestStore(t, kvstore.NewMemoryStore())

	add(t, s, "p1", 2)
	out := add(t, s, "p1", 3)

	require.NotNil(t, out.Added)
	assert.Equal(t, 3, out.Added.Quantity, "toast reports the amount just added")
	assert.Equal(t, "item p1", out.Added.Name)
	assert.Equal(t, map[string]int{"p1": 5}, quantities(out.Cart))
	assert.Empty(t, out.Notices)
}

func TestAddLineValidation(t *testing.T) {
	s := newTestStore(t, kvstore.NewMemoryStore())
	ctx := context.Background()

	for _, in := range []LineInput{
		{ProductID: "", Quantity: 1},
		{ProductID: "p1", Quantity: 0},
		{ProductID: "p1", Quantity: -2},
		{ProductID: "p1", Quantity: 1, UnitPrice: price(-1)},
	} {
		_, err := s.AddLine(ctx, in)
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	}
	assert.True(t, s.ActiveCart(ctx).Cart.Empty())
}

func TestQuantityFloor(t *testing.T) {
	s := newTestStore(t, kvstore.NewMemoryStore())
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c", "d"}

	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		var out Outcome
		switch rng.Intn(3) {
		case 0:
			out = add(t, s, id, 1+rng.Intn(3))
		case 1:
			out = s.SetQuantity(ctx, id, rng.Intn(7)-3)
		default:
			out = s.RemoveLine(ctx, id)
		}
		for _, line := range out.Cart.Lines {
			require.GreaterOrEqual(t, line.Quantity, 1, "step %d left %s at %d", i, line.ProductID, line.Quantity)
		}
	}
}

func TestSetQuantityBelowOneRemoves(t *testing.T) {
	for _, qty := range []int{0, -1} {
		s := newTestStore(t, kvstore.NewMemoryStore())
		add(t, s, "p1", 2)
		add(t, s, "p2", 1)

		viaSet := s.SetQuantity(context.Background(), "p1", qty)
		assert.Equal(t, map[string]int{"p2": 1}, quantities(viaSet.Cart))
	}

	s := newTestStore(t, kvstore.NewMemoryStore())
	add(t, s, "p1", 2)
	out := s.SetQuantity(context.Background(), "p1", 7)
	assert.Equal(t, map[string]int{"p1": 7}, quantities(out.Cart))

	out = s.SetQuantity(context.Background(), "ghost", 3)
	assert.Equal(t, map[string]int{"p1": 7}, quantities(out.Cart), "absent lines are not created")
}

func TestRemoveAbsentLineIsNoop(t *testing.T) {
	kv := &countingStore{Store: kvstore.NewMemoryStore()}
	s := newTestStore(t, kv)
	add(t, s, "p1", 1)
	writes := kv.sets

	out := s.RemoveLine(context.Background(), "missing")
	assert.Equal(t, map[string]int{"p1": 1}, quantities(out.Cart))
	assert.Equal(t, writes, kv.sets, "no-op removal must not write")
}

func TestMutationsPersistFullActiveCart(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s := newTestStore(t, kv)
	add(t, s, "p1", 2)
	add(t, s, "p2", 1)

	raw, ok, err := kv.Get(context.Background(), kvstore.GuestCartKey)
	require.NoError(t, err)
	require.True(t, ok)
	lines, err := decodeLines(raw)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Equal(t, "p1", lines[0].ProductID, "insertion order is kept")
}

func TestMergeGuestIntoUser(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s := newTestStore(t, kv)
	ctx := context.Background()

	add(t, s, "A", 2)
	add(t, s, "B", 1)

	_, err := s.UseUser(ctx, "u1", false)
	require.NoError(t, err)
	add(t, s, "B", 3)
	add(t, s, "C", 1)
	s.UseGuest(ctx)

	out, err := s.MergeGuestIntoUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2, "B": 4, "C": 1}, quantities(out.Cart))
	assert.Equal(t, UserScope("u1"), out.Cart.Scope)

	assert.True(t, s.ActiveCart(ctx).Cart.Empty(), "guest cart is cleared in memory")
	_, ok, err := kv.Get(ctx, kvstore.GuestCartKey)
	require.NoError(t, err)
	assert.False(t, ok, "guest cart is cleared in the durable store")

	raw, _, _ := kv.Get(ctx, kvstore.CartKey("u1"))
	persisted, err := decodeLines(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2, "B": 4, "C": 1}, quantities(Cart{Lines: persisted}))
}

func TestMergeRunsOnce(t *testing.T) {
	kv := &countingStore{Store: kvstore.NewMemoryStore()}
	s := newTestStore(t, kv)
	ctx := context.Background()
	add(t, s, "A", 2)

	first, err := s.UseUser(ctx, "u1", true)
	require.NoError(t, err)
	writes := kv.sets

	second, err := s.MergeGuestIntoUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.Cart, second.Cart)
	assert.Equal(t, map[string]int{"A": 2}, quantities(second.Cart))
	assert.Equal(t, writes, kv.sets, "empty guest cart merge must not write")
}

func TestMergeRequiresUserID(t *testing.T) {
	s := newTestStore(t, kvstore.NewMemoryStore())
	_, err := s.MergeGuestIntoUser(context.Background(), " ")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	_, err = s.UseUser(context.Background(), "", true)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestScopingIsolation(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s := newTestStore(t, kv)
	ctx := context.Background()

	add(t, s, "g1", 1)
	assert.ElementsMatch(t, []string{kvstore.GuestCartKey}, kv.Keys())

	_, err := s.UseUser(ctx, "u1", false)
	require.NoError(t, err)
	add(t, s, "u-item", 2)

	raw, _, _ := kv.Get(ctx, kvstore.GuestCartKey)
	guestLines, _ := decodeLines(raw)
	assert.Equal(t, map[string]int{"g1": 1}, quantities(Cart{Lines: guestLines}))

	raw, _, _ = kv.Get(ctx, kvstore.CartKey("u1"))
	userLines, _ := decodeLines(raw)
	assert.Equal(t, map[string]int{"u-item": 2}, quantities(Cart{Lines: userLines}))

	_, err = s.UseUser(ctx, "u2", false)
	require.NoError(t, err)
	assert.True(t, s.ActiveCart(ctx).Cart.Empty(), "another user never sees u1's cart")
}

func TestLogoutKeepsUserCart(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s := newTestStore(t, kv)
	ctx := context.Background()

	_, err := s.UseUser(ctx, "u1", false)
	require.NoError(t, err)
	add(t, s, "p1", 2)

	guest := s.UseGuest(ctx)
	assert.True(t, guest.Cart.Empty())
	_, ok, _ := kv.Get(ctx, kvstore.CartKey("u1"))
	assert.True(t, ok)

	back, err := s.UseUser(ctx, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 2}, quantities(back.Cart))
}

func TestPersistenceFailureKeepsMemoryAndNotifies(t *testing.T) {
	kv := &failingStore{Store: kvstore.NewMemoryStore(), failSet: true}
	s := newTestStore(t, kv)

	out := add(t, s, "p1", 2)
	require.Len(t, out.Notices, 1)
	assert.Equal(t, string(pkgerrors.CodeStorage), out.Notices[0].Code)
	assert.Equal(t, map[string]int{"p1": 2}, quantities(out.Cart), "memory is not rolled back")
	assert.Equal(t, map[string]int{"p1": 2}, quantities(s.ActiveCart(context.Background()).Cart))
}

func TestLoadFailuresSurfaceAsNotices(t *testing.T) {
	ctx := context.Background()

	failing := &failingStore{Store: kvstore.NewMemoryStore(), failGet: true}
	out := newTestStore(t, failing).ActiveCart(ctx)
	assert.True(t, out.Cart.Empty())
	assert.Len(t, out.Notices, 1)

	kv := kvstore.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, kvstore.GuestCartKey, "{not json"))
	out = newTestStore(t, kv).ActiveCart(ctx)
	assert.True(t, out.Cart.Empty())
	assert.Len(t, out.Notices, 1)
}

func seedUserCart(t *testing.T, kv kvstore.Store, userID string, lines ...Line) {
	t.Helper()
	encoded, err := encodeLines(lines)
	require.NoError(t, err)
	require.NoError(t, kv.Set(context.Background(), kvstore.CartKey(userID), encoded))
}

func TestReadFailureNeverOverwritesSavedCart(t *testing.T) {
	ctx := context.Background()
	mem := kvstore.NewMemoryStore()
	seedUserCart(t, mem,
		"u1",
		Line{ProductID: "A", Name: "item A", UnitPrice: price(10), Quantity: 2},
		Line{ProductID: "B", Name: "item B", UnitPrice: price(10), Quantity: 1},
	)
	kv := &failingStore{Store: mem, failGets: 1}
	s := newTestStore(t, kv)

	out, err := s.UseUser(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, out.Notices, 1)
	assert.True(t, out.Cart.Empty())

	kv.failGets = 1
	_, err = s.AddLine(ctx, LineInput{ProductID: "C", Name: "item C", UnitPrice: price(10), Quantity: 1})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStorage, pkgerrors.CodeOf(err))

	raw, ok, err := mem.Get(ctx, kvstore.CartKey("u1"))
	require.NoError(t, err)
	require.True(t, ok)
	saved, err := decodeLines(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2, "B": 1}, quantities(Cart{Lines: saved}), "saved cart is untouched")

	out = s.ActiveCart(ctx)
	assert.Empty(t, out.Notices)
	assert.Equal(t, map[string]int{"A": 2, "B": 1}, quantities(out.Cart), "read is retried")

	add(t, s, "C", 1)
	raw, _, _ = mem.Get(ctx, kvstore.CartKey("u1"))
	saved, err = decodeLines(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2, "B": 1, "C": 1}, quantities(Cart{Lines: saved}))
}

func TestMergeSkippedWhenUserCartUnreadable(t *testing.T) {
	ctx := context.Background()
	mem := kvstore.NewMemoryStore()
	seedUserCart(t, mem, "u1", Line{ProductID: "A", Name: "item A", UnitPrice: price(10), Quantity: 2})
	kv := &failingStore{Store: mem}
	s := newTestStore(t, kv)

	add(t, s, "G", 3)
	kv.failGets = 1
	out, err := s.UseUser(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, out.Notices, 1)

	raw, ok, err := mem.Get(ctx, kvstore.GuestCartKey)
	require.NoError(t, err)
	require.True(t, ok, "guest slot is kept")
	guest, err := decodeLines(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"G": 3}, quantities(Cart{Lines: guest}))

	raw, _, _ = mem.Get(ctx, kvstore.CartKey("u1"))
	user, err := decodeLines(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2}, quantities(Cart{Lines: user}))

	s.UseGuest(ctx)
	assert.Equal(t, map[string]int{"G": 3}, quantities(s.ActiveCart(ctx).Cart))
}

func TestClearTargetsScope(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s := newTestStore(t, kv)
	ctx := context.Background()

	_, err := s.UseUser(ctx, "u1", false)
	require.NoError(t, err)
	add(t, s, "p1", 1)
	s.UseGuest(ctx)
	add(t, s, "g1", 1)

	s.Clear(ctx, UserScope("u1"))
	_, ok, _ := kv.Get(ctx, kvstore.CartKey("u1"))
	assert.False(t, ok)
	assert.Equal(t, map[string]int{"g1": 1}, quantities(s.ActiveCart(ctx).Cart))
}

func TestRoundTripAcrossRestart(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "cart.db")
	ctx := context.Background()

	openKV := func() (kvstore.Store, func()) {
		client, err := db.Open(sqlite.Open(dsn), config.DBConfig{MaxOpenConns: 1})
		require.NoError(t, err)
		kv, err := kvstore.NewSQLStore(ctx, client)
		require.NoError(t, err)
		return kv, func() { _ = client.Close() }
	}

	kv, closeFirst := openKV()
	first := newTestStore(t, kv)
	_, err := first.UseUser(ctx, "u1", false)
	require.NoError(t, err)
	_, err = first.AddLine(ctx, LineInput{ProductID: "p1", Name: "Milk", UnitPrice: decimal.RequireFromString("40.50"), Quantity: 2, ImageRef: "https://cdn.test/milk.png"})
	require.NoError(t, err)
	add(t, first, "p2", 1)
	before := first.ActiveCart(ctx).Cart
	closeFirst()

	kv, closeSecond := openKV()
	defer closeSecond()
	second := newTestStore(t, kv)
	after, err := second.UseUser(ctx, "u1", false)
	require.NoError(t, err)

	require.Len(t, after.Cart.Lines, len(before.Lines))
	for i := range before.Lines {
		assert.Equal(t, before.Lines[i].ProductID, after.Cart.Lines[i].ProductID)
		assert.Equal(t, before.Lines[i].Name, after.Cart.Lines[i].Name)
		assert.Equal(t, before.Lines[i].Quantity, after.Cart.Lines[i].Quantity)
		assert.Equal(t, before.Lines[i].ImageRef, after.Cart.Lines[i].ImageRef)
		assert.True(t, before.Lines[i].UnitPrice.Equal(after.Cart.Lines[i].UnitPrice))
	}
}

func TestConcurrentMutationsDoNotLoseUpdates(t *testing.T) {
	s := newTestStore(t, kvstore.NewMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AddLine(ctx, LineInput{ProductID: "p1", Name: "Milk", UnitPrice: price(40), Quantity: 1})
		}()
	}
	wg.Wait()

	line, ok := s.ActiveCart(ctx).Cart.Line("p1")
	require.True(t, ok)
	assert.Equal(t, 50, line.Quantity)
}

func TestSnapshotsAreIndependent(t *testing.T) {
	s := newTestStore(t, kvstore.NewMemoryStore())
	snap := add(t, s, "p1", 1).Cart
	snap.Lines[0].Quantity = 99

	line, _ := s.ActiveCart(context.Background()).Cart.Line("p1")
	assert.Equal(t, 1, line.Quantity)
}

type countingStore struct {
	kvstore.Store
	sets int
}

func (c *countingStore) Set(ctx context.Context, key, value string) error {
	c.sets++
	return c.Store.Set(ctx, key, value)
}

type failingStore struct {
	kvstore.Store
	failGet  bool
	failGets int // fail this many reads, then recover
	failSet  bool
}

func (f *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet || f.failGets > 0 {
		if f.failGets > 0 {
			f.failGets--
		}
		return "", false, pkgerrors.Wrap(pkgerrors.CodeStorage, errors.New("disk full"), "kv get")
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, errors.New("disk full"), "kv set")
	}
	return f.Store.Set(ctx, key, value)
}
