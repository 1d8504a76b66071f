package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/kvstore"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/shopspring/decimal"
)

// LineInput is the payload of AddLine.
type LineInput struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	ImageRef  string
	Quantity  int
}

type scopedCart struct {
	lines map[string]Line
	order []string
	// unread marks a placeholder for a slot whose read failed. It is never
	// cached and never written back, so the saved lines survive.
	unread bool
}

func newScopedCart(lines []Line) *scopedCart {
	c := &scopedCart{lines: make(map[string]Line, len(lines))}
	for _, line := range lines {
		c.lines[line.ProductID] = line
		c.order = append(c.order, line.ProductID)
	}
	return c
}

func (c *scopedCart) snapshot(scope Scope) Cart {
	lines := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		lines = append(lines, c.lines[id])
	}
	return Cart{Scope: scope, Lines: lines}
}

func (c *scopedCart) put(line Line) {
	if _, ok := c.lines[line.ProductID]; !ok {
		c.order = append(c.order, line.ProductID)
	}
	c.lines[line.ProductID] = line
}

func (c *scopedCart) remove(productID string) bool {
	if _, ok := c.lines[productID]; !ok {
		return false
	}
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *scopedCart) reset() {
	c.lines = make(map[string]Line)
	c.order = nil
}

// Store is the authoritative cart state. Every operation runs under one
// mutex, including its persistence write, so each mutation reads the state
// left by the previous one and writes land in the order they were made.
// In-memory state wins over durability: a failed write is reported as a
// Notice and never rolled back.
type Store struct {
	mu      sync.Mutex
	kv      kvstore.Store
	logg    *logger.Logger
	metrics *metrics.StorageMetrics

	active Scope
	carts  map[Scope]*scopedCart
}

// NewStore builds a cart store over kv. The guest scope is active until an
// identity transition says otherwise.
func NewStore(kv kvstore.Store, logg *logger.Logger, storageMetrics *metrics.StorageMetrics) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("durable store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store{
		kv:      kv,
		logg:    logg,
		metrics: storageMetrics,
		active:  GuestScope(),
		carts:   make(map[Scope]*scopedCart),
	}, nil
}

// ActiveScope returns the scope mutations currently apply to.
func (s *Store) ActiveScope() Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ActiveCart returns a snapshot of the cart of the active scope.
func (s *Store) ActiveCart(ctx context.Context) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, notices := s.load(ctx, s.active)
	return Outcome{Cart: c.snapshot(s.active), Notices: notices}
}

// Snapshot returns the cart of scope without changing the active scope.
func (s *Store) Snapshot(ctx context.Context, scope Scope) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, notices := s.load(ctx, scope)
	return Outcome{Cart: c.snapshot(scope), Notices: notices}
}

// AddLine increments the line of in.ProductID by in.Quantity, inserting it
// when absent, and persists the active cart.
func (s *Store) AddLine(ctx context.Context, in LineInput) (Outcome, error) {
	in.ProductID = strings.TrimSpace(in.ProductID)
	switch {
	case in.ProductID == "":
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	case in.Quantity < 1:
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	case in.UnitPrice.IsNegative():
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "unit price must be non-negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scope := s.active
	c, notices := s.load(ctx, scope)
	if c.unread {
		return Outcome{Cart: c.snapshot(scope), Notices: notices},
			pkgerrors.New(pkgerrors.CodeStorage, "saved cart could not be read, try again")
	}
	line, ok := c.lines[in.ProductID]
	if ok {
		line.Quantity += in.Quantity
	} else {
		line = Line{
			ProductID: in.ProductID,
			Name:      in.Name,
			UnitPrice: in.UnitPrice,
			Quantity:  in.Quantity,
			ImageRef:  in.ImageRef,
		}
	}
	c.put(line)
	notices = append(notices, s.persist(ctx, scope, c)...)

	return Outcome{
		Cart:    c.snapshot(scope),
		Added:   &Added{Name: line.Name, Quantity: in.Quantity},
		Notices: notices,
	}, nil
}

// RemoveLine deletes the line of productID. Removing an absent line is a no-op.
func (s *Store) RemoveLine(ctx context.Context, productID string) Outcome {
	productID = strings.TrimSpace(productID)

	s.mu.Lock()
	defer s.mu.Unlock()

	scope := s.active
	c, notices := s.load(ctx, scope)
	if c.remove(productID) {
		notices = append(notices, s.persist(ctx, scope, c)...)
	}
	return Outcome{Cart: c.snapshot(scope), Notices: notices}
}

// SetQuantity overwrites the quantity of productID. A quantity below 1
// removes the line. Setting the quantity of an absent line is a no-op.
func (s *Store) SetQuantity(ctx context.Context, productID string, quantity int) Outcome {
	if quantity < 1 {
		return s.RemoveLine(ctx, productID)
	}
	productID = strings.TrimSpace(productID)

	s.mu.Lock()
	defer s.mu.Unlock()

	scope := s.active
	c, notices := s.load(ctx, scope)
	line, ok := c.lines[productID]
	if ok && line.Quantity != quantity {
		line.Quantity = quantity
		c.put(line)
		notices = append(notices, s.persist(ctx, scope, c)...)
	}
	return Outcome{Cart: c.snapshot(scope), Notices: notices}
}

// Clear empties the cart of scope, in memory and in the durable store. It
// targets an explicit scope so a completed order clears the cart it was
// taken from even if the active identity changed meanwhile.
func (s *Store) Clear(ctx context.Context, scope Scope) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, notices := s.load(ctx, scope)
	c.reset()
	if err := s.kv.Remove(ctx, scope.Key()); err != nil {
		notices = append(notices, s.report(ctx, scope, "remove", err))
	}
	return Outcome{Cart: c.snapshot(scope), Notices: notices}
}

// MergeGuestIntoUser folds the guest cart into userID's cart: quantities are
// summed on matching product ids, other guest lines are inserted unchanged.
// The guest cart is then cleared. Both slots are written in one batch, which
// is atomic on backends that support it. With an empty guest cart the call
// is a no-op.
func (s *Store) MergeGuestIntoUser(ctx context.Context, userID string) (Outcome, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mergeLocked(ctx, userID), nil
}

func (s *Store) mergeLocked(ctx context.Context, userID string) Outcome {
	guestScope, userScope := GuestScope(), UserScope(userID)
	guest, notices := s.load(ctx, guestScope)
	user, userNotices := s.load(ctx, userScope)
	notices = append(notices, userNotices...)

	if user.unread {
		// Both slots stay as saved; the guest lines remain in the guest cart.
		s.logg.Warn(s.logg.WithScope(ctx, userScope.String()), "guest cart merge skipped, user cart unreadable")
		return Outcome{Cart: user.snapshot(userScope), Notices: notices}
	}
	if len(guest.order) == 0 {
		return Outcome{Cart: user.snapshot(userScope), Notices: notices}
	}

	for _, id := range guest.order {
		line := guest.lines[id]
		if existing, ok := user.lines[id]; ok {
			existing.Quantity += line.Quantity
			user.put(existing)
			continue
		}
		user.put(line)
	}
	merged := len(guest.order)
	guest.reset()

	encoded, err := encodeLines(user.snapshot(userScope).Lines)
	if err == nil {
		err = kvstore.Apply(ctx, s.kv, kvstore.Batch{
			Sets:    map[string]string{userScope.Key(): encoded},
			Removes: []string{guestScope.Key()},
		})
	}
	if err != nil {
		notices = append(notices, s.report(ctx, userScope, "merge", err))
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"scope":        userScope.String(),
		"merged_lines": merged,
	}), "guest cart merged into user cart")

	return Outcome{Cart: user.snapshot(userScope), Notices: notices}
}

// UseGuest makes the guest cart active. Persisted user carts are kept.
func (s *Store) UseGuest(ctx context.Context) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = GuestScope()
	c, notices := s.load(ctx, s.active)
	return Outcome{Cart: c.snapshot(s.active), Notices: notices}
}

// UseUser makes userID's cart active, first merging the guest cart into it
// when merge is set.
func (s *Store) UseUser(ctx context.Context, userID string, merge bool) (Outcome, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = UserScope(userID)
	if merge {
		return s.mergeLocked(ctx, userID), nil
	}
	c, notices := s.load(ctx, s.active)
	return Outcome{Cart: c.snapshot(s.active), Notices: notices}, nil
}

// load returns the in-memory cart of scope, reading it from the durable store
// on first use. A corrupt slot yields a cached empty cart plus a notice and is
// replaced on the next write. A failed read yields an uncached unread
// placeholder plus a notice, so the next access retries the read.
func (s *Store) load(ctx context.Context, scope Scope) (*scopedCart, []Notice) {
	if c, ok := s.carts[scope]; ok {
		return c, nil
	}

	var notices []Notice
	var lines []Line
	raw, found, err := s.kv.Get(ctx, scope.Key())
	if err != nil {
		c := newScopedCart(nil)
		c.unread = true
		return c, []Notice{s.report(ctx, scope, "get", err)}
	}
	if found {
		lines, err = decodeLines(raw)
		if err != nil {
			notices = append(notices, s.report(ctx, scope, "decode", pkgerrors.Wrap(pkgerrors.CodeStorage, err, "saved cart is unreadable")))
		}
	}

	c := newScopedCart(lines)
	s.carts[scope] = c
	return c, notices
}

func (s *Store) persist(ctx context.Context, scope Scope, c *scopedCart) []Notice {
	if c.unread {
		return nil
	}
	encoded, err := encodeLines(c.snapshot(scope).Lines)
	if err == nil {
		err = s.kv.Set(ctx, scope.Key(), encoded)
	}
	if err != nil {
		return []Notice{s.report(ctx, scope, "set", err)}
	}
	return nil
}

func (s *Store) report(ctx context.Context, scope Scope, op string, err error) Notice {
	s.metrics.IncFailure(op)
	s.logg.WarnErr(s.logg.WithFields(ctx, map[string]any{
		"scope": scope.String(),
		"op":    op,
	}), "cart persistence failed", err)
	return Notice{
		Code:    string(pkgerrors.CodeStorage),
		Message: pkgerrors.MetadataFor(pkgerrors.CodeStorage).PublicMessage,
	}
}
