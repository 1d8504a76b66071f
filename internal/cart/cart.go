// Package cart owns the in-memory shopping cart and its per-identity
// persistence. One cart exists per scope (the guest scope or a user scope);
// exactly one scope is active at a time.
package cart

import (
	"github.com/angelmondragon/storefront/pkg/kvstore"
	"github.com/shopspring/decimal"
)

// Line is one product in a cart. Quantity is always at least 1.
type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	ImageRef  string          `json:"imageRef,omitempty"`
}

// Subtotal is UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Scope partitions carts. The zero value is the guest scope.
type Scope struct {
	UserID string
}

// GuestScope is the scope used while no identity is established.
func GuestScope() Scope { return Scope{} }

// UserScope is the scope of userID.
func UserScope(userID string) Scope { return Scope{UserID: userID} }

func (s Scope) IsGuest() bool { return s.UserID == "" }

// Key is the durable store slot of the scope.
func (s Scope) Key() string {
	if s.IsGuest() {
		return kvstore.GuestCartKey
	}
	return kvstore.CartKey(s.UserID)
}

func (s Scope) String() string {
	if s.IsGuest() {
		return "guest"
	}
	return "user:" + s.UserID
}

// Cart is an immutable snapshot of a scope's lines in insertion order.
type Cart struct {
	Scope Scope
	Lines []Line
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool { return len(c.Lines) == 0 }

// Total is Σ unitPrice × quantity over every line.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// ItemCount is the sum of quantities.
func (c Cart) ItemCount() int {
	count := 0
	for _, line := range c.Lines {
		count += line.Quantity
	}
	return count
}

// Line returns the line for productID, if present.
func (c Cart) Line(productID string) (Line, bool) {
	for _, line := range c.Lines {
		if line.ProductID == productID {
			return line, true
		}
	}
	return Line{}, false
}

// Added is the confirmation AddLine reports for the UI toast. Quantity is the
// amount just added, not the new line total.
type Added struct {
	Name     string
	Quantity int
}

// Notice is a non-fatal problem surfaced alongside a successful operation,
// typically a durable store failure.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Outcome is what a cart operation reports back.
type Outcome struct {
	Cart    Cart
	Added   *Added
	Notices []Notice
}
