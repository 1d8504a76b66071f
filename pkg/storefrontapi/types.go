package storefrontapi

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Amount is a decimal that travels as a bare JSON number, the way the API
// emits and expects prices and totals.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.Decimal.UnmarshalJSON(data)
}

// Profile is the user record served by /auth/user/{id} and embedded in the
// login answer. The API is inconsistent between "_id" and "id".
type Profile struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var wire struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Address string `json:"address"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	p.ID = wire.MongoID
	if p.ID == "" {
		p.ID = wire.ID
	}
	p.Name = wire.Name
	p.Email = wire.Email
	p.Phone = wire.Phone
	p.Address = wire.Address
	return nil
}

// Complete reports whether the profile carries what an order needs.
func (p Profile) Complete() bool {
	return strings.TrimSpace(p.Phone) != "" && strings.TrimSpace(p.Address) != ""
}

// LoginResult is the answer of POST /auth/login.
type LoginResult struct {
	Token string
	User  Profile
}

// Location is a latitude/longitude pair.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Product is a catalog entry. DiscountPrice is the struck-through price, when any.
type Product struct {
	ID            string  `json:"_id"`
	Name          string  `json:"name"`
	Price         Amount  `json:"price"`
	DiscountPrice *Amount `json:"Dprice,omitempty"`
	Image         string  `json:"img,omitempty"`
	Description   string  `json:"description,omitempty"`
}

// OrderItem is one cart line as submitted with, and returned in, an order.
type OrderItem struct {
	ID       string `json:"_id" validate:"required"`
	Name     string `json:"name"`
	Price    Amount `json:"price"`
	Quantity int    `json:"quantity" validate:"gte=1"`
	Image    string `json:"img,omitempty"`
}

// NewOrder is the body of POST /orders/add-order.
type NewOrder struct {
	UserID       string      `json:"userId" validate:"required"`
	UserName     string      `json:"userName"`
	VendorID     string      `json:"vendorId" validate:"required"`
	Name         string      `json:"name"`
	Phone        string      `json:"phone" validate:"required"`
	Address      string      `json:"address" validate:"required"`
	UserLocation Location    `json:"userLocation"`
	CartItems    []OrderItem `json:"cartItems" validate:"required,min=1,dive"`
	GrandTotal   Amount      `json:"grandTotal"`
	Status       string      `json:"status" validate:"required"`
}

// Order is an order as listed by the user and vendor endpoints.
type Order struct {
	ID           string      `json:"_id"`
	UserID       string      `json:"userId"`
	UserName     string      `json:"userName"`
	VendorID     string      `json:"vendorId"`
	Name         string      `json:"name"`
	Phone        string      `json:"phone"`
	Address      string      `json:"address"`
	UserLocation *Location   `json:"userLocation,omitempty"`
	CartItems    []OrderItem `json:"cartItems"`
	GrandTotal   *Amount     `json:"grandTotal,omitempty"`
	Status       string      `json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// Total recomputes the order total from its lines. Listed orders do not
// always carry grandTotal, so the lines are authoritative.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.CartItems {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// PlacedOrder is what the API acknowledges on creation.
type PlacedOrder struct {
	ID      string `json:"_id,omitempty"`
	Message string `json:"message,omitempty"`
}
