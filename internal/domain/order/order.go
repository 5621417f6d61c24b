// Package order places orders from carts. A cash order is committed in one
// store transaction; a card order is committed when the payment provider
// reports a completed checkout.
package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/apperr"
	"github.com/xenking/eshop/internal/domain/cart"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

var (
	ErrNotFound          = apperr.NotFound("There is no order with this id.")
	ErrCartNotFound      = apperr.NotFound("There is no cart with this id.")
	ErrEmptyCart         = apperr.Invalid("The cart is empty.")
	ErrInsufficientStock = apperr.Conflict("Some products in the cart are out of stock.")
)

// InsufficientStockError lists the products whose stock does not cover the
// purchased quantity. It unwraps to ErrInsufficientStock.
type InsufficientStockError struct {
	ProductIDs []string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for products %s", strings.Join(e.ProductIDs, ", "))
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Item is a snapshot of a cart line at the time the order was placed.
type Item struct {
	ProductID string          `json:"product"`
	Quantity  int             `json:"quantity"`
	Color     string          `json:"color,omitempty"`
	Price     decimal.Decimal `json:"price"`
}

type ShippingAddress struct {
	Details    string `json:"details" binding:"max=500"`
	Phone      string `json:"phone" binding:"omitempty,max=32"`
	City       string `json:"city" binding:"max=100"`
	PostalCode string `json:"postalCode" binding:"omitempty,max=20"`
}

// Metadata flattens the address into provider session metadata.
func (a ShippingAddress) Metadata() map[string]string {
	return map[string]string{
		"details":    a.Details,
		"phone":      a.Phone,
		"city":       a.City,
		"postalCode": a.PostalCode,
	}
}

// AddressFromMetadata is the inverse of ShippingAddress.Metadata.
func AddressFromMetadata(md map[string]string) ShippingAddress {
	return ShippingAddress{
		Details:    md["details"],
		Phone:      md["phone"],
		City:       md["city"],
		PostalCode: md["postalCode"],
	}
}

type Order struct {
	ID               string          `json:"id" db:"id"`
	UserID           string          `json:"user" db:"user_id"`
	Items            []Item          `json:"cartItems" db:"items"`
	TaxPrice         decimal.Decimal `json:"taxPrice" db:"tax_price"`
	ShippingPrice    decimal.Decimal `json:"shippingPrice" db:"shipping_price"`
	ShippingAddress  ShippingAddress `json:"shippingAddress" db:"shipping_address"`
	TotalOrderPrice  decimal.Decimal `json:"totalOrderPrice" db:"total_order_price"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod" db:"payment_method"`
	PaymentSessionID *string         `json:"paymentSessionId,omitempty" db:"payment_session_id"`
	IsPaid           bool            `json:"isPaid" db:"is_paid"`
	PaidAt           *time.Time      `json:"paidAt,omitempty" db:"paid_at"`
	IsDelivered      bool            `json:"isDelivered" db:"is_delivered"`
	DeliveredAt      *time.Time      `json:"deliveredAt,omitempty" db:"delivered_at"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}

// StockLine is the purchased quantity of one product.
type StockLine struct {
	ProductID string
	Quantity  int
}

// StockLines merges cart lines of the same product, keeping first-seen order.
func StockLines(items []Item) []StockLine {
	idx := make(map[string]int, len(items))
	var out []StockLine
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, StockLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func snapshot(items []cart.Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = Item{ProductID: it.ProductID, Quantity: it.Quantity, Color: it.Color, Price: it.Price}
	}
	return out
}

// Tx is the set of operations available inside one store transaction.
type Tx interface {
	CartByID(ctx context.Context, cartID string) (*cart.Cart, error)
	// SessionRecorded reports whether an order already references the
	// payment session.
	SessionRecorded(ctx context.Context, sessionID string) (bool, error)
	CreateOrder(ctx context.Context, o *Order) error
	// AdjustInventory decrements quantity and increments sold for every
	// line in one statement. It fails with *InsufficientStockError when a
	// product is missing or its stock does not cover the line.
	AdjustInventory(ctx context.Context, lines []StockLine) error
	DeleteCart(ctx context.Context, cartID string) error
}

// Store runs fn in a transaction: committed when fn returns nil, rolled
// back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Repository covers the order updates made outside placement.
type Repository interface {
	Get(ctx context.Context, id string) (*Order, error)
	SetPaid(ctx context.Context, id string, at time.Time) (*Order, error)
	SetDelivered(ctx context.Context, id string, at time.Time) (*Order, error)
}
