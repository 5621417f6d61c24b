// Package cart holds the per-user shopping cart and its derived totals.
package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/apperr"
)

var (
	ErrNotFound     = apperr.NotFound("There is no cart for this user.")
	ErrItemNotFound = apperr.NotFound("There is no item in the cart with this id.")
)

// Item is one cart line. Price is the product price when the line was added.
type Item struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product"`
	Quantity  int             `json:"quantity"`
	Color     string          `json:"color,omitempty"`
	Price     decimal.Decimal `json:"price"`
}

// Cart belongs to exactly one user.
type Cart struct {
	ID                      string           `json:"id" db:"id"`
	UserID                  string           `json:"user" db:"user_id"`
	Items                   []Item           `json:"cartItems" db:"items"`
	TotalCartPrice          decimal.Decimal  `json:"totalCartPrice" db:"total_cart_price"`
	TotalPriceAfterDiscount *decimal.Decimal `json:"totalPriceAfterDiscount,omitempty" db:"total_price_after_discount"`
	CreatedAt               time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt               time.Time        `json:"updatedAt" db:"updated_at"`
}

// Repository persists carts. Writes are last-write-wins per cart.
type Repository interface {
	FindByUser(ctx context.Context, userID string) (*Cart, error)
	// GetOrCreate returns the user's cart, creating an empty one if none
	// exists. The one-cart-per-user rule is enforced by the store.
	GetOrCreate(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	DeleteByUser(ctx context.Context, userID string) error
}

// Recalculate recomputes the cart total and drops any applied discount.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	c.TotalCartPrice = total.Round(2)
	c.TotalPriceAfterDiscount = nil
}

// AddProduct increments the line with the same product and color, or
// appends a new line with quantity one.
func (c *Cart) AddProduct(productID, color string, price decimal.Decimal) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].Color == color {
			c.Items[i].Quantity++
			c.Recalculate()
			return
		}
	}
	c.Items = append(c.Items, Item{
		ID:        uuid.New().String(),
		ProductID: productID,
		Quantity:  1,
		Color:     color,
		Price:     price,
	})
	c.Recalculate()
}

// RemoveItem drops a line. It reports whether the line existed.
func (c *Cart) RemoveItem(itemID string) bool {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.Recalculate()
			return true
		}
	}
	return false
}

// SetQuantity changes the quantity of a line. It reports whether the line
// existed.
func (c *Cart) SetQuantity(itemID string, quantity int) bool {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Quantity = quantity
			c.Recalculate()
			return true
		}
	}
	return false
}

// PayablePrice is the discounted total when a coupon is applied, otherwise
// the plain total.
func (c *Cart) PayablePrice() decimal.Decimal {
	if c.TotalPriceAfterDiscount != nil {
		return *c.TotalPriceAfterDiscount
	}
	return c.TotalCartPrice
}

// NumberOfItems is the number of lines in the cart.
func (c *Cart) NumberOfItems() int {
	return len(c.Items)
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
