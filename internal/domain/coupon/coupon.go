// Package coupon holds named, expiring percentage discounts.
package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/apperr"
)

var (
	// ErrInvalidOrExpired is returned when a name does not resolve to an
	// active coupon.
	ErrInvalidOrExpired = apperr.NotFound("Coupon is invalid or expired.")
	ErrDiscountRange    = apperr.Invalid("discount must be greater than 0 and at most 100")
)

var hundred = decimal.NewFromInt(100)

// Coupon grants Discount percent off a cart total until Expire.
type Coupon struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Expire    time.Time       `json:"expire" db:"expire"`
	Discount  decimal.Decimal `json:"discount" db:"discount"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

type Input struct {
	Name     string          `json:"name" binding:"required,min=3,max=32"`
	Expire   time.Time       `json:"expire" binding:"required"`
	Discount decimal.Decimal `json:"discount" binding:"required"`
}

type Patch struct {
	Name     *string          `json:"name" binding:"omitempty,min=3,max=32"`
	Expire   *time.Time       `json:"expire"`
	Discount *decimal.Decimal `json:"discount"`
}

// Repository looks up coupons.
type Repository interface {
	// FindActive returns the coupon with the normalized name that expires
	// after now, or ErrInvalidOrExpired.
	FindActive(ctx context.Context, name string, now time.Time) (*Coupon, error)
}

// NormalizeName trims and uppercases a coupon name.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// ValidateDiscount checks that d is within (0, 100].
func ValidateDiscount(d decimal.Decimal) error {
	if !d.IsPositive() || d.GreaterThan(hundred) {
		return ErrDiscountRange
	}
	return nil
}

// Normalize prepares input for storage.
func (in Input) Normalize() (Input, error) {
	in.Name = NormalizeName(in.Name)
	if err := ValidateDiscount(in.Discount); err != nil {
		return in, err
	}
	return in, nil
}

// Normalize prepares a patch for storage.
func (p Patch) Normalize() (Patch, error) {
	if p.Name != nil {
		name := NormalizeName(*p.Name)
		p.Name = &name
	}
	if p.Discount != nil {
		if err := ValidateDiscount(*p.Discount); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Apply returns total reduced by the coupon percentage, rounded to cents.
func (c *Coupon) Apply(total decimal.Decimal) decimal.Decimal {
	off := total.Mul(c.Discount).Div(hundred)
	return total.Sub(off).Round(2)
}

// Active reports whether the coupon has not expired at now.
func (c *Coupon) Active(now time.Time) bool {
	return c.Expire.After(now)
}

// New builds a coupon from validated input.
func New(in Input) (*Coupon, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	return &Coupon{
		ID:       uuid.New().String(),
		Name:     in.Name,
		Expire:   in.Expire,
		Discount: in.Discount,
	}, nil
}

// Apply writes the set fields of the patch to c.
func (p Patch) Apply(c *Coupon) error {
	p, err := p.Normalize()
	if err != nil {
		return err
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Expire != nil {
		c.Expire = *p.Expire
	}
	if p.Discount != nil {
		c.Discount = *p.Discount
	}
	return nil
}
