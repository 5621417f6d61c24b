package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator resolves a coupon name to the discounted price of a total.
type Validator interface {
	Validate(ctx context.Context, name string, total decimal.Decimal) (*Discount, error)
}

// Discount is the outcome of applying a coupon.
type Discount struct {
	Coupon *Coupon
	Total  decimal.Decimal
}

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up an unexpired coupon by its normalized name and applies it
// to total. Unknown and expired names both yield ErrInvalidOrExpired.
func (v *RepoValidator) Validate(ctx context.Context, name string, total decimal.Decimal) (*Discount, error) {
	now := v.now()
	c, err := v.repo.FindActive(ctx, NormalizeName(name), now)
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpired) {
			return nil, ErrInvalidOrExpired
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	// The store filters by expiry too; this guards stores with a coarser clock.
	if !c.Active(now) {
		return nil, ErrInvalidOrExpired
	}
	return &Discount{Coupon: c, Total: c.Apply(total)}, nil
}
