package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eshop/internal/apperr"
	"github.com/xenking/eshop/internal/domain/coupon"
)

var errCouponNotFound = apperr.NotFound("No coupon found for this id.")

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository stores coupons under unique uppercase names.
type CouponRepository struct {
	*Table[coupon.Coupon]
}

func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{Table: newTable[coupon.Coupon](pool, "coupons", errCouponNotFound)}
}

// FindActive looks up a coupon by name that has not expired at now.
// Returns coupon.ErrInvalidOrExpired when none exists.
func (r *CouponRepository) FindActive(ctx context.Context, name string, now time.Time) (*coupon.Coupon, error) {
	cols, _ := r.schema.selectList(nil)
	c, err := r.one(ctx, r.pool, "SELECT "+cols+" FROM coupons WHERE name = $1 AND expire > $2",
		coupon.NormalizeName(name), now)
	if errors.Is(err, errCouponNotFound) {
		return nil, coupon.ErrInvalidOrExpired
	}
	return c, err
}

// Upsert inserts a coupon or refreshes the expiry and discount of the
// existing coupon with the same name.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO coupons (id, name, expire, discount) VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET expire = EXCLUDED.expire, discount = EXCLUDED.discount,
			version = coupons.version + 1, updated_at = now()`,
		c.ID, c.Name, c.Expire, c.Discount)
	return translate(err, "upsert coupon")
}
