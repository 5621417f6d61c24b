package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eshop/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores at most one cart per user; the unique user_id
// column arbitrates concurrent creation.
type CartRepository struct {
	*Table[cart.Cart]
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{Table: newTable[cart.Cart](pool, "carts", cart.ErrNotFound)}
}

func (r *CartRepository) FindByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	cols, _ := r.schema.selectList(nil)
	return r.one(ctx, r.pool, "SELECT "+cols+" FROM carts WHERE user_id = $1", userID)
}

// GetOrCreate returns the user's cart. Concurrent first calls for one user
// all observe the same row.
func (r *CartRepository) GetOrCreate(ctx context.Context, userID string) (*cart.Cart, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO carts (id, user_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		uuid.New().String(), userID)
	if err != nil {
		return nil, translate(err, "create cart")
	}
	return r.FindByUser(ctx, userID)
}

// Save rewrites the lines and totals of the cart.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	stored, err := r.update(ctx, r.pool, c.ID, c)
	if err != nil {
		return err
	}
	*c = *stored
	return nil
}

func (r *CartRepository) DeleteByUser(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM carts WHERE user_id = $1", userID)
	if err != nil {
		return translate(err, "delete cart")
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}
