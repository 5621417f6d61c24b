package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eshop/internal/domain/review"
)

var _ review.Store = (*ReviewRepository)(nil)

// ReviewRepository stores reviews and keeps the product rating aggregate in
// the same transaction as every review change.
type ReviewRepository struct {
	*Table[review.Review]
}

func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{Table: newTable[review.Review](pool, "reviews", review.ErrNotFound)}
}

func (r *ReviewRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx review.Tx) error) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &reviewTx{table: r.Table, tx: tx})
	})
}

type reviewTx struct {
	table *Table[review.Review]
	tx    pgx.Tx
}

// ProductExists locks the product row so concurrent review changes of one
// product recompute the aggregate one after another.
func (t *reviewTx) ProductExists(ctx context.Context, productID string) (bool, error) {
	var id string
	err := t.tx.QueryRow(ctx, "SELECT id FROM products WHERE id = $1 FOR UPDATE", productID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, translate(err, "lock product")
	}
	return true, nil
}

func (t *reviewTx) Create(ctx context.Context, rv *review.Review) error {
	var exists bool
	err := t.tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM reviews WHERE user_id = $1 AND product_id = $2)",
		rv.UserID, rv.ProductID).Scan(&exists)
	if err != nil {
		return translate(err, "check review")
	}
	if exists {
		return review.ErrAlreadyReviewed
	}
	return t.table.insert(ctx, t.tx, rv)
}

func (t *reviewTx) Get(ctx context.Context, id string) (*review.Review, error) {
	rv, err := t.table.get(ctx, t.tx, id, true)
	if err != nil {
		return nil, err
	}
	if _, err := t.ProductExists(ctx, rv.ProductID); err != nil {
		return nil, err
	}
	return rv, nil
}

func (t *reviewTx) Update(ctx context.Context, id string, p review.Patch) (*review.Review, error) {
	rv, err := t.table.get(ctx, t.tx, id, true)
	if err != nil {
		return nil, err
	}
	if p.Text != nil {
		rv.Text = *p.Text
	}
	if p.Ratings != nil {
		rv.Ratings = *p.Ratings
	}
	return t.table.update(ctx, t.tx, id, rv)
}

func (t *reviewTx) Delete(ctx context.Context, id string) error {
	if _, err := t.tx.Exec(ctx, "DELETE FROM reviews WHERE id = $1", id); err != nil {
		return translate(err, "delete review")
	}
	return nil
}

func (t *reviewTx) Ratings(ctx context.Context, productID string) ([]float64, error) {
	rows, err := t.tx.Query(ctx, "SELECT ratings FROM reviews WHERE product_id = $1", productID)
	if err != nil {
		return nil, translate(err, "load ratings")
	}
	ratings, err := pgx.CollectRows(rows, pgx.RowTo[float64])
	if err != nil {
		return nil, translate(err, "scan ratings")
	}
	return ratings, nil
}

func (t *reviewTx) SetProductRatings(ctx context.Context, productID string, agg review.Aggregate) error {
	_, err := t.tx.Exec(ctx, `UPDATE products SET ratings_average = $2, ratings_quantity = $3,
		updated_at = now() WHERE id = $1`, productID, agg.Average, agg.Quantity)
	return translate(err, "store ratings aggregate")
}
