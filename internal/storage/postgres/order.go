package postgres

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eshop/internal/domain/cart"
	"github.com/xenking/eshop/internal/domain/order"
)

const (
	orderSessionConstraint = "orders_payment_session_id_key"

	// adjustInventorySQL moves stock to sold for every line whose product
	// has enough stock. Lines are merged per product by the caller.
	adjustInventorySQL = `UPDATE products p
		SET quantity = p.quantity - l.qty, sold = p.sold + l.qty, updated_at = now()
		FROM unnest($1::text[], $2::int[]) AS l(id, qty)
		WHERE p.id = l.id AND p.quantity >= l.qty
		RETURNING p.id`
)

var (
	_ order.Store      = (*OrderRepository)(nil)
	_ order.Repository = (*OrderRepository)(nil)
)

// OrderRepository stores orders and runs the placement transaction across
// carts, products and orders.
type OrderRepository struct {
	*Table[order.Order]
	carts *Table[cart.Cart]
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{
		Table: newTable[order.Order](pool, "orders", order.ErrNotFound),
		carts: newTable[cart.Cart](pool, "carts", cart.ErrNotFound),
	}
}

func (r *OrderRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &orderTx{repo: r, tx: tx})
	})
}

func (r *OrderRepository) SetPaid(ctx context.Context, id string, at time.Time) (*order.Order, error) {
	return r.Modify(ctx, id, func(o *order.Order) error {
		o.IsPaid, o.PaidAt = true, &at
		return nil
	})
}

func (r *OrderRepository) SetDelivered(ctx context.Context, id string, at time.Time) (*order.Order, error) {
	return r.Modify(ctx, id, func(o *order.Order) error {
		o.IsDelivered, o.DeliveredAt = true, &at
		return nil
	})
}

type orderTx struct {
	repo *OrderRepository
	tx   pgx.Tx
}

// CartByID locks the cart so a concurrent placement from the same cart
// waits and then finds it gone.
func (t *orderTx) CartByID(ctx context.Context, cartID string) (*cart.Cart, error) {
	return t.repo.carts.get(ctx, t.tx, cartID, true)
}

func (t *orderTx) SessionRecorded(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM orders WHERE payment_session_id = $1)", sessionID).Scan(&exists)
	if err != nil {
		return false, translate(err, "check payment session")
	}
	return exists, nil
}

func (t *orderTx) CreateOrder(ctx context.Context, o *order.Order) error {
	sql, cols := t.repo.schema.insertSQL()
	var stored order.Order
	rows, err := t.tx.Query(ctx, sql, values(o, cols)...)
	if err == nil {
		stored, err = pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[order.Order])
	}
	if err != nil {
		if isUniqueViolation(err, orderSessionConstraint) {
			return order.ErrAlreadyReconciled
		}
		return translate(err, "insert order")
	}
	*o = stored
	return nil
}

func (t *orderTx) AdjustInventory(ctx context.Context, lines []order.StockLine) error {
	ids, qty, err := stockArgs(lines)
	if err != nil {
		return err
	}
	rows, err := t.tx.Query(ctx, adjustInventorySQL, ids, qty)
	if err != nil {
		return translate(err, "adjust inventory")
	}
	updated, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return translate(err, "adjust inventory")
	}
	if len(updated) == len(lines) {
		return nil
	}

	done := make(map[string]bool, len(updated))
	for _, id := range updated {
		done[id] = true
	}
	short := &order.InsufficientStockError{}
	for _, l := range lines {
		if !done[l.ProductID] {
			short.ProductIDs = append(short.ProductIDs, l.ProductID)
		}
	}
	return short
}

// stockArgs splits lines into the arrays of adjustInventorySQL. A quantity
// outside the INT column range can never be covered by stock.
func stockArgs(lines []order.StockLine) ([]string, []int32, error) {
	ids := make([]string, len(lines))
	qty := make([]int32, len(lines))
	var short []string
	for i, l := range lines {
		if l.Quantity < 1 || l.Quantity > math.MaxInt32 {
			short = append(short, l.ProductID)
			continue
		}
		ids[i], qty[i] = l.ProductID, int32(l.Quantity)
	}
	if len(short) > 0 {
		return nil, nil, &order.InsufficientStockError{ProductIDs: short}
	}
	return ids, qty, nil
}

func (t *orderTx) DeleteCart(ctx context.Context, cartID string) error {
	tag, err := t.tx.Exec(ctx, "DELETE FROM carts WHERE id = $1", cartID)
	if err != nil {
		return translate(err, "delete cart")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(cart.ErrNotFound, "delete cart")
	}
	return nil
}
