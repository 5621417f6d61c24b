package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eshop/internal/domain/query"
)

// Table provides the generic read and write operations of one resource.
type Table[T any] struct {
	pool     *pgxpool.Pool
	schema   *schema
	notFound error
}

func newTable[T any](pool *pgxpool.Pool, table string, notFound error) *Table[T] {
	return &Table[T]{pool: pool, schema: newSchema[T](table), notFound: notFound}
}

// List counts the documents matching the builder's filter, paginates the
// builder and returns the requested page.
func (t *Table[T]) List(ctx context.Context, b *query.Builder) ([]T, query.Pagination, error) {
	countSQL, args, err := t.schema.countSQL(b.CountQuery())
	if err != nil {
		return nil, query.Pagination{}, err
	}
	var total int
	if err := t.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, query.Pagination{}, translate(err, "count "+t.schema.table)
	}

	b.Paginate(total)
	listSQL, args, err := t.schema.listSQL(b.Query())
	if err != nil {
		return nil, query.Pagination{}, err
	}
	rows, err := t.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, query.Pagination{}, translate(err, "list "+t.schema.table)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[T])
	if err != nil {
		return nil, query.Pagination{}, translate(err, "scan "+t.schema.table)
	}
	return items, b.Pagination(), nil
}

func (t *Table[T]) Get(ctx context.Context, id string) (*T, error) {
	return t.get(ctx, t.pool, id, false)
}

func (t *Table[T]) get(ctx context.Context, q querier, id string, forUpdate bool) (*T, error) {
	cols, _ := t.schema.selectList(nil)
	sql := "SELECT " + cols + " FROM " + t.schema.table + " WHERE id = $1"
	if forUpdate {
		sql += " FOR UPDATE"
	}
	return t.one(ctx, q, sql, id)
}

func (t *Table[T]) one(ctx context.Context, q querier, sql string, args ...any) (*T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(err, "query "+t.schema.table)
	}
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByNameLax[T])
	if err != nil {
		return nil, t.scanErr(err, "scan "+t.schema.table)
	}
	return v, nil
}

// Insert writes v and refreshes it with the stored row.
func (t *Table[T]) Insert(ctx context.Context, v *T) error {
	return t.insert(ctx, t.pool, v)
}

func (t *Table[T]) insert(ctx context.Context, q querier, v *T) error {
	sql, cols := t.schema.insertSQL()
	stored, err := t.one(ctx, q, sql, values(v, cols)...)
	if err != nil {
		return err
	}
	*v = *stored
	return nil
}

// Modify loads the row under a lock, applies fn and writes the result back.
func (t *Table[T]) Modify(ctx context.Context, id string, fn func(v *T) error) (*T, error) {
	var out *T
	err := withTx(ctx, t.pool, func(tx pgx.Tx) error {
		v, err := t.get(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
		out, err = t.update(ctx, tx, id, v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Table[T]) update(ctx context.Context, q querier, id string, v *T) (*T, error) {
	sql, cols := t.schema.updateSQL()
	args := append([]any{id}, values(v, cols)...)
	return t.one(ctx, q, sql, args...)
}

func (t *Table[T]) Delete(ctx context.Context, id string) error {
	tag, err := t.pool.Exec(ctx, "DELETE FROM "+t.schema.table+" WHERE id = $1", id)
	if err != nil {
		return translate(err, "delete from "+t.schema.table)
	}
	if tag.RowsAffected() == 0 {
		return t.notFound
	}
	return nil
}

// scanErr maps a missing row to the table's not-found error.
func (t *Table[T]) scanErr(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return t.notFound
	}
	return translate(err, op)
}
