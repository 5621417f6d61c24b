package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eshop/internal/domain/catalog"
)

func NewCategoryTable(pool *pgxpool.Pool) *Table[catalog.Category] {
	return newTable[catalog.Category](pool, "categories", catalog.ErrCategoryNotFound)
}

func NewSubcategoryTable(pool *pgxpool.Pool) *Table[catalog.Subcategory] {
	return newTable[catalog.Subcategory](pool, "subcategories", catalog.ErrSubcategoryNotFound)
}

func NewBrandTable(pool *pgxpool.Pool) *Table[catalog.Brand] {
	return newTable[catalog.Brand](pool, "brands", catalog.ErrBrandNotFound)
}

// ProductRepository stores products. Stock counters are only changed by
// order placement.
type ProductRepository struct {
	*Table[catalog.Product]
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{Table: newTable[catalog.Product](pool, "products", catalog.ErrProductNotFound)}
}

// GetByID returns a single product.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	return r.Get(ctx, id)
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	cols, _ := r.schema.selectList(nil)
	rows, err := r.pool.Query(ctx, "SELECT "+cols+" FROM products WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, translate(err, "get products by ids")
	}
	products, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[catalog.Product])
	if err != nil {
		return nil, translate(err, "scan products")
	}
	return products, nil
}
