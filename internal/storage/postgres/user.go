package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eshop/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository stores accounts with their wishlist and address book.
type UserRepository struct {
	*Table[user.User]
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{Table: newTable[user.User](pool, "users", user.ErrNotFound)}
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	return r.Insert(ctx, u)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.Get(ctx, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.selectOne(ctx, "email = $1", email)
}

// GetByResetCode returns the user holding an unexpired reset code.
func (r *UserRepository) GetByResetCode(ctx context.Context, codeHash string, now time.Time) (*user.User, error) {
	return r.selectOne(ctx, "reset_code_hash = $1 AND reset_expires_at > $2", codeHash, now)
}

func (r *UserRepository) selectOne(ctx context.Context, cond string, args ...any) (*user.User, error) {
	cols, _ := r.schema.selectList(nil)
	return r.one(ctx, r.pool, "SELECT "+cols+" FROM users WHERE "+cond, args...)
}

// Update applies the non-nil fields of p.
func (r *UserRepository) Update(ctx context.Context, id string, p user.Patch) (*user.User, error) {
	return r.Modify(ctx, id, func(u *user.User) error {
		if p.Name != nil {
			u.Name = *p.Name
		}
		if p.Slug != nil {
			u.Slug = *p.Slug
		}
		if p.Email != nil {
			u.Email = *p.Email
		}
		if p.Phone != nil {
			u.Phone = *p.Phone
		}
		if p.ProfileImage != nil {
			u.ProfileImage = *p.ProfileImage
		}
		if p.Role != nil {
			u.Role = *p.Role
		}
		if p.Active != nil {
			u.Active = *p.Active
		}
		return nil
	})
}

func (r *UserRepository) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return translate(err, op)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetPassword(ctx context.Context, id, hash string, changedAt time.Time) error {
	return r.exec(ctx, "set password", `UPDATE users SET password_hash = $2, password_changed_at = $3,
		reset_code_hash = NULL, reset_expires_at = NULL, reset_verified = false,
		version = version + 1, updated_at = now() WHERE id = $1`, id, hash, changedAt)
}

func (r *UserRepository) SetResetCode(ctx context.Context, id string, codeHash *string, expiresAt *time.Time, verified bool) error {
	return r.exec(ctx, "set reset code", `UPDATE users SET reset_code_hash = $2, reset_expires_at = $3,
		reset_verified = $4, updated_at = now() WHERE id = $1`, id, codeHash, expiresAt, verified)
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.exec(ctx, "set active", `UPDATE users SET active = $2, updated_at = now() WHERE id = $1`, id, active)
}

// AddToWishlist adds a product once and returns the resulting wishlist.
func (r *UserRepository) AddToWishlist(ctx context.Context, id, productID string) ([]string, error) {
	return r.wishlist(ctx, `UPDATE users SET wishlist = CASE WHEN $2 = ANY(wishlist) THEN wishlist
		ELSE array_append(wishlist, $2) END, updated_at = now() WHERE id = $1 RETURNING wishlist`, id, productID)
}

func (r *UserRepository) RemoveFromWishlist(ctx context.Context, id, productID string) ([]string, error) {
	return r.wishlist(ctx, `UPDATE users SET wishlist = array_remove(wishlist, $2), updated_at = now()
		WHERE id = $1 RETURNING wishlist`, id, productID)
}

func (r *UserRepository) wishlist(ctx context.Context, sql, id, productID string) ([]string, error) {
	var list []string
	if err := r.pool.QueryRow(ctx, sql, id, productID).Scan(&list); err != nil {
		return nil, r.scanErr(err, "update wishlist")
	}
	return list, nil
}

// AddAddress appends an address to the address book.
func (r *UserRepository) AddAddress(ctx context.Context, id string, a user.Address) ([]user.Address, error) {
	var list []user.Address
	err := r.pool.QueryRow(ctx, `UPDATE users SET addresses = addresses || jsonb_build_array($2::jsonb),
		updated_at = now() WHERE id = $1 RETURNING addresses`, id, a).Scan(&list)
	if err != nil {
		return nil, r.scanErr(err, "add address")
	}
	return list, nil
}

// RemoveAddress drops the address with addressID; user.ErrAddressNotFound
// when the address book has no such entry.
func (r *UserRepository) RemoveAddress(ctx context.Context, id, addressID string) ([]user.Address, error) {
	var out []user.Address
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var list []user.Address
		if err := tx.QueryRow(ctx, `SELECT addresses FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&list); err != nil {
			return r.scanErr(err, "load addresses")
		}
		out = make([]user.Address, 0, len(list))
		for _, a := range list {
			if a.ID != addressID {
				out = append(out, a)
			}
		}
		if len(out) == len(list) {
			return user.ErrAddressNotFound
		}
		_, err := tx.Exec(ctx, `UPDATE users SET addresses = $2, updated_at = now() WHERE id = $1`, id, out)
		return translate(err, "store addresses")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
