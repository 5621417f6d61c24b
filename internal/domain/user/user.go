// Package user holds customer and staff accounts together with their
// wishlists and address books.
package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/eshop/internal/apperr"
)

// Role grants capabilities to an account.
type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// PasswordCost is the bcrypt work factor for stored passwords.
const PasswordCost = 12

var (
	ErrNotFound         = apperr.NotFound("user not found")
	ErrAddressNotFound  = apperr.NotFound("address not found")
	ErrPasswordMismatch = apperr.Invalid("password confirmation does not match")
	ErrWrongPassword    = apperr.Invalid("current password is incorrect")
)

type Address struct {
	ID         string `json:"id"`
	Alias      string `json:"alias"`
	Details    string `json:"details"`
	Phone      string `json:"phone"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
}

type User struct {
	ID                string     `json:"id" db:"id"`
	Name              string     `json:"name" db:"name"`
	Slug              string     `json:"slug" db:"slug"`
	Email             string     `json:"email" db:"email"`
	Phone             string     `json:"phone" db:"phone"`
	ProfileImage      string     `json:"profileImage" db:"profile_image"`
	PasswordHash      string     `json:"-" db:"password_hash"`
	PasswordChangedAt *time.Time `json:"passwordChangedAt,omitempty" db:"password_changed_at"`
	ResetCodeHash     *string    `json:"-" db:"reset_code_hash"`
	ResetExpiresAt    *time.Time `json:"-" db:"reset_expires_at"`
	ResetVerified     bool       `json:"-" db:"reset_verified"`
	Role              Role       `json:"role" db:"role"`
	Active            bool       `json:"active" db:"active"`
	Wishlist          []string   `json:"wishlist" db:"wishlist"`
	Addresses         []Address  `json:"addresses" db:"addresses"`
	CreatedAt         time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time  `json:"updatedAt" db:"updated_at"`
}

// CreateInput creates an account. Role is only honoured for staff callers.
type CreateInput struct {
	Name            string `json:"name" binding:"required,min=3,max=64"`
	Email           string `json:"email" binding:"required,email"`
	Phone           string `json:"phone" binding:"omitempty,e164"`
	ProfileImage    string `json:"profileImage"`
	Password        string `json:"password" binding:"required,min=6"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required"`
	Role            Role   `json:"role" binding:"omitempty,oneof=user manager admin"`
}

// Patch updates profile data. Nil fields are left unchanged.
type Patch struct {
	Name         *string `json:"name" binding:"omitempty,min=3,max=64"`
	Email        *string `json:"email" binding:"omitempty,email"`
	Phone        *string `json:"phone" binding:"omitempty,e164"`
	ProfileImage *string `json:"profileImage"`
	Role         *Role   `json:"role" binding:"omitempty,oneof=user manager admin"`
	Active       *bool   `json:"active"`
	// Slug is derived from Name.
	Slug *string `json:"-"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	Password        string `json:"password" binding:"required,min=6"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required"`
}

type AddressInput struct {
	Alias      string `json:"alias" binding:"required"`
	Details    string `json:"details" binding:"required"`
	Phone      string `json:"phone" binding:"omitempty,e164"`
	City       string `json:"city" binding:"required"`
	PostalCode string `json:"postalCode" binding:"omitempty,max=16"`
}

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByResetCode(ctx context.Context, codeHash string, now time.Time) (*User, error)
	Update(ctx context.Context, id string, p Patch) (*User, error)
	SetPassword(ctx context.Context, id, hash string, changedAt time.Time) error
	SetResetCode(ctx context.Context, id string, codeHash *string, expiresAt *time.Time, verified bool) error
	SetActive(ctx context.Context, id string, active bool) error
	AddToWishlist(ctx context.Context, id, productID string) ([]string, error)
	RemoveFromWishlist(ctx context.Context, id, productID string) ([]string, error)
	AddAddress(ctx context.Context, id string, a Address) ([]Address, error)
	RemoveAddress(ctx context.Context, id, addressID string) ([]Address, error)
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword hashes a plain password for storage.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(h), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ChangedPasswordAfter reports whether the password was changed after t.
// Both sides are compared at second precision, like token timestamps.
func (u *User) ChangedPasswordAfter(t time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() > t.Unix()
}
