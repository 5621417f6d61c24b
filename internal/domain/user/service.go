package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/xenking/eshop/internal/apperr"
	"github.com/xenking/eshop/internal/domain/catalog"
)

// Products resolves wishlist entries against the catalog.
type Products interface {
	GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error)
}

// SetPasswordInput is used by staff to replace a password without knowing
// the current one.
type SetPasswordInput struct {
	Password        string `json:"password" binding:"required,min=6"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required"`
}

// ProfileInput is the subset of Patch a user may change on their own account.
type ProfileInput struct {
	Name  *string `json:"name" binding:"omitempty,min=3,max=64"`
	Email *string `json:"email" binding:"omitempty,email"`
	Phone *string `json:"phone" binding:"omitempty,e164"`
}

// Service manages accounts on behalf of staff and of the account owner.
type Service struct {
	repo     Repository
	products Products
	now      func() time.Time
}

func NewService(repo Repository, products Products) *Service {
	return &Service{repo: repo, products: products, now: time.Now}
}

// New builds an account from input with a hashed password. Role defaults to
// user.
func New(in CreateInput) (*User, error) {
	if in.Password != in.PasswordConfirm {
		return nil, ErrPasswordMismatch
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, apperr.Invalid("unknown role %q", role)
	}
	return &User{
		ID:           uuid.New().String(),
		Name:         in.Name,
		Slug:         slug.Make(in.Name),
		Email:        NormalizeEmail(in.Email),
		Phone:        in.Phone,
		ProfileImage: in.ProfileImage,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		Wishlist:     []string{},
		Addresses:    []Address{},
	}, nil
}

// Create stores a new account.
func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	u, err := New(in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// Update applies a staff patch. The slug follows the name.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*User, error) {
	if p.Name != nil {
		sl := slug.Make(*p.Name)
		p.Slug = &sl
	}
	if p.Email != nil {
		email := NormalizeEmail(*p.Email)
		p.Email = &email
	}
	if p.Role != nil && !p.Role.Valid() {
		return nil, apperr.Invalid("unknown role %q", *p.Role)
	}
	return s.repo.Update(ctx, id, p)
}

// UpdateProfile applies the owner's own profile changes.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*User, error) {
	return s.Update(ctx, id, Patch{Name: in.Name, Email: in.Email, Phone: in.Phone})
}

// SetPassword replaces the password of any account.
func (s *Service) SetPassword(ctx context.Context, id string, in SetPasswordInput) (*User, error) {
	if in.Password != in.PasswordConfirm {
		return nil, ErrPasswordMismatch
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetPassword(ctx, id, hash, s.now()); err != nil {
		return nil, errors.Wrap(err, "set password")
	}
	return s.repo.GetByID(ctx, id)
}

// ChangePassword replaces the owner's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id string, in ChangePasswordInput) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, in.CurrentPassword) {
		return nil, ErrWrongPassword
	}
	return s.SetPassword(ctx, id, SetPasswordInput{Password: in.Password, PasswordConfirm: in.PasswordConfirm})
}

// Deactivate marks the account inactive. The record is kept.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.repo.SetActive(ctx, id, false)
}

// AddToWishlist adds a product once; repeated adds are no-ops.
func (s *Service) AddToWishlist(ctx context.Context, id, productID string) ([]string, error) {
	found, err := s.products.GetByIDs(ctx, []string{productID})
	if err != nil {
		return nil, errors.Wrap(err, "lookup product")
	}
	if len(found) == 0 {
		return nil, apperr.NotFound("No product for this id %s", productID)
	}
	return s.repo.AddToWishlist(ctx, id, productID)
}

func (s *Service) RemoveFromWishlist(ctx context.Context, id, productID string) ([]string, error) {
	return s.repo.RemoveFromWishlist(ctx, id, productID)
}

// Wishlist returns the wishlisted products.
func (s *Service) Wishlist(ctx context.Context, id string) ([]catalog.Product, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(u.Wishlist) == 0 {
		return []catalog.Product{}, nil
	}
	return s.products.GetByIDs(ctx, u.Wishlist)
}

func (s *Service) AddAddress(ctx context.Context, id string, in AddressInput) ([]Address, error) {
	return s.repo.AddAddress(ctx, id, Address{
		ID:         uuid.New().String(),
		Alias:      in.Alias,
		Details:    in.Details,
		Phone:      in.Phone,
		City:       in.City,
		PostalCode: in.PostalCode,
	})
}

func (s *Service) RemoveAddress(ctx context.Context, id, addressID string) ([]Address, error) {
	return s.repo.RemoveAddress(ctx, id, addressID)
}

func (s *Service) Addresses(ctx context.Context, id string) ([]Address, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Addresses, nil
}
