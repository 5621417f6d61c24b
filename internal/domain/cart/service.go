package cart

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/eshop/internal/apperr"
	"github.com/xenking/eshop/internal/domain/catalog"
	"github.com/xenking/eshop/internal/domain/coupon"
)

// Products resolves products added to a cart.
type Products interface {
	GetByID(ctx context.Context, id string) (*catalog.Product, error)
}

type AddItemInput struct {
	ProductID string `json:"productId" binding:"required,uuid"`
	Color     string `json:"color" binding:"omitempty,max=32"`
}

// MaxItemQuantity bounds the quantity of one cart line.
const MaxItemQuantity = 10_000

type UpdateQuantityInput struct {
	Quantity int `json:"quantity" binding:"required,gt=0,max=10000"`
}

type ApplyCouponInput struct {
	Coupon string `json:"coupon" binding:"required"`
}

// Service implements the cart operations of the logged-in user.
type Service struct {
	carts    Repository
	products Products
	coupons  coupon.Validator
}

func NewService(carts Repository, products Products, coupons coupon.Validator) *Service {
	return &Service{carts: carts, products: products, coupons: coupons}
}

// AddItem adds one unit of a product to the user's cart, creating the cart
// on first use.
func (s *Service) AddItem(ctx context.Context, userID string, in AddItemInput) (*Cart, error) {
	p, err := s.products.GetByID(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if in.Color != "" && len(p.Colors) > 0 && !slices.Contains(p.Colors, in.Color) {
		return nil, apperr.Invalid("color %q is not available for this product", in.Color)
	}

	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get or create cart")
	}
	c.AddProduct(p.ID, in.Color, p.Price)
	for _, it := range c.Items {
		if it.Quantity > MaxItemQuantity {
			return nil, apperr.Invalid("quantity must be between 1 and %d", MaxItemQuantity)
		}
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// Get returns the user's cart.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	return s.carts.FindByUser(ctx, userID)
}

// RemoveItem removes a line from the user's cart.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*Cart, error) {
	c, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !c.RemoveItem(itemID) {
		return nil, ErrItemNotFound
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// UpdateItemQuantity sets the quantity of a line in the user's cart.
func (s *Service) UpdateItemQuantity(ctx context.Context, userID, itemID string, in UpdateQuantityInput) (*Cart, error) {
	if in.Quantity < 1 || in.Quantity > MaxItemQuantity {
		return nil, apperr.Invalid("quantity must be between 1 and %d", MaxItemQuantity)
	}
	c, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !c.SetQuantity(itemID, in.Quantity) {
		return nil, ErrItemNotFound
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// Clear deletes the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.carts.DeleteByUser(ctx, userID)
}

// ApplyCoupon sets the discounted total from an active coupon. An unknown or
// expired coupon leaves the cart untouched.
func (s *Service) ApplyCoupon(ctx context.Context, userID string, in ApplyCouponInput) (*Cart, error) {
	c, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	d, err := s.coupons.Validate(ctx, in.Coupon, c.TotalCartPrice)
	if err != nil {
		return nil, err
	}
	total := d.Total
	c.TotalPriceAfterDiscount = &total
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}
