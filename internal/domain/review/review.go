// Package review holds product reviews and keeps the rating aggregate on the
// reviewed product in step with them.
package review

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/eshop/internal/apperr"
	"github.com/xenking/eshop/internal/domain/auth"
)

var (
	ErrNotFound        = apperr.NotFound("review not found")
	ErrProductNotFound = apperr.NotFound("product not found")
	ErrNotOwner        = apperr.Forbidden("You are not allowed to change this review.")
	ErrAlreadyReviewed = apperr.Invalid("You already created a review on this product.")
)

type Review struct {
	ID        string    `json:"id" db:"id"`
	Text      string    `json:"text" db:"text"`
	Ratings   float64   `json:"ratings" db:"ratings"`
	UserID    string    `json:"user" db:"user_id"`
	ProductID string    `json:"product" db:"product_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type Input struct {
	Text    string  `json:"text" binding:"max=2000"`
	Ratings float64 `json:"ratings" binding:"required,min=1,max=5"`
}

type Patch struct {
	Text    *string  `json:"text" binding:"omitempty,max=2000"`
	Ratings *float64 `json:"ratings" binding:"omitempty,min=1,max=5"`
}

// Aggregate is the rating summary stored on a product.
type Aggregate struct {
	Average  float64
	Quantity int
}

// Tx is the set of operations available inside one store transaction.
type Tx interface {
	ProductExists(ctx context.Context, productID string) (bool, error)
	Create(ctx context.Context, r *Review) error
	Get(ctx context.Context, id string) (*Review, error)
	Update(ctx context.Context, id string, p Patch) (*Review, error)
	Delete(ctx context.Context, id string) error
	Ratings(ctx context.Context, productID string) ([]float64, error)
	SetProductRatings(ctx context.Context, productID string, agg Aggregate) error
}

// Store runs fn in a transaction: committed when fn returns nil, rolled
// back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Compute returns the arithmetic mean and count of ratings. No ratings
// yields a zero aggregate.
func Compute(ratings []float64) Aggregate {
	if len(ratings) == 0 {
		return Aggregate{}
	}
	var sum float64
	for _, r := range ratings {
		sum += r
	}
	return Aggregate{Average: sum / float64(len(ratings)), Quantity: len(ratings)}
}

// Service mutates reviews and recomputes the product aggregate in the same
// transaction.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create adds the caller's review of a product.
func (s *Service) Create(ctx context.Context, id auth.Identity, productID string, in Input) (*Review, error) {
	r := &Review{
		ID:        uuid.New().String(),
		Text:      in.Text,
		Ratings:   in.Ratings,
		UserID:    id.UserID,
		ProductID: productID,
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		ok, err := tx.ProductExists(ctx, productID)
		if err != nil {
			return errors.Wrap(err, "check product")
		}
		if !ok {
			return ErrProductNotFound
		}
		if err := tx.Create(ctx, r); err != nil {
			return errors.Wrap(err, "create review")
		}
		return recompute(ctx, tx, productID)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Update changes a review. Only its author may do so.
func (s *Service) Update(ctx context.Context, id auth.Identity, reviewID string, p Patch) (*Review, error) {
	var updated *Review
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.Get(ctx, reviewID)
		if err != nil {
			return err
		}
		if r.UserID != id.UserID {
			return ErrNotOwner
		}
		if updated, err = tx.Update(ctx, reviewID, p); err != nil {
			return errors.Wrap(err, "update review")
		}
		return recompute(ctx, tx, r.ProductID)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a review. Authors may delete their own; staff may delete any.
func (s *Service) Delete(ctx context.Context, id auth.Identity, reviewID string) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.Get(ctx, reviewID)
		if err != nil {
			return err
		}
		if r.UserID != id.UserID && !auth.IsStaff(id) {
			return ErrNotOwner
		}
		if err := tx.Delete(ctx, reviewID); err != nil {
			return errors.Wrap(err, "delete review")
		}
		return recompute(ctx, tx, r.ProductID)
	})
}

func recompute(ctx context.Context, tx Tx, productID string) error {
	ratings, err := tx.Ratings(ctx, productID)
	if err != nil {
		return errors.Wrap(err, "load ratings")
	}
	if err := tx.SetProductRatings(ctx, productID, Compute(ratings)); err != nil {
		return errors.Wrap(err, "store ratings aggregate")
	}
	return nil
}
