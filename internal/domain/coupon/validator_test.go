package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	coupon   *Coupon
	err      error
	lastName string
}

func (m *mockCouponRepo) FindActive(_ context.Context, name string, _ time.Time) (*Coupon, error) {
	m.lastName = name
	return m.coupon, m.err
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		repo      *mockCouponRepo
		code      string
		total     decimal.Decimal
		wantTotal decimal.Decimal
		wantErr   error
	}{
		{
			name: "active coupon discounts total",
			repo: &mockCouponRepo{coupon: &Coupon{
				Name:     "SAVE10",
				Discount: decimal.NewFromInt(10),
				Expire:   fixedNow.Add(24 * time.Hour),
			}},
			code:      "save10",
			total:     decimal.NewFromInt(250),
			wantTotal: decimal.NewFromInt(225),
		},
		{
			name:    "unknown name",
			repo:    &mockCouponRepo{err: ErrInvalidOrExpired},
			code:    "BOGUS",
			total:   decimal.NewFromInt(50),
			wantErr: ErrInvalidOrExpired,
		},
		{
			name: "expired coupon",
			repo: &mockCouponRepo{coupon: &Coupon{
				Name:     "OLD",
				Discount: decimal.NewFromInt(50),
				Expire:   fixedNow.Add(-time.Second),
			}},
			code:    "OLD",
			total:   decimal.NewFromInt(50),
			wantErr: ErrInvalidOrExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			d, err := v.Validate(context.Background(), tt.code, tt.total)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.wantTotal.Equal(d.Total), "got %s", d.Total)
			assert.Equal(t, NormalizeName(tt.code), tt.repo.lastName)
		})
	}
}

func TestRepoValidator_StoreError(t *testing.T) {
	v := NewRepoValidator(&mockCouponRepo{err: errors.New("connection reset")})

	_, err := v.Validate(context.Background(), "X", decimal.NewFromInt(1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidOrExpired)
	assert.Contains(t, err.Error(), "lookup coupon")
}
