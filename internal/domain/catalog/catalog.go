// Package catalog holds categories, subcategories, brands and products.
package catalog

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/apperr"
)

// MaxPrice is the highest accepted product price.
var MaxPrice = decimal.NewFromInt(200000)

var (
	ErrCategoryNotFound    = apperr.NotFound("No category found for this id.")
	ErrSubcategoryNotFound = apperr.NotFound("No subcategory found for this id.")
	ErrSubcategoryParent   = apperr.Invalid("Subcategory must belong to a category.")
	ErrBrandNotFound       = apperr.NotFound("No brand found for this id.")
	ErrProductNotFound     = apperr.NotFound("No product found for this id.")
	ErrPriceAfterDiscount  = apperr.Invalid("priceAfterDiscount must be lower than price")
	ErrPriceTooHigh        = apperr.Invalid("price must not exceed %s", MaxPrice.String())
)

type Category struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	Image     string    `json:"image" db:"image"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type CategoryInput struct {
	Name  string `json:"name" binding:"required,min=3,max=32"`
	Image string `json:"image" binding:"omitempty,max=512"`
}

type CategoryPatch struct {
	Name  *string `json:"name" binding:"omitempty,min=3,max=32"`
	Image *string `json:"image" binding:"omitempty,max=512"`
}

type Subcategory struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Slug       string    `json:"slug" db:"slug"`
	CategoryID string    `json:"category" db:"category_id"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

// SubcategoryInput creates a subcategory. CategoryID may come from the
// parent route instead of the body.
type SubcategoryInput struct {
	Name       string `json:"name" binding:"required,min=2,max=32"`
	CategoryID string `json:"category" binding:"omitempty,uuid"`
}

type SubcategoryPatch struct {
	Name       *string `json:"name" binding:"omitempty,min=2,max=32"`
	CategoryID *string `json:"category" binding:"omitempty,uuid"`
}

type Brand struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	Image     string    `json:"image" db:"image"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type BrandInput struct {
	Name  string `json:"name" binding:"required,min=2,max=32"`
	Image string `json:"image" binding:"omitempty,max=512"`
}

type BrandPatch struct {
	Name  *string `json:"name" binding:"omitempty,min=2,max=32"`
	Image *string `json:"image" binding:"omitempty,max=512"`
}

// Product is a sellable item. Quantity and Sold are only changed by order
// placement.
type Product struct {
	ID                 string           `json:"id" db:"id"`
	Title              string           `json:"title" db:"title"`
	Slug               string           `json:"slug" db:"slug"`
	Description        string           `json:"description" db:"description"`
	Quantity           int              `json:"quantity" db:"quantity"`
	Sold               int              `json:"sold" db:"sold"`
	Price              decimal.Decimal  `json:"price" db:"price"`
	PriceAfterDiscount *decimal.Decimal `json:"priceAfterDiscount,omitempty" db:"price_after_discount"`
	Colors             []string         `json:"colors" db:"colors"`
	ImageCover         string           `json:"imageCover" db:"image_cover"`
	Images             []string         `json:"images" db:"images"`
	CategoryID         string           `json:"category" db:"category_id"`
	SubcategoryIDs     []string         `json:"subcategories" db:"subcategory_ids"`
	BrandID            *string          `json:"brand,omitempty" db:"brand_id"`
	RatingsAverage     float64          `json:"ratingsAverage" db:"ratings_average"`
	RatingsQuantity    int              `json:"ratingsQuantity" db:"ratings_quantity"`
	CreatedAt          time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time        `json:"updatedAt" db:"updated_at"`
}

type ProductInput struct {
	Title              string           `json:"title" binding:"required,min=3,max=100"`
	Description        string           `json:"description" binding:"required,min=20,max=2000"`
	Quantity           int              `json:"quantity" binding:"gte=0"`
	Price              decimal.Decimal  `json:"price" binding:"required"`
	PriceAfterDiscount *decimal.Decimal `json:"priceAfterDiscount"`
	Colors             []string         `json:"colors" binding:"omitempty,dive,min=1"`
	ImageCover         string           `json:"imageCover" binding:"required"`
	Images             []string         `json:"images"`
	CategoryID         string           `json:"category" binding:"required,uuid"`
	SubcategoryIDs     []string         `json:"subcategories" binding:"omitempty,dive,uuid"`
	BrandID            *string          `json:"brand" binding:"omitempty,uuid"`
}

type ProductPatch struct {
	Title              *string          `json:"title" binding:"omitempty,min=3,max=100"`
	Description        *string          `json:"description" binding:"omitempty,min=20,max=2000"`
	Price              *decimal.Decimal `json:"price"`
	PriceAfterDiscount *decimal.Decimal `json:"priceAfterDiscount"`
	Colors             []string         `json:"colors" binding:"omitempty,dive,min=1"`
	ImageCover         *string          `json:"imageCover"`
	Images             []string         `json:"images"`
	CategoryID         *string          `json:"category" binding:"omitempty,uuid"`
	SubcategoryIDs     []string         `json:"subcategories" binding:"omitempty,dive,uuid"`
	BrandID            *string          `json:"brand" binding:"omitempty,uuid"`
}

// Slug derives the URL slug of a name or title.
func Slug(s string) string {
	return slug.Make(strings.TrimSpace(s))
}

// ValidatePricing checks price bounds and the discounted price relation.
func ValidatePricing(price decimal.Decimal, after *decimal.Decimal) error {
	if price.IsNegative() {
		return apperr.Invalid("price must not be negative")
	}
	if price.GreaterThan(MaxPrice) {
		return ErrPriceTooHigh
	}
	if after != nil && !after.LessThan(price) {
		return ErrPriceAfterDiscount
	}
	return nil
}

// Validate checks the constraints that struct tags cannot express.
func (in ProductInput) Validate() error {
	return ValidatePricing(in.Price, in.PriceAfterDiscount)
}

// WithImageBase returns image paths prefixed with base. Absolute URLs and an
// empty base are left untouched.
func WithImageBase(base, path string) string {
	if base == "" || path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// ResolveImages rewrites the product image paths against base.
func (p *Product) ResolveImages(base string) {
	p.ImageCover = WithImageBase(base, p.ImageCover)
	for i, img := range p.Images {
		p.Images[i] = WithImageBase(base, img)
	}
}
