package catalog

import (
	"github.com/google/uuid"
)

func NewCategory(in CategoryInput) *Category {
	return &Category{ID: uuid.New().String(), Name: in.Name, Slug: Slug(in.Name), Image: in.Image}
}

func (p CategoryPatch) Apply(c *Category) error {
	if p.Name != nil {
		c.Name, c.Slug = *p.Name, Slug(*p.Name)
	}
	if p.Image != nil {
		c.Image = *p.Image
	}
	return nil
}

// NewSubcategory requires the parent category.
func NewSubcategory(in SubcategoryInput) (*Subcategory, error) {
	if in.CategoryID == "" {
		return nil, ErrSubcategoryParent
	}
	return &Subcategory{ID: uuid.New().String(), Name: in.Name, Slug: Slug(in.Name), CategoryID: in.CategoryID}, nil
}

func (p SubcategoryPatch) Apply(s *Subcategory) error {
	if p.Name != nil {
		s.Name, s.Slug = *p.Name, Slug(*p.Name)
	}
	if p.CategoryID != nil {
		s.CategoryID = *p.CategoryID
	}
	return nil
}

func NewBrand(in BrandInput) *Brand {
	return &Brand{ID: uuid.New().String(), Name: in.Name, Slug: Slug(in.Name), Image: in.Image}
}

func (p BrandPatch) Apply(b *Brand) error {
	if p.Name != nil {
		b.Name, b.Slug = *p.Name, Slug(*p.Name)
	}
	if p.Image != nil {
		b.Image = *p.Image
	}
	return nil
}

// NewProduct builds a product with zero sales from validated input.
func NewProduct(in ProductInput) (*Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &Product{
		ID:                 uuid.New().String(),
		Title:              in.Title,
		Slug:               Slug(in.Title),
		Description:        in.Description,
		Quantity:           in.Quantity,
		Price:              in.Price,
		PriceAfterDiscount: in.PriceAfterDiscount,
		Colors:             in.Colors,
		ImageCover:         in.ImageCover,
		Images:             in.Images,
		CategoryID:         in.CategoryID,
		SubcategoryIDs:     in.SubcategoryIDs,
		BrandID:            in.BrandID,
	}, nil
}

// Apply writes the set fields of the patch to p and checks the resulting
// pricing. Stock and sales counters are not part of a patch.
func (pt ProductPatch) Apply(p *Product) error {
	if pt.Title != nil {
		p.Title, p.Slug = *pt.Title, Slug(*pt.Title)
	}
	if pt.Description != nil {
		p.Description = *pt.Description
	}
	if pt.Price != nil {
		p.Price = *pt.Price
	}
	if pt.PriceAfterDiscount != nil {
		p.PriceAfterDiscount = pt.PriceAfterDiscount
	}
	if pt.Colors != nil {
		p.Colors = pt.Colors
	}
	if pt.ImageCover != nil {
		p.ImageCover = *pt.ImageCover
	}
	if pt.Images != nil {
		p.Images = pt.Images
	}
	if pt.CategoryID != nil {
		p.CategoryID = *pt.CategoryID
	}
	if pt.SubcategoryIDs != nil {
		p.SubcategoryIDs = pt.SubcategoryIDs
	}
	if pt.BrandID != nil {
		p.BrandID = pt.BrandID
	}
	return ValidatePricing(p.Price, p.PriceAfterDiscount)
}
