package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xenking/eshop/internal/domain/catalog"
	"github.com/xenking/eshop/internal/domain/user"
)

func (h *Handler) mountCategories(v1 *gin.RouterGroup) {
	r := resource[catalog.Category]{store: h.stores.Categories, search: []string{"name"}, present: h.presentCategory}
	g := v1.Group("/categories")
	g.GET("", getAll(r, nil))
	g.GET("/:id", getOne(r))
	g.POST("", h.protect, allowedTo(staff...), createOne(r, build(catalog.NewCategory)))
	g.PUT("/:id", h.protect, allowedTo(staff...), updateOne(r, catalog.CategoryPatch.Apply))
	g.DELETE("/:id", h.protect, allowedTo(user.RoleAdmin), deleteOne(r))

	sub := resource[catalog.Subcategory]{store: h.stores.Subcategories, search: []string{"name"}}
	g.GET("/:id/subcategories", getAll(sub, paramScope("category", "id")))
	g.POST("/:id/subcategories", h.protect, allowedTo(staff...), createOne(sub, nestedSubcategory))
}

// nestedSubcategory takes the parent category from the route unless the
// body names one.
func nestedSubcategory(c *gin.Context, in catalog.SubcategoryInput) (*catalog.Subcategory, error) {
	if in.CategoryID == "" {
		in.CategoryID = c.Param("id")
	}
	return catalog.NewSubcategory(in)
}

func (h *Handler) mountSubcategories(v1 *gin.RouterGroup) {
	r := resource[catalog.Subcategory]{store: h.stores.Subcategories, search: []string{"name"}}
	g := v1.Group("/subcategories")
	g.GET("", getAll(r, nil))
	g.GET("/:id", getOne(r))
	g.POST("", h.protect, allowedTo(staff...), createOne(r, buildChecked(catalog.NewSubcategory)))
	g.PUT("/:id", h.protect, allowedTo(staff...), updateOne(r, catalog.SubcategoryPatch.Apply))
	g.DELETE("/:id", h.protect, allowedTo(user.RoleAdmin), deleteOne(r))
}

func (h *Handler) mountBrands(v1 *gin.RouterGroup) {
	r := resource[catalog.Brand]{store: h.stores.Brands, search: []string{"name"}, present: h.presentBrand}
	g := v1.Group("/brands")
	g.GET("", getAll(r, nil))
	g.GET("/:id", getOne(r))
	g.POST("", h.protect, allowedTo(staff...), createOne(r, build(catalog.NewBrand)))
	g.PUT("/:id", h.protect, allowedTo(staff...), updateOne(r, catalog.BrandPatch.Apply))
	g.DELETE("/:id", h.protect, allowedTo(user.RoleAdmin), deleteOne(r))
}

func (h *Handler) mountProducts(v1 *gin.RouterGroup) {
	r := resource[catalog.Product]{
		store:   h.stores.Products,
		search:  []string{"title", "description"},
		present: h.presentProduct,
	}
	g := v1.Group("/products")
	g.GET("", getAll(r, nil))
	g.GET("/:id", getOne(r))
	g.POST("", h.protect, allowedTo(staff...), createOne(r, buildChecked(catalog.NewProduct)))
	g.PUT("/:id", h.protect, allowedTo(staff...), updateOne(r, catalog.ProductPatch.Apply))
	g.DELETE("/:id", h.protect, allowedTo(user.RoleAdmin), deleteOne(r))

	g.GET("/:id/reviews", getAll(h.reviewResource(), paramScope("product", "id")))
	g.POST("/:id/reviews", h.protect, allowedTo(user.RoleUser), h.createReview("id"))
}
