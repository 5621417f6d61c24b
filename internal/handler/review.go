package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xenking/eshop/internal/domain/review"
	"github.com/xenking/eshop/internal/domain/user"
)

// reviewBody creates a review outside the nested product route.
type reviewBody struct {
	review.Input
	ProductID string `json:"product" binding:"required,uuid"`
}

func (h *Handler) reviewResource() resource[review.Review] {
	return resource[review.Review]{store: h.stores.Reviews, search: []string{"text"}}
}

func (h *Handler) mountReviews(v1 *gin.RouterGroup) {
	r := h.reviewResource()
	g := v1.Group("/reviews")
	g.GET("", getAll(r, nil))
	g.GET("/:id", getOne(r))
	g.POST("", h.protect, allowedTo(user.RoleUser), h.createReview(""))
	g.PUT("/:id", h.protect, allowedTo(user.RoleUser), h.updateReview)
	g.DELETE("/:id", h.protect, allowedTo(user.RoleUser, user.RoleManager, user.RoleAdmin), h.deleteReview)
}

// createReview reads the product from the named path parameter, or from the
// body when param is empty.
func (h *Handler) createReview(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			productID string
			in        review.Input
		)
		if param != "" {
			id, ok := idParam(c, param)
			if !ok || !bindJSON(c, &in) {
				return
			}
			productID = id
		} else {
			var body reviewBody
			if !bindJSON(c, &body) {
				return
			}
			productID, in = body.ProductID, body.Input
		}

		rv, err := h.services.Reviews.Create(c.Request.Context(), identity(c), productID, in)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": rv})
	}
}

func (h *Handler) updateReview(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var p review.Patch
	if !bindJSON(c, &p) {
		return
	}
	rv, err := h.services.Reviews.Update(c.Request.Context(), identity(c), id, p)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": success, "data": rv})
}

func (h *Handler) deleteReview(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.services.Reviews.Delete(c.Request.Context(), identity(c), id); err != nil {
		abort(c, err)
		return
	}
	noContent(c)
}
