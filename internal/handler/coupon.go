package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xenking/eshop/internal/domain/coupon"
)

func (h *Handler) mountCoupons(g *gin.RouterGroup) {
	g.Use(h.protect, allowedTo(staff...))
	r := resource[coupon.Coupon]{store: h.stores.Coupons, search: []string{"name"}}
	g.GET("", getAll(r, nil))
	g.POST("", createOne(r, buildChecked(coupon.New)))
	g.GET("/:id", getOne(r))
	g.PUT("/:id", updateOne(r, coupon.Patch.Apply))
	g.DELETE("/:id", deleteOne(r))
}
