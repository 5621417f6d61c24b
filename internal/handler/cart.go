package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xenking/eshop/internal/domain/cart"
	"github.com/xenking/eshop/internal/domain/user"
)

func (h *Handler) mountCart(g *gin.RouterGroup) {
	g.Use(h.protect, allowedTo(user.RoleUser))
	g.POST("", h.addToCart)
	g.GET("", h.getCart)
	g.DELETE("", h.clearCart)
	g.PUT("/applyCoupon", h.applyCoupon)
	g.PUT("/:itemId", h.updateCartItem)
	g.DELETE("/:itemId", h.removeCartItem)
}

func renderCart(c *gin.Context, message string, ct *cart.Cart) {
	body := gin.H{"status": success, "numberOfCartItems": ct.NumberOfItems(), "data": ct}
	if message != "" {
		body["message"] = message
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) addToCart(c *gin.Context) {
	var in cart.AddItemInput
	if !bindJSON(c, &in) {
		return
	}
	ct, err := h.services.Carts.AddItem(c.Request.Context(), identity(c).UserID, in)
	if err != nil {
		abort(c, err)
		return
	}
	renderCart(c, "Product added successfully to your cart.", ct)
}

func (h *Handler) getCart(c *gin.Context) {
	ct, err := h.services.Carts.Get(c.Request.Context(), identity(c).UserID)
	if err != nil {
		abort(c, err)
		return
	}
	renderCart(c, "", ct)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.services.Carts.Clear(c.Request.Context(), identity(c).UserID); err != nil {
		abort(c, err)
		return
	}
	noContent(c)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	itemID, ok := idParam(c, "itemId")
	if !ok {
		return
	}
	var in cart.UpdateQuantityInput
	if !bindJSON(c, &in) {
		return
	}
	ct, err := h.services.Carts.UpdateItemQuantity(c.Request.Context(), identity(c).UserID, itemID, in)
	if err != nil {
		abort(c, err)
		return
	}
	renderCart(c, "", ct)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	itemID, ok := idParam(c, "itemId")
	if !ok {
		return
	}
	ct, err := h.services.Carts.RemoveItem(c.Request.Context(), identity(c).UserID, itemID)
	if err != nil {
		abort(c, err)
		return
	}
	renderCart(c, "Product removed successfully from your cart.", ct)
}

func (h *Handler) applyCoupon(c *gin.Context) {
	var in cart.ApplyCouponInput
	if !bindJSON(c, &in) {
		return
	}
	ct, err := h.services.Carts.ApplyCoupon(c.Request.Context(), identity(c).UserID, in)
	if err != nil {
		abort(c, err)
		return
	}
	renderCart(c, "Coupon applied successfully.", ct)
}
