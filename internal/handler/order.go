package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/domain/query"
	"github.com/xenking/eshop/internal/domain/user"
)

type placeOrderInput struct {
	ShippingAddress order.ShippingAddress `json:"shippingAddress"`
}

func (h *Handler) mountOrders(g *gin.RouterGroup) {
	g.Use(h.protect)
	g.POST("/checkout-session/:cartId", allowedTo(user.RoleUser), h.checkoutSession)
	g.POST("/:cartId", allowedTo(user.RoleUser), h.createCashOrder)

	r := resource[order.Order]{store: h.stores.Orders}
	g.GET("", allowedTo(user.RoleUser, user.RoleAdmin, user.RoleManager), getAll(r, ownOrders))
	g.GET("/:id", allowedTo(user.RoleUser, user.RoleAdmin, user.RoleManager), h.getOrder)
	g.PUT("/:id/pay", allowedTo(staff...), h.markOrder(h.services.Orders.MarkPaid))
	g.PUT("/:id/deliver", allowedTo(staff...), h.markOrder(h.services.Orders.MarkDelivered))
}

// ownOrders limits regular users to their own orders.
func ownOrders(c *gin.Context, b *query.Builder) bool {
	order.ScopeList(identity(c), b)
	return true
}

// bindOrderInput accepts an empty body.
func bindOrderInput(c *gin.Context) (placeOrderInput, bool) {
	var in placeOrderInput
	if c.Request.ContentLength == 0 {
		return in, true
	}
	return in, bindJSON(c, &in)
}

func (h *Handler) createCashOrder(c *gin.Context) {
	cartID, ok := idParam(c, "cartId")
	if !ok {
		return
	}
	in, ok := bindOrderInput(c)
	if !ok {
		return
	}
	o, err := h.services.Orders.PlaceCashOrder(c.Request.Context(), identity(c), cartID, in.ShippingAddress)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": success, "data": o})
}

func (h *Handler) checkoutSession(c *gin.Context) {
	cartID, ok := idParam(c, "cartId")
	if !ok {
		return
	}
	in, ok := bindOrderInput(c)
	if !ok {
		return
	}
	base := h.publicURL(c)
	s, err := h.services.Orders.CreateCheckoutSession(c.Request.Context(), identity(c), cartID, in.ShippingAddress,
		order.CheckoutURLs{Success: base + "/orders", Cancel: base + "/cart"})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": success, "session": s.Object})
}

// publicURL is the configured storefront origin or the origin of the request.
func (h *Handler) publicURL(c *gin.Context) string {
	if h.cfg.PublicURL != "" {
		return strings.TrimSuffix(h.cfg.PublicURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := c.GetHeader("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + c.Request.Host
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	o, err := h.services.Orders.Get(c.Request.Context(), identity(c), id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": o})
}

func (h *Handler) markOrder(mark func(ctx context.Context, id string) (*order.Order, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		o, err := mark(c.Request.Context(), id)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": success, "data": o})
	}
}
