// Package handler implements the REST API on gin.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/domain/auth"
	"github.com/xenking/eshop/internal/domain/cart"
	"github.com/xenking/eshop/internal/domain/catalog"
	"github.com/xenking/eshop/internal/domain/coupon"
	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/domain/query"
	"github.com/xenking/eshop/internal/domain/review"
	"github.com/xenking/eshop/internal/domain/user"
	"github.com/xenking/eshop/internal/payment/stripe"
	"github.com/xenking/eshop/pkg/httpmiddleware"
)

// Store is the persistence surface the generic resource handlers need.
type Store[T any] interface {
	List(ctx context.Context, b *query.Builder) ([]T, query.Pagination, error)
	Get(ctx context.Context, id string) (*T, error)
	Insert(ctx context.Context, v *T) error
	Modify(ctx context.Context, id string, fn func(v *T) error) (*T, error)
	Delete(ctx context.Context, id string) error
}

type Stores struct {
	Categories    Store[catalog.Category]
	Subcategories Store[catalog.Subcategory]
	Brands        Store[catalog.Brand]
	Products      Store[catalog.Product]
	Coupons       Store[coupon.Coupon]
	Users         Store[user.User]
	Reviews       Store[review.Review]
	Orders        Store[order.Order]
}

// WebhookVerifier authenticates payment provider deliveries.
type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (*stripe.Event, error)
}

type Services struct {
	Auth     *auth.Service
	Users    *user.Service
	Carts    *cart.Service
	Reviews  *review.Service
	Orders   *order.Service
	Webhooks WebhookVerifier
}

type Config struct {
	// Development renders internal error details in responses.
	Development bool
	// PublicURL is the storefront origin used for checkout redirects. When
	// empty it is derived from the request.
	PublicURL string
	// ImageBaseURL is prepended to relative image paths.
	ImageBaseURL string
}

// Handler serves /api/v1.
type Handler struct {
	cfg      Config
	stores   Stores
	services Services
	lg       *zap.Logger
}

func New(cfg Config, stores Stores, services Services, lg *zap.Logger) *Handler {
	return &Handler{cfg: cfg, stores: stores, services: services, lg: lg}
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

// jsonFieldName reports validation failures by JSON name.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// Engine builds the gin router.
func (h *Handler) Engine() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = false
	r.Use(labelRoute, h.renderErrors)
	r.NoRoute(func(c *gin.Context) {
		abort(c, errRouteNotFound(c.Request.URL.Path))
	})

	v1 := r.Group("/api/v1")
	h.mountAuth(v1.Group("/auth"))
	h.mountCategories(v1)
	h.mountSubcategories(v1)
	h.mountBrands(v1)
	h.mountProducts(v1)
	h.mountReviews(v1)
	h.mountUsers(v1.Group("/users"))
	h.mountWishlist(v1.Group("/wishlist"))
	h.mountAddresses(v1.Group("/addresses"))
	h.mountCoupons(v1.Group("/coupons"))
	h.mountCart(v1.Group("/cart"))
	h.mountOrders(v1.Group("/orders"))
	v1.POST("/webhook-checkout", h.webhookCheckout)
	r.POST("/webhook-checkout", h.webhookCheckout)
	return r
}

func labelRoute(c *gin.Context) {
	httpmiddleware.SetRoute(c.Request.Context(), c.FullPath())
	c.Next()
}

func (h *Handler) imageURL(path string) string {
	return catalog.WithImageBase(h.cfg.ImageBaseURL, path)
}

func (h *Handler) presentProduct(p *catalog.Product) {
	p.ResolveImages(h.cfg.ImageBaseURL)
}

func (h *Handler) presentCategory(c *catalog.Category) {
	c.Image = h.imageURL(c.Image)
}

func (h *Handler) presentBrand(b *catalog.Brand) {
	b.Image = h.imageURL(b.Image)
}

func (h *Handler) presentUser(u *user.User) {
	u.ProfileImage = h.imageURL(u.ProfileImage)
}

// success is the envelope of action endpoints.
const success = "Success"

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
