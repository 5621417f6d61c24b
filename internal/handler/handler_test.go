package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/apperr"
	"github.com/xenking/eshop/internal/domain/auth"
	"github.com/xenking/eshop/internal/domain/cart"
	"github.com/xenking/eshop/internal/domain/catalog"
	"github.com/xenking/eshop/internal/domain/coupon"
	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/domain/query"
	"github.com/xenking/eshop/internal/domain/review"
	"github.com/xenking/eshop/internal/domain/user"
	"github.com/xenking/eshop/internal/payment/stripe"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errMemNotFound = apperr.NotFound("No document for this id.")

// memStore is an in-memory Store. List ignores filters but honours paging.
type memStore[T any] struct {
	items   []T
	id      func(*T) string
	listErr error
}

func newMemStore[T any](id func(*T) string, items ...T) *memStore[T] {
	return &memStore[T]{items: items, id: id}
}

func (s *memStore[T]) List(_ context.Context, b *query.Builder) ([]T, query.Pagination, error) {
	if s.listErr != nil {
		return nil, query.Pagination{}, s.listErr
	}
	b.Paginate(len(s.items))
	q := b.Query()
	end := min(q.Skip+q.Limit, len(s.items))
	if q.Skip >= end {
		return []T{}, b.Pagination(), nil
	}
	return slices.Clone(s.items[q.Skip:end]), b.Pagination(), nil
}

func (s *memStore[T]) index(id string) int {
	return slices.IndexFunc(s.items, func(v T) bool { return s.id(&v) == id })
}

func (s *memStore[T]) Get(_ context.Context, id string) (*T, error) {
	i := s.index(id)
	if i < 0 {
		return nil, errMemNotFound
	}
	v := s.items[i]
	return &v, nil
}

func (s *memStore[T]) Insert(_ context.Context, v *T) error {
	s.items = append(s.items, *v)
	return nil
}

func (s *memStore[T]) Modify(_ context.Context, id string, fn func(*T) error) (*T, error) {
	i := s.index(id)
	if i < 0 {
		return nil, errMemNotFound
	}
	v := s.items[i]
	if err := fn(&v); err != nil {
		return nil, err
	}
	s.items[i] = v
	return &v, nil
}

func (s *memStore[T]) Delete(_ context.Context, id string) error {
	i := s.index(id)
	if i < 0 {
		return errMemNotFound
	}
	s.items = slices.Delete(s.items, i, i+1)
	return nil
}

// memUsers implements the account lookups used by authentication and order
// reconciliation.
type memUsers struct {
	user.Repository
	byID map[string]*user.User
}

func (m *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

// orderTx serves one cart and records what placement did.
type orderTx struct {
	carts    map[string]*cart.Cart
	created  []*order.Order
	sessions map[string]bool
	stockErr error
}

func (t *orderTx) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return fn(ctx, t)
}

func (t *orderTx) CartByID(_ context.Context, id string) (*cart.Cart, error) {
	c, ok := t.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

func (t *orderTx) SessionRecorded(_ context.Context, id string) (bool, error) {
	return t.sessions[id], nil
}

func (t *orderTx) CreateOrder(_ context.Context, o *order.Order) error {
	t.created = append(t.created, o)
	if o.PaymentSessionID != nil {
		t.sessions[*o.PaymentSessionID] = true
	}
	return nil
}

func (t *orderTx) AdjustInventory(context.Context, []order.StockLine) error {
	return t.stockErr
}

func (t *orderTx) DeleteCart(_ context.Context, id string) error {
	delete(t.carts, id)
	return nil
}

// orderRepo adds the payment and delivery updates to an in-memory order
// store.
type orderRepo struct {
	*memStore[order.Order]
}

func (r orderRepo) SetPaid(ctx context.Context, id string, at time.Time) (*order.Order, error) {
	return r.Modify(ctx, id, func(o *order.Order) error {
		o.IsPaid, o.PaidAt = true, &at
		return nil
	})
}

func (r orderRepo) SetDelivered(ctx context.Context, id string, at time.Time) (*order.Order, error) {
	return r.Modify(ctx, id, func(o *order.Order) error {
		o.IsDelivered, o.DeliveredAt = true, &at
		return nil
	})
}

type fakeGateway struct {
	req order.CheckoutRequest
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req order.CheckoutRequest) (*order.CheckoutSession, error) {
	g.req = req
	return &order.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1", Object: map[string]string{"id": "cs_1"}}, nil
}

type fakeProducts struct {
	products []catalog.Product
}

func (f fakeProducts) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range f.products {
		if slices.Contains(ids, p.ID) {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeWebhooks struct {
	ev  *stripe.Event
	err error
}

func (f fakeWebhooks) ParseWebhook([]byte, string) (*stripe.Event, error) {
	return f.ev, f.err
}

type fixture struct {
	t       *testing.T
	engine  *gin.Engine
	tokens  *auth.Tokens
	users   *memUsers
	stores  Stores
	orders  *orderTx
	gateway *fakeGateway
	hooks   *fakeWebhooks

	categories *memStore[catalog.Category]
	orderStore *memStore[order.Order]
	product    catalog.Product
	customer   *user.User
	admin      *user.User
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		tokens:  auth.NewTokens("test-secret", time.Hour),
		orders:  &orderTx{carts: map[string]*cart.Cart{}, sessions: map[string]bool{}},
		gateway: &fakeGateway{},
		hooks:   &fakeWebhooks{},
	}
	f.customer = &user.User{ID: uuid.NewString(), Name: "Ann", Email: "ann@example.com", Role: user.RoleUser, Active: true}
	f.admin = &user.User{ID: uuid.NewString(), Name: "Root", Email: "root@example.com", Role: user.RoleAdmin, Active: true}
	f.users = &memUsers{byID: map[string]*user.User{f.customer.ID: f.customer, f.admin.ID: f.admin}}
	f.product = catalog.Product{ID: uuid.NewString(), Title: "Phone", Price: decimal.NewFromInt(100), Quantity: 5}

	f.categories = newMemStore(func(c *catalog.Category) string { return c.ID })
	f.orderStore = newMemStore(func(o *order.Order) string { return o.ID })
	f.stores = Stores{
		Categories:    f.categories,
		Subcategories: newMemStore(func(s *catalog.Subcategory) string { return s.ID }),
		Brands:        newMemStore(func(b *catalog.Brand) string { return b.ID }),
		Products:      newMemStore(func(p *catalog.Product) string { return p.ID }, f.product),
		Coupons:       newMemStore(func(c *coupon.Coupon) string { return c.ID }),
		Users:         newMemStore(func(u *user.User) string { return u.ID }),
		Reviews:       newMemStore(func(r *review.Review) string { return r.ID }),
		Orders:        f.orderStore,
	}

	orders, err := order.NewService(f.orders, orderRepo{f.orderStore}, fakeProducts{products: []catalog.Product{f.product}}, f.users,
		f.gateway, nil, order.Options{})
	require.NoError(t, err)
	services := Services{
		Auth:     auth.NewService(f.users, f.tokens, nil),
		Orders:   orders,
		Webhooks: f.hooks,
	}
	f.engine = New(cfg, f.stores, services, zap.NewNop()).Engine()
	return f
}

func (f *fixture) token(u *user.User) string {
	f.t.Helper()
	tok, err := f.tokens.Issue(u.ID)
	require.NoError(f.t, err)
	return tok
}

func (f *fixture) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestErrorEnvelope(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/api/v1/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]any{"status": "fail", "message": "Can't find this route: /api/v1/nope"}, decode(t, rec))

	rec = f.do(http.MethodGet, "/api/v1/categories/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid id: not-a-uuid.", decode(t, rec)["message"])

	rec = f.do(http.MethodGet, "/api/v1/categories/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "fail", decode(t, rec)["status"])
}

func TestErrorEnvelope_ServerError(t *testing.T) {
	for _, tt := range []struct {
		name string
		dev  bool
	}{
		{name: "production", dev: false},
		{name: "development", dev: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{Development: tt.dev})
			f.categories.listErr = errors.Wrap(errors.New("connection reset"), "list categories")

			rec := f.do(http.MethodGet, "/api/v1/categories", nil, "")
			require.Equal(t, http.StatusInternalServerError, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "error", body["status"])
			if !tt.dev {
				assert.Equal(t, map[string]any{"status": "error", "message": "Something went very wrong!"}, body)
				return
			}
			assert.Equal(t, "list categories: connection reset", body["message"])
			assert.Contains(t, body["stack"], "connection reset")
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestValidationMessages(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodPost, "/api/v1/auth/signup", map[string]string{"name": "Ann", "password": "secret1"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	msg := decode(t, rec)["message"].(string)
	assert.Contains(t, msg, "email is required.")
	assert.Contains(t, msg, "passwordConfirm is required.")

	rec = f.do(http.MethodPost, "/api/v1/auth/login", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "Invalid request body")
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t, Config{})
	body := map[string]string{"name": "Phones"}

	rec := f.do(http.MethodPost, "/api/v1/categories", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.ErrNotLoggedIn.Message, decode(t, rec)["message"])

	rec = f.do(http.MethodPost, "/api/v1/categories", body, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token, please login again.", decode(t, rec)["message"])

	rec = f.do(http.MethodPost, "/api/v1/categories", body, f.token(f.customer))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/categories", body, f.token(f.admin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "phones", data["slug"])
	require.Len(t, f.categories.items, 1)

	rec = f.do(http.MethodGet, "/api/v1/cart", nil, f.token(f.admin))
	assert.Equal(t, http.StatusForbidden, rec.Code, "cart is for customers only")
}

func TestCRUD(t *testing.T) {
	f := newFixture(t, Config{ImageBaseURL: "https://cdn.example.com"})
	admin := f.token(f.admin)
	for _, name := range []string{"Phones", "Laptops", "Tablets"} {
		require.Equal(t, http.StatusCreated,
			f.do(http.MethodPost, "/api/v1/categories", map[string]string{"name": name, "image": name + ".png"}, admin).Code)
	}

	rec := f.do(http.MethodGet, "/api/v1/categories?limit=2&fields=name", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["results"])
	page := body["paginationResult"].(map[string]any)
	assert.EqualValues(t, 2, page["numberOfPages"])
	assert.EqualValues(t, 2, page["next"])
	for _, item := range body["data"].([]any) {
		m := item.(map[string]any)
		assert.Len(t, m, 2, "only id and requested fields: %v", m)
		assert.Contains(t, m, "id")
		assert.Contains(t, m, "name")
	}

	id := f.categories.items[0].ID
	rec = f.do(http.MethodGet, "/api/v1/categories/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://cdn.example.com/Phones.png", decode(t, rec)["data"].(map[string]any)["image"])

	rec = f.do(http.MethodPut, "/api/v1/categories/"+id, map[string]string{"name": "Smart Phones"}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "smart-phones", decode(t, rec)["data"].(map[string]any)["slug"])

	rec = f.do(http.MethodDelete, "/api/v1/categories/"+id, nil, admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, f.categories.items, 2)
}

func TestNestedSubcategoryTakesParent(t *testing.T) {
	f := newFixture(t, Config{})
	parent := uuid.NewString()

	rec := f.do(http.MethodPost, "/api/v1/categories/"+parent+"/subcategories", map[string]string{"name": "Android"}, f.token(f.admin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, parent, decode(t, rec)["data"].(map[string]any)["category"])

	rec = f.do(http.MethodPost, "/api/v1/subcategories", map[string]string{"name": "iOS"}, f.token(f.admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, catalog.ErrSubcategoryParent.Message, decode(t, rec)["message"])
}

func (f *fixture) addCart() *cart.Cart {
	c := &cart.Cart{ID: uuid.NewString(), UserID: f.customer.ID}
	c.AddProduct(f.product.ID, "", f.product.Price)
	c.AddProduct(f.product.ID, "", f.product.Price)
	f.orders.carts[c.ID] = c
	return c
}

func TestCreateCashOrder(t *testing.T) {
	f := newFixture(t, Config{})
	c := f.addCart()

	rec := f.do(http.MethodPost, "/api/v1/orders/"+c.ID,
		map[string]any{"shippingAddress": map[string]string{"city": "Cairo", "details": "Street 1"}}, f.token(f.customer))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Success", body["status"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "cash", data["paymentMethod"])
	assert.Equal(t, false, data["isPaid"])
	assert.Empty(t, f.orders.carts, "cart is consumed")
	require.Len(t, f.orders.created, 1)
	assert.Equal(t, "Cairo", f.orders.created[0].ShippingAddress.City)
}

func TestCreateCashOrder_Failures(t *testing.T) {
	f := newFixture(t, Config{})
	c := f.addCart()

	rec := f.do(http.MethodPost, "/api/v1/orders/"+c.ID, nil, f.token(f.admin))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/orders/"+uuid.NewString(), nil, f.token(f.customer))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, order.ErrCartNotFound.Message, decode(t, rec)["message"])

	f.orders.stockErr = &order.InsufficientStockError{ProductIDs: []string{f.product.ID}}
	rec = f.do(http.MethodPost, "/api/v1/orders/"+c.ID, nil, f.token(f.customer))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "fail", decode(t, rec)["status"])
}

func TestCheckoutSession(t *testing.T) {
	f := newFixture(t, Config{PublicURL: "https://shop.example.com/"})
	c := f.addCart()

	rec := f.do(http.MethodPost, "/api/v1/orders/checkout-session/"+c.ID,
		map[string]any{"shippingAddress": map[string]string{"city": "Cairo"}}, f.token(f.customer))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Success", body["status"])
	assert.Equal(t, map[string]any{"id": "cs_1"}, body["session"])

	assert.Equal(t, "https://shop.example.com/orders", f.gateway.req.SuccessURL)
	assert.Equal(t, "https://shop.example.com/cart", f.gateway.req.CancelURL)
	assert.Equal(t, c.ID, f.gateway.req.ClientReferenceID)
	assert.Equal(t, f.customer.Email, f.gateway.req.CustomerEmail)
	assert.Equal(t, []order.CheckoutLine{{Name: "Phone", UnitAmount: 10000, Quantity: 2}}, f.gateway.req.Lines)
	assert.Len(t, f.orders.carts, 1, "no local change")
}

func TestListOrders_Scoped(t *testing.T) {
	f := newFixture(t, Config{})
	f.orderStore.items = []order.Order{{ID: uuid.NewString(), UserID: f.customer.ID}}

	rec := f.do(http.MethodGet, "/api/v1/orders", nil, f.token(f.customer))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["results"])

	rec = f.do(http.MethodGet, "/api/v1/orders/"+f.orderStore.items[0].ID, nil, f.token(f.customer))
	assert.Equal(t, http.StatusOK, rec.Code)

	f.orderStore.items = append(f.orderStore.items, order.Order{ID: uuid.NewString(), UserID: uuid.NewString()})
	rec = f.do(http.MethodGet, "/api/v1/orders/"+f.orderStore.items[1].ID, nil, f.token(f.customer))
	assert.Equal(t, http.StatusNotFound, rec.Code, "orders of other users are hidden")
}

func TestMarkOrder(t *testing.T) {
	f := newFixture(t, Config{})
	id := uuid.NewString()
	f.orderStore.items = []order.Order{{ID: id, UserID: f.customer.ID}}

	rec := f.do(http.MethodPut, "/api/v1/orders/"+id+"/pay", nil, f.token(f.customer))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPut, "/api/v1/orders/"+id+"/pay", nil, f.token(f.admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, f.orderStore.items[0].IsPaid)

	rec = f.do(http.MethodPut, "/api/v1/orders/"+id+"/deliver", nil, f.token(f.admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.orderStore.items[0].IsDelivered)
	assert.NotNil(t, f.orderStore.items[0].DeliveredAt)
}

func TestWebhook(t *testing.T) {
	post := func(f *fixture) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook-checkout", bytes.NewBufferString(`{"id":"evt_1"}`))
		req.Header.Set(stripe.SignatureHeader, "t=1,v1=00")
		rec := httptest.NewRecorder()
		f.engine.ServeHTTP(rec, req)
		return rec
	}

	t.Run("bad signature", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.hooks.err = errors.Wrap(stripe.ErrSignature, "no valid signature")
		c := f.addCart()

		rec := post(f)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Webhook Error: ")
		assert.Contains(t, f.orders.carts, c.ID)
	})

	t.Run("completed", func(t *testing.T) {
		f := newFixture(t, Config{})
		c := f.addCart()
		f.hooks.ev = &stripe.Event{ID: "evt_1", Type: "checkout.session.completed", Checkout: &order.CheckoutCompleted{
			SessionID: "cs_1", CartID: c.ID, CustomerEmail: "ANN@example.com", AmountTotal: 20000,
		}}

		rec := post(f)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		require.Len(t, f.orders.created, 1)
		o := f.orders.created[0]
		assert.True(t, o.IsPaid)
		assert.Equal(t, order.PaymentCard, o.PaymentMethod)
		assert.True(t, decimal.NewFromInt(200).Equal(o.TotalOrderPrice))

		f.orders.carts[c.ID] = c
		rec = post(f)
		assert.Equal(t, http.StatusOK, rec.Code, "duplicate delivery is acknowledged")
		assert.Len(t, f.orders.created, 1)
	})

	t.Run("internal failure is acknowledged", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.hooks.ev = &stripe.Event{ID: "evt_2", Type: "checkout.session.completed", Checkout: &order.CheckoutCompleted{
			SessionID: "cs_2", CartID: uuid.NewString(), CustomerEmail: "nobody@example.com",
		}}

		rec := post(f)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		assert.Empty(t, f.orders.created)
	})

	t.Run("other event", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.hooks.ev = &stripe.Event{ID: "evt_3", Type: "payment_intent.created"}

		rec := post(f)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, f.orders.created)
	})
}
