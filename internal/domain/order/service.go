package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/apperr"
	"github.com/xenking/eshop/internal/domain/auth"
	"github.com/xenking/eshop/internal/domain/cart"
	"github.com/xenking/eshop/internal/domain/catalog"
	"github.com/xenking/eshop/internal/domain/query"
	"github.com/xenking/eshop/internal/domain/user"
)

const instrumentationName = "github.com/xenking/eshop/internal/domain/order"

// ErrAlreadyReconciled is returned when a checkout session already produced
// an order. Provider retries end up here.
var ErrAlreadyReconciled = errors.New("checkout session already reconciled")

// Products resolves product titles for checkout line items.
type Products interface {
	GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error)
}

// Users resolves the customer reported by the payment provider.
type Users interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// CheckoutLine is one line of a hosted checkout page.
type CheckoutLine struct {
	Name string
	// UnitAmount is in minor currency units.
	UnitAmount int64
	Quantity   int64
}

type CheckoutRequest struct {
	Lines             []CheckoutLine
	ClientReferenceID string
	CustomerEmail     string
	Metadata          map[string]string
	SuccessURL        string
	CancelURL         string
}

// CheckoutSession is the provider session handed back to the client.
type CheckoutSession struct {
	ID  string
	URL string
	// Object is the provider's session representation.
	Object any
}

// Gateway opens hosted checkout sessions with the payment provider.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// CheckoutCompleted is the verified payload of a completed checkout.
type CheckoutCompleted struct {
	SessionID     string
	CartID        string
	CustomerEmail string
	// AmountTotal is the charged amount in minor currency units.
	AmountTotal int64
	Metadata    map[string]string
}

// Placed is emitted after an order is committed.
type Placed struct {
	OrderID       string
	UserID        string
	PaymentMethod PaymentMethod
	Total         decimal.Decimal
	Items         []Item
	PlacedAt      time.Time
}

// Publisher delivers Placed events. Delivery is best effort.
type Publisher interface {
	PublishPlaced(ctx context.Context, e Placed) error
}

// CheckoutURLs are the redirect targets of the hosted checkout page.
type CheckoutURLs struct {
	Success string
	Cancel  string
}

type Options struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Now            func() time.Time
}

// Service implements order placement and order administration.
type Service struct {
	store     Store
	orders    Repository
	products  Products
	users     Users
	gateway   Gateway
	publisher Publisher

	tracer trace.Tracer
	placed metric.Int64Counter
	now    func() time.Time
}

func NewService(
	store Store,
	orders Repository,
	products Products,
	users Users,
	gateway Gateway,
	publisher Publisher,
	opts Options,
) (*Service, error) {
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	placed, err := opts.MeterProvider.Meter(instrumentationName).Int64Counter("orders.placed",
		metric.WithDescription("Orders committed, by payment method"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders.placed counter")
	}
	return &Service{
		store:     store,
		orders:    orders,
		products:  products,
		users:     users,
		gateway:   gateway,
		publisher: publisher,
		tracer:    opts.TracerProvider.Tracer(instrumentationName),
		placed:    placed,
		now:       opts.Now,
	}, nil
}

// PlaceCashOrder turns the caller's cart into an unpaid cash order. The
// order, the inventory adjustment and the cart deletion commit together or
// not at all.
func (s *Service) PlaceCashOrder(ctx context.Context, id auth.Identity, cartID string, addr ShippingAddress) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceCashOrder",
		trace.WithAttributes(attribute.String("cart.id", cartID)),
	)
	defer span.End()

	var o *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := ownedCart(ctx, tx, cartID, id.UserID)
		if err != nil {
			return err
		}
		o = newOrder(c, id.UserID, addr, PaymentCash, s.now())
		o.TotalOrderPrice = c.PayablePrice().Add(o.TaxPrice).Add(o.ShippingPrice)
		return s.commit(ctx, tx, c.ID, o)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "place cash order")
		return nil, err
	}
	s.afterCommit(ctx, o)
	return o, nil
}

// CreateCheckoutSession opens a hosted checkout for the caller's cart. It
// changes no local state.
func (s *Service) CreateCheckoutSession(ctx context.Context, id auth.Identity, cartID string, addr ShippingAddress, urls CheckoutURLs) (*CheckoutSession, error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateCheckoutSession",
		trace.WithAttributes(attribute.String("cart.id", cartID)),
	)
	defer span.End()

	var c *cart.Cart
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		c, err = ownedCart(ctx, tx, cartID, id.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	titles := make(map[string]string, len(products))
	for _, p := range products {
		titles[p.ID] = p.Title
	}

	lines := make([]CheckoutLine, 0, len(c.Items))
	for _, it := range c.Items {
		name, ok := titles[it.ProductID]
		if !ok {
			return nil, apperr.NotFound("No product found for ID: %s", it.ProductID)
		}
		lines = append(lines, CheckoutLine{
			Name:       name,
			UnitAmount: MinorUnits(it.Price),
			Quantity:   int64(it.Quantity),
		})
	}

	if c.TotalPriceAfterDiscount != nil {
		lines = discountedLines(lines, c.PayablePrice())
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		Lines:             lines,
		ClientReferenceID: c.ID,
		CustomerEmail:     id.Email,
		Metadata:          addr.Metadata(),
		SuccessURL:        urls.Success,
		CancelURL:         urls.Cancel,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create checkout session")
		return nil, errors.Wrap(err, "create checkout session")
	}
	span.SetAttributes(attribute.String("checkout.session", sess.ID))
	return sess, nil
}

// ReconcileCheckout turns the cart referenced by a completed checkout into
// a paid card order. A session that already produced an order yields
// ErrAlreadyReconciled and changes nothing.
func (s *Service) ReconcileCheckout(ctx context.Context, ev CheckoutCompleted) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.ReconcileCheckout",
		trace.WithAttributes(
			attribute.String("checkout.session", ev.SessionID),
			attribute.String("cart.id", ev.CartID),
		),
	)
	defer span.End()

	u, err := s.users.GetByEmail(ctx, user.NormalizeEmail(ev.CustomerEmail))
	if err != nil {
		return nil, errors.Wrap(err, "resolve customer")
	}

	var o *Order
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		seen, err := tx.SessionRecorded(ctx, ev.SessionID)
		if err != nil {
			return errors.Wrap(err, "check session")
		}
		if seen {
			return ErrAlreadyReconciled
		}
		c, err := ownedCart(ctx, tx, ev.CartID, u.ID)
		if err != nil {
			return err
		}

		now := s.now()
		sessionID := ev.SessionID
		o = newOrder(c, u.ID, AddressFromMetadata(ev.Metadata), PaymentCard, now)
		o.PaymentSessionID = &sessionID
		o.IsPaid = true
		o.PaidAt = &now
		o.TotalOrderPrice = c.PayablePrice()
		if ev.AmountTotal > 0 {
			o.TotalOrderPrice = decimal.New(ev.AmountTotal, -2)
		}
		return s.commit(ctx, tx, c.ID, o)
	})
	if err != nil {
		if !errors.Is(err, ErrAlreadyReconciled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reconcile checkout")
		}
		return nil, err
	}
	s.afterCommit(ctx, o)
	return o, nil
}

func (s *Service) commit(ctx context.Context, tx Tx, cartID string, o *Order) error {
	if err := tx.CreateOrder(ctx, o); err != nil {
		return errors.Wrap(err, "create order")
	}
	if err := tx.AdjustInventory(ctx, StockLines(o.Items)); err != nil {
		return errors.Wrap(err, "adjust inventory")
	}
	if err := tx.DeleteCart(ctx, cartID); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}

func (s *Service) afterCommit(ctx context.Context, o *Order) {
	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(o.PaymentMethod))))

	lg := zctx.From(ctx)
	lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("payment_method", string(o.PaymentMethod)),
		zap.Stringer("total", o.TotalOrderPrice),
	)
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishPlaced(ctx, Placed{
		OrderID:       o.ID,
		UserID:        o.UserID,
		PaymentMethod: o.PaymentMethod,
		Total:         o.TotalOrderPrice,
		Items:         o.Items,
		PlacedAt:      o.CreatedAt,
	})
	if err != nil {
		lg.Warn("Publish order event failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

// ScopeList restricts a listing to the caller's own orders unless the caller
// is staff.
func ScopeList(id auth.Identity, b *query.Builder) *query.Builder {
	if auth.IsStaff(id) {
		return b
	}
	return b.Where("user", id.UserID)
}

// Get returns an order. Customers only see their own orders.
func (s *Service) Get(ctx context.Context, id auth.Identity, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !auth.IsStaff(id) && o.UserID != id.UserID {
		return nil, ErrNotFound
	}
	return o, nil
}

// MarkPaid records payment of an order.
func (s *Service) MarkPaid(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.SetPaid(ctx, orderID, s.now())
}

// MarkDelivered records delivery of an order.
func (s *Service) MarkDelivered(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.SetDelivered(ctx, orderID, s.now())
}

// MinorUnits converts a price to minor currency units.
func MinorUnits(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}

// discountedLines collapses the cart into a single line charging the
// discounted total, so a card payment charges what a cash order would.
func discountedLines(lines []CheckoutLine, total decimal.Decimal) []CheckoutLine {
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Quantity > 1 {
			names = append(names, fmt.Sprintf("%s x%d", l.Name, l.Quantity))
			continue
		}
		names = append(names, l.Name)
	}
	return []CheckoutLine{{
		Name:       strings.Join(names, ", "),
		UnitAmount: MinorUnits(total),
		Quantity:   1,
	}}
}

func ownedCart(ctx context.Context, tx Tx, cartID, userID string) (*cart.Cart, error) {
	c, err := tx.CartByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, errors.Wrap(err, "load cart")
	}
	if c.UserID != userID {
		return nil, ErrCartNotFound
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	return c, nil
}

func newOrder(c *cart.Cart, userID string, addr ShippingAddress, method PaymentMethod, now time.Time) *Order {
	return &Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		Items:           snapshot(c.Items),
		TaxPrice:        decimal.Zero,
		ShippingPrice:   decimal.Zero,
		ShippingAddress: addr,
		PaymentMethod:   method,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
