// Package kafka publishes order events to Kafka.
package kafka

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/domain/order"
)

const (
	EventOrderPlaced = "order.placed"
	eventVersion     = "1"
)

type Config struct {
	Brokers  []string
	Topic    string
	Username string
	Password string
	// Timeout bounds one publish call.
	Timeout time.Duration
}

// producer is the subset of *kgo.Client used by Publisher.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Ping(ctx context.Context) error
	Close()
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher writes order events to one topic, keyed by order id.
type Publisher struct {
	client  producer
	topic   string
	timeout time.Duration
}

func New(cfg Config, lg *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no kafka brokers")
	}
	if cfg.Topic == "" {
		cfg.Topic = "orders"
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.WithLogger(zapLogger{lg: lg.Named("kafka")}),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, kgo.SASL(plain.Auth{
			User: cfg.Username,
			Pass: cfg.Password,
		}.AsMechanism()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka client")
	}
	return newPublisher(client, cfg), nil
}

func newPublisher(client producer, cfg Config) *Publisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Publisher{client: client, topic: cfg.Topic, timeout: cfg.Timeout}
}

func (p *Publisher) PublishPlaced(ctx context.Context, e order.Placed) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(e.OrderID),
		Value: EncodePlaced(e),
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(EventOrderPlaced)},
			{Key: "version", Value: []byte(eventVersion)},
		},
		Timestamp: e.PlacedAt,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return errors.Wrapf(err, "produce %s for order %s", EventOrderPlaced, e.OrderID)
	}
	return nil
}

// Close flushes buffered records and closes the client.
// Ping checks that a broker is reachable.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Publisher) Close() {
	p.client.Close()
}

// EncodePlaced renders the event body. Money is encoded as decimal strings.
func EncodePlaced(e order.Placed) []byte {
	var w jx.Encoder
	w.ObjStart()
	w.FieldStart("orderId")
	w.Str(e.OrderID)
	w.FieldStart("userId")
	w.Str(e.UserID)
	w.FieldStart("paymentMethod")
	w.Str(string(e.PaymentMethod))
	w.FieldStart("total")
	w.Str(e.Total.StringFixed(2))
	w.FieldStart("placedAt")
	w.Str(e.PlacedAt.UTC().Format(time.RFC3339Nano))
	w.FieldStart("items")
	w.ArrStart()
	for _, it := range e.Items {
		w.ObjStart()
		w.FieldStart("product")
		w.Str(it.ProductID)
		w.FieldStart("quantity")
		w.Int(it.Quantity)
		if it.Color != "" {
			w.FieldStart("color")
			w.Str(it.Color)
		}
		w.FieldStart("price")
		w.Str(it.Price.StringFixed(2))
		w.ObjEnd()
	}
	w.ArrEnd()
	w.ObjEnd()
	return w.Bytes()
}

// Nop drops events. It is used when no brokers are configured.
type Nop struct{}

func (Nop) PublishPlaced(context.Context, order.Placed) error { return nil }

// zapLogger adapts zap to kgo.Logger.
type zapLogger struct {
	lg *zap.Logger
}

func (l zapLogger) Level() kgo.LogLevel {
	switch {
	case l.lg.Core().Enabled(zap.DebugLevel):
		return kgo.LogLevelDebug
	case l.lg.Core().Enabled(zap.InfoLevel):
		return kgo.LogLevelInfo
	default:
		return kgo.LogLevelWarn
	}
}

func (l zapLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	switch level {
	case kgo.LogLevelError:
		l.lg.Error(msg, fields...)
	case kgo.LogLevelWarn:
		l.lg.Warn(msg, fields...)
	case kgo.LogLevelInfo:
		l.lg.Info(msg, fields...)
	default:
		l.lg.Debug(msg, fields...)
	}
}
