package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/payment/stripe"
)

// maxWebhookBody bounds the payload read before signature verification.
const maxWebhookBody = 1 << 20

// webhookCheckout verifies a provider delivery and reconciles completed
// checkouts. Once the signature is valid the delivery is acknowledged even
// if reconciliation fails; failures are logged for follow-up.
func (h *Handler) webhookCheckout(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, "Webhook Error: %s", err.Error())
		return
	}
	ev, err := h.services.Webhooks.ParseWebhook(payload, c.GetHeader(stripe.SignatureHeader))
	if err != nil {
		c.String(http.StatusBadRequest, "Webhook Error: %s", err.Error())
		return
	}

	ctx := c.Request.Context()
	lg := zctx.From(ctx).With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))
	if ev.Checkout != nil {
		o, err := h.services.Orders.ReconcileCheckout(ctx, *ev.Checkout)
		switch {
		case errors.Is(err, order.ErrAlreadyReconciled):
			lg.Info("Checkout already reconciled", zap.String("session_id", ev.Checkout.SessionID))
		case err != nil:
			lg.Error("Reconcile checkout",
				zap.String("session_id", ev.Checkout.SessionID),
				zap.String("cart_id", ev.Checkout.CartID),
				zap.String("customer_email", ev.Checkout.CustomerEmail),
				zap.Error(err),
			)
		default:
			lg.Info("Checkout reconciled", zap.String("session_id", ev.Checkout.SessionID), zap.String("order_id", o.ID))
		}
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
