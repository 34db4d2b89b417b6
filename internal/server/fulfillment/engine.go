// Package fulfillment turns the payment processor's signed webhook
// notifications into durable, idempotent changes to order status and user
// entitlements. The processor redelivers on non-2xx responses, so every
// handler must be safe to re-run.
package fulfillment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/common"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/dbx"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/logging"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/models"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/repositories/repomanager"
)

type handlerFunc func(ctx context.Context, log logging.Logger, event *Event) error

// Engine is the sole writer of order-completion state. All writes for one
// event happen inside a single transaction, so a failure at any step leaves
// no partial effect.
type Engine struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	sig      *SignatureVerifier
	logger   logging.Logger
	handlers map[EventKind]handlerFunc
	now      func() time.Time
}

// NewEngine constructs an Engine and builds its event dispatch table. Kinds
// without a handler fall through to the acknowledge-no-op path in Process.
func NewEngine(db *sql.DB, repos repomanager.RepositoryManager, secret []byte, logger logging.Logger) *Engine {
	e := &Engine{
		db:     db,
		repos:  repos,
		sig:    NewSignatureVerifier(secret),
		logger: logger,
		now:    time.Now,
	}
	e.handlers = map[EventKind]handlerFunc{
		EventPaymentSucceeded: e.completeOrder,
		EventPaymentFailed:    e.cancelOrder,
	}
	return e
}

// Process verifies and applies one webhook delivery.
//
// A nil return acknowledges the delivery: the event was applied, was a
// replay, referenced no known order, or is a kind this system does not
// model. common.ErrMissingSignature, common.ErrInvalidSignature and
// common.ErrMalformedEvent reject the request before any transaction is
// opened. Any other error is a transactional/infrastructure failure and
// must propagate so the sender's retry policy becomes the recovery path.
func (e *Engine) Process(ctx context.Context, body []byte, signature string) error {
	if err := e.sig.Verify(signature, body); err != nil {
		return err
	}

	event := &Event{}
	if err := json.Unmarshal(body, event); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedEvent, err)
	}

	// The sender reuses its event id on redelivery; the delivery id is fresh
	// per Process call, so every log line of one delivery attempt carries
	// both and replays can be told apart.
	log := e.logger.With("delivery_id", uuid.NewString(), "event_id", event.ID)
	log.Info(ctx, "processing webhook delivery", "type", event.Type)

	handler, ok := e.handlers[event.Kind()]
	if !ok {
		log.Info(ctx, "ignoring unmodeled event", "type", event.Type)
		return nil
	}
	return handler(ctx, log, event)
}

// completeOrder applies a payment-succeeded event: pending -> completed plus
// one entitlement grant per item, all in one transaction.
func (e *Engine) completeOrder(ctx context.Context, log logging.Logger, event *Event) error {
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ordersRepo := e.repos.Orders(tx)

		order, err := ordersRepo.GetByPaymentReference(ctx, event.Data.PaymentReference)
		if errors.Is(err, common.ErrorNotFound) {
			warnNoOrder(ctx, log, event)
			return nil
		}
		if err != nil {
			return err
		}

		if order.Status != models.OrderStatusPending {
			// Replay of an outcome that already landed. Grants are idempotent
			// and already present, nothing to redo.
			log.Info(ctx, "order already processed", "order_id", order.ID, "status", string(order.Status))
			return nil
		}

		now := e.now()
		if err := ordersRepo.MarkCompleted(ctx, order.ID, now); err != nil {
			return err
		}

		grants := e.repos.Entitlements(tx)
		for _, item := range order.Items {
			if err := grants.Grant(ctx, order.UserID, item.BookID, now); err != nil {
				return err
			}
		}

		log.Info(ctx, "order completed", "order_id", order.ID, "user_id", order.UserID, "items", len(order.Items))
		return nil
	})
}

// cancelOrder applies a payment-failed event: pending -> cancelled, merging
// the failure reason into the order's metadata. A cancelled order accepts
// further failure events so repeated signals accumulate reasons instead of
// erasing each other.
func (e *Engine) cancelOrder(ctx context.Context, log logging.Logger, event *Event) error {
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ordersRepo := e.repos.Orders(tx)

		order, err := ordersRepo.GetByPaymentReference(ctx, event.Data.PaymentReference)
		if errors.Is(err, common.ErrorNotFound) {
			warnNoOrder(ctx, log, event)
			return nil
		}
		if err != nil {
			return err
		}

		if order.Status == models.OrderStatusCompleted {
			log.Warn(ctx, "ignoring failure event for completed order", "order_id", order.ID)
			return nil
		}

		reason := event.Data.FailureReason
		if reason == "" {
			reason = "unspecified"
		}

		now := e.now()
		merged := make(map[string]string, len(order.FailureMetadata)+1)
		for k, v := range order.FailureMetadata {
			merged[k] = v
		}
		merged[reason] = now.UTC().Format(time.RFC3339)

		if err := ordersRepo.MarkCancelled(ctx, order.ID, merged, now); err != nil {
			return err
		}

		log.Info(ctx, "order cancelled", "order_id", order.ID, "reason", reason)
		return nil
	})
}

// warnNoOrder logs a referential miss. The event is still acknowledged:
// redelivery would never resolve it, so signalling an error here would only
// put the sender into an infinite retry loop.
func warnNoOrder(ctx context.Context, log logging.Logger, event *Event) {
	log.Warn(ctx, "no order for payment reference", "payment_reference", event.Data.PaymentReference)
}
