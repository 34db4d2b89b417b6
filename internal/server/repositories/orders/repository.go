package orders

import (
	"context"
	"time"

	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/models"
)

type Repository interface {
	GetByPaymentReference(ctx context.Context, ref string) (*models.Order, error)
	MarkCompleted(ctx context.Context, orderID string, at time.Time) error
	MarkCancelled(ctx context.Context, orderID string, metadata map[string]string, at time.Time) error
}
