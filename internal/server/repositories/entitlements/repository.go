package entitlements

import (
	"context"
	"time"

	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/models"
)

type Repository interface {
	Grant(ctx context.Context, userID, bookID string, at time.Time) error
	ListByUser(ctx context.Context, userID string) ([]models.Entitlement, error)
}
