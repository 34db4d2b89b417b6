// Package orders provides the PostgreSQL-backed repository for order rows.
// The fulfillment engine is the only caller that writes order status.
package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redinc23/mangu-publishing-site-sub001/internal/common"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/dbx"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/models"
)

// PostgresRepository implements order storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByPaymentReference loads an order, including its items, by the external
// payment correlation id, holding the row lock for the rest of the
// transaction. Concurrent duplicate deliveries for the same order serialize
// on that lock, so a later read always sees the earlier delivery's committed
// write and the metadata merge cannot lose an update. Returns
// common.ErrorNotFound when no order matches.
func (r *PostgresRepository) GetByPaymentReference(ctx context.Context, ref string) (*models.Order, error) {
	// A no-op UPDATE takes the same row lock as SELECT ... FOR UPDATE, which
	// not every engine this SQL runs against supports.
	lock := `UPDATE orders SET status = status WHERE payment_reference = $1`
	if _, err := r.db.ExecContext(ctx, lock, ref); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	query := `
		SELECT id, user_id, status, COALESCE(failure_metadata, '{}')
		FROM orders
		WHERE payment_reference = $1
	`
	order := &models.Order{PaymentReference: ref}
	var meta []byte
	err := r.db.QueryRowContext(ctx, query, ref).Scan(&order.ID, &order.UserID, &order.Status, &meta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(meta, &order.FailureMetadata); err != nil {
		return nil, fmt.Errorf("failure metadata decode error: %w", err)
	}

	items, err := r.selectItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (r *PostgresRepository) selectItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	query := `
		SELECT book_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY book_id
	`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to select order items: %w", err)
	}
	defer rows.Close()

	var result []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.BookID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkCompleted moves a pending order to completed and stamps the processing
// time. A replayed delivery finds zero pending rows, which is absorbed: the
// outcome was already applied.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, orderID string, at time.Time) error {
	query := `
		UPDATE orders SET status = 'completed', processed_at = $1
		WHERE id = $2 AND status = 'pending'
	`
	if _, err := r.db.ExecContext(ctx, query, at, orderID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// MarkCancelled moves an order to cancelled and stores the merged failure
// metadata. The caller merges metadata inside the same transaction, so a
// repeated failure event accumulates reasons instead of overwriting them.
func (r *PostgresRepository) MarkCancelled(ctx context.Context, orderID string, metadata map[string]string, at time.Time) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failure metadata encode error: %w", err)
	}
	query := `
		UPDATE orders SET status = 'cancelled', failure_metadata = $1, processed_at = $2
		WHERE id = $3 AND status <> 'completed'
	`
	// jsonb binds as text, not bytea.
	if _, err := r.db.ExecContext(ctx, query, string(meta), at, orderID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
