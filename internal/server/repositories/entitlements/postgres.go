// Package entitlements provides the PostgreSQL-backed repository for the
// per-(user, book) entitlement rows granted by completed orders.
package entitlements

import (
	"context"
	"fmt"
	"time"

	"github.com/redinc23/mangu-publishing-site-sub001/internal/dbx"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/models"
)

// PostgresRepository implements entitlement storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Grant inserts an entitlement for (userID, bookID). A duplicate grant hits
// the primary-key conflict and is silently absorbed, which makes the call
// idempotent.
func (r *PostgresRepository) Grant(ctx context.Context, userID, bookID string, at time.Time) error {
	query := `
		INSERT INTO entitlements (user_id, book_id, granted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, book_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, bookID, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByUser returns every entitlement granted to userID.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.Entitlement, error) {
	query := `
		SELECT book_id, granted_at
		FROM entitlements
		WHERE user_id = $1
		ORDER BY granted_at, book_id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select entitlements: %w", err)
	}
	defer rows.Close()

	var result []models.Entitlement
	for rows.Next() {
		item := models.Entitlement{UserID: userID}
		if err := rows.Scan(&item.BookID, &item.GrantedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
