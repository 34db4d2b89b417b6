package fulfillment

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/redinc23/mangu-publishing-site-sub001/internal/common"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/logging"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/repositories/repomanager"
)

const testSchema = `
	CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		payment_reference TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'pending',
		failure_metadata TEXT,
		processed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE order_items (
		order_id TEXT NOT NULL,
		book_id TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		unit_price INTEGER NOT NULL,
		PRIMARY KEY (order_id, book_id)
	);
	CREATE TABLE entitlements (
		user_id TEXT NOT NULL,
		book_id TEXT NOT NULL,
		granted_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, book_id)
	);
`

const testSecret = "hook-secret"

func setupEngine(t *testing.T) (*Engine, *sql.DB) {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return setupEngineWithLogger(t, logger)
}

func setupEngineWithLogger(t *testing.T, logger logging.Logger) (*Engine, *sql.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	mgr, err := repomanager.NewPostgresRepositoryManager()
	require.NoError(t, err)

	return NewEngine(db, mgr, []byte(testSecret), logger), db
}

func seedOrder(t *testing.T, db *sql.DB, id, userID, ref string, books ...string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO orders (id, user_id, payment_reference) VALUES ($1, $2, $3)`, id, userID, ref)
	require.NoError(t, err)
	for _, book := range books {
		_, err := db.Exec(`INSERT INTO order_items (order_id, book_id, unit_price) VALUES ($1, $2, $3)`, id, book, 1999)
		require.NoError(t, err)
	}
}

func eventBody(t *testing.T, id, eventType, ref, reason string) []byte {
	t.Helper()
	body, err := json.Marshal(Event{
		ID:   id,
		Type: eventType,
		Data: EventData{PaymentReference: ref, FailureReason: reason},
	})
	require.NoError(t, err)
	return body
}

func deliver(t *testing.T, e *Engine, body []byte) error {
	t.Helper()
	return e.Process(context.Background(), body, sign([]byte(testSecret), body))
}

func orderState(t *testing.T, db *sql.DB, id string) (status string, metadata map[string]string) {
	t.Helper()
	var meta sql.NullString
	require.NoError(t, db.QueryRow(`SELECT status, failure_metadata FROM orders WHERE id = $1`, id).Scan(&status, &meta))
	if meta.Valid {
		require.NoError(t, json.Unmarshal([]byte(meta.String), &metadata))
	}
	return status, metadata
}

func grantedBooks(t *testing.T, db *sql.DB, userID string) []string {
	t.Helper()
	rows, err := db.Query(`SELECT book_id FROM entitlements WHERE user_id = $1 ORDER BY book_id`, userID)
	require.NoError(t, err)
	defer rows.Close()
	var books []string
	for rows.Next() {
		var b string
		require.NoError(t, rows.Scan(&b))
		books = append(books, b)
	}
	require.NoError(t, rows.Err())
	return books
}

func countGrants(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM entitlements`).Scan(&n))
	return n
}

func TestProcess_SucceededEventCompletesOrderAndGrantsItems(t *testing.T) {
	e, db := setupEngine(t)
	seedOrder(t, db, "O1", "U1", "PAY-1", "B1", "B2")

	err := deliver(t, e, eventBody(t, "evt-1", "payment.succeeded", "PAY-1", ""))
	require.NoError(t, err)

	status, _ := orderState(t, db, "O1")
	require.Equal(t, "completed", status)
	require.Equal(t, []string{"B1", "B2"}, grantedBooks(t, db, "U1"))

	var processedAt sql.NullTime
	require.NoError(t, db.QueryRow(`SELECT processed_at FROM orders WHERE id = 'O1'`).Scan(&processedAt))
	require.True(t, processedAt.Valid, "completion must stamp the processing time")
}

func TestProcess_ReplayedSucceededEventIsNoOp(t *testing.T) {
	e, db := setupEngine(t)
	seedOrder(t, db, "O1", "U1", "PAY-1", "B1", "B2")

	body := eventBody(t, "evt-1", "payment.succeeded", "PAY-1", "")
	require.NoError(t, deliver(t, e, body))
	require.NoError(t, deliver(t, e, body), "redelivery must be acknowledged")

	status, _ := orderState(t, db, "O1")
	require.Equal(t, "completed", status)
	require.Equal(t, 2, countGrants(t, db), "no duplicate grants on replay")
}

func TestProcess_FailedEventCancelsOrderWithReason(t *testing.T) {
	e, db := setupEngine(t)
	seedOrder(t, db, "O1", "U1", "PAY-1", "B1")

	err := deliver(t, e, eventBody(t, "evt-1", "payment.failed", "PAY-1", "card_declined"))
	require.NoError(t, err)

	status, meta := orderState(t, db, "O1")
	require.Equal(t, "cancelled", status)
	require.Contains(t, meta, "card_declined")
	require.Equal(t, 0, countGrants(t, db), "a cancelled order grants nothing")
}

func TestProcess_FailureMetadataMergeIsCommutative(t *testing.T) {
	for name, reasons := range map[string][2]string{
		"declined then funds": {"card_declined", "insufficient_funds"},
		"funds then declined": {"insufficient_funds", "card_declined"},
	} {
		t.Run(name, func(t *testing.T) {
			e, db := setupEngine(t)
			seedOrder(t, db, "O1", "U1", "PAY-1", "B1")

			require.NoError(t, deliver(t, e, eventBody(t, "evt-1", "payment.failed", "PAY-1", reasons[0])))
			require.NoError(t, deliver(t, e, eventBody(t, "evt-2", "payment.failed", "PAY-1", reasons[1])))

			status, meta := orderState(t, db, "O1")
			require.Equal(t, "cancelled", status)
			require.Contains(t, meta, "card_declined", "no failure reason may be erased")
			require.Contains(t, meta, "insufficient_funds", "no failure reason may be erased")
		})
	}
}

func TestProcess_ReferentialMissIsAcknowledged(t *testing.T) {
	e, db := setupEngine(t)
	seedOrder(t, db, "O1", "U1", "PAY-1", "B1")

	err := deliver(t, e, eventBody(t, "evt-1", "payment.succeeded", "PAY-999", ""))
	require.NoError(t, err, "an event for an unknown order must not signal retry")

	status, _ := orderState(t, db, "O1")
	require.Equal(t, "pending", status)
	require.Equal(t, 0, countGrants(t, db))
}

func TestProcess_TamperedSignatureRejectedBeforeLookup(t *testing.T) {
	e, db := setupEngine(t)
	seedOrder(t, db, "O1", "U1", "PAY-1", "B1")

	body := eventBody(t, "evt-1", "payment.succeeded", "PAY-1", "")
	err := e.Process(context.Background(), body, sign([]byte("wrong-secret"), body))
	require.ErrorIs(t, err, common.ErrInvalidSignature)

	status, _ := orderState(t, db, "O1")
	require.Equal(t, "pending", status, "no state change on a bad signature")
	require.Equal(t, 0, countGrants(t, db))
}

func TestProcess_UnknownEventTypeAcknowledgedWithoutStateChange(t *testing.T) {
	e, db := setupEngine(t)
	seedOrder(t, db, "O1", "U1", "PAY-1", "B1")

	err := deliver(t, e, eventBody(t, "evt-1", "payment.refunded", "PAY-1", ""))
	require.NoError(t, err, "unmodeled kinds must be acknowledged, not retried")

	status, _ := orderState(t, db, "O1")
	require.Equal(t, "pending", status)
}

func TestProcess_MalformedPayloadRejected(t *testing.T) {
	e, _ := setupEngine(t)

	body := []byte("{not json")
	err := e.Process(context.Background(), body, sign([]byte(testSecret), body))
	require.ErrorIs(t, err, common.ErrMalformedEvent)
}

func TestProcess_FailureEventAfterCompletionLeavesOrderCompleted(t *testing.T) {
	e, db := setupEngine(t)
	seedOrder(t, db, "O1", "U1", "PAY-1", "B1")

	require.NoError(t, deliver(t, e, eventBody(t, "evt-1", "payment.succeeded", "PAY-1", "")))
	require.NoError(t, deliver(t, e, eventBody(t, "evt-2", "payment.failed", "PAY-1", "late_failure")))

	status, _ := orderState(t, db, "O1")
	require.Equal(t, "completed", status, "no transition out of a terminal state")
	require.Equal(t, []string{"B1"}, grantedBooks(t, db, "U1"))
}

func TestProcess_GrantFailureRollsBackWholeTransaction(t *testing.T) {
	e, db := setupEngine(t)
	seedOrder(t, db, "O1", "U1", "PAY-1", "B1", "B2")

	// Make every entitlement insert fail mid-transaction.
	_, err := db.Exec(`DROP TABLE entitlements`)
	require.NoError(t, err)

	err = deliver(t, e, eventBody(t, "evt-1", "payment.succeeded", "PAY-1", ""))
	require.Error(t, err, "infrastructure failure must propagate so the sender retries")

	status, _ := orderState(t, db, "O1")
	require.Equal(t, "pending", status, "the status update must roll back with the failed grant")
}

// The sender reuses its event id on redelivery, so a fresh delivery id is
// generated per attempt and stamped on every log line of that attempt.
func TestProcess_LogLinesShareOneDeliveryID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	e, db := setupEngineWithLogger(t, logger)
	seedOrder(t, db, "O1", "U1", "PAY-1", "B1")

	require.NoError(t, deliver(t, e, eventBody(t, "evt-1", "payment.succeeded", "PAY-1", "")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "order completed")

	re := regexp.MustCompile(`delivery_id=(\S+)`)
	ids := map[string]struct{}{}
	for _, line := range lines {
		m := re.FindStringSubmatch(line)
		require.NotNil(t, m, "log line is missing a delivery id: %s", line)
		ids[m[1]] = struct{}{}
	}
	require.Len(t, ids, 1, "all lines of one attempt must carry the same id")

	// A second attempt gets its own id.
	buf.Reset()
	require.NoError(t, deliver(t, e, eventBody(t, "evt-1", "payment.succeeded", "PAY-1", "")))
	m := re.FindStringSubmatch(buf.String())
	require.NotNil(t, m)
	_, seen := ids[m[1]]
	require.False(t, seen, "replayed deliveries must not reuse the id")
}
