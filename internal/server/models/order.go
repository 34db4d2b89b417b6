// Package models contains the persistent entities owned by the fulfillment
// store.
package models

import "database/sql"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a purchase created by the checkout flow in the pending state.
// The fulfillment engine is the only writer of its terminal status: a pending
// order moves to completed or cancelled exactly once, and never back.
//
// FailureMetadata maps a failure reason to the time it was reported. Merging
// by reason keeps replayed and repeated failure events from erasing each
// other.
type Order struct {
	ID               string
	UserID           string
	PaymentReference string
	Status           OrderStatus
	FailureMetadata  map[string]string
	ProcessedAt      sql.NullTime
	Items            []OrderItem
}

// OrderItem is a snapshot of one purchased book at checkout time.
type OrderItem struct {
	BookID    string
	Quantity  int32
	UnitPrice int64
}
