package fulfillment

// EventKind is the closed set of webhook event kinds this system models.
// Anything the processor sends outside this set maps to EventUnknown and is
// acknowledged without a state change.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventPaymentSucceeded
	EventPaymentFailed
)

const (
	eventTypePaymentSucceeded = "payment.succeeded"
	eventTypePaymentFailed    = "payment.failed"
)

// Event is the decoded webhook payload.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData carries the payment correlation id and, for failures, the
// processor's failure reason.
type EventData struct {
	PaymentReference string `json:"payment_reference"`
	FailureReason    string `json:"failure_reason,omitempty"`
}

// Kind maps the wire event type onto the closed EventKind set.
func (e *Event) Kind() EventKind {
	switch e.Type {
	case eventTypePaymentSucceeded:
		return EventPaymentSucceeded
	case eventTypePaymentFailed:
		return EventPaymentFailed
	default:
		return EventUnknown
	}
}
