package domain

// EventKind distinguishes the two classes of observability events the
// interceptor emits.
type EventKind string

const (
	// EventFlagged records a suspicious-but-allowed condition, such as a
	// spoofable forwarding header being present.
	EventFlagged EventKind = "flagged"
	// EventRejected records a request that failed validation.
	EventRejected EventKind = "rejected"
)

// Event is the structured record handed to the observability sink. Field names
// are safe to log; values of offending inputs are deliberately absent.
type Event struct {
	Kind      EventKind
	Category  Category
	Scope     Scope
	Field     string
	Rule      string
	RequestID string
	Method    string
	Path      string
}
