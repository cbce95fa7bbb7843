package domain

import "time"

// MessagePriority orders queued messages for processing.
// Higher values are drained first.
type MessagePriority int

// Priority tiers.
const (
	PriorityLow MessagePriority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// String returns the priority name for logs and metrics labels.
func (p MessagePriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// Valid reports whether p is a known priority tier.
func (p MessagePriority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

// MessageStatus represents the delivery state of a queued message.
type MessageStatus string

// Message statuses. Sent and failed are terminal.
const (
	MessageStatusPending    MessageStatus = "pending"
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusSent       MessageStatus = "sent"
	MessageStatusFailed     MessageStatus = "failed"
)

// IsTerminal reports whether no further processing transition occurs.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusSent || s == MessageStatusFailed
}

// QueuedMessage is the durable record for an outbound message.
// The relational store is the source of truth for its status;
// the priority index only mirrors (id, scheduled_at) per tenant.
type QueuedMessage struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject"`
	BodyHTML     string            `json:"body_html"`
	BodyText     string            `json:"body_text"`
	Variables    map[string]string `json:"variables,omitempty"`
	Priority     MessagePriority   `json:"priority"`
	Status       MessageStatus     `json:"status"`
	Attempts     int               `json:"attempts"`
	MaxAttempts  int               `json:"max_attempts"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ScheduledAt  time.Time         `json:"scheduled_at"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// MessageTemplate is a reusable subject/body pair with declared
// placeholder variables. Inactive templates cannot be enqueued from.
type MessageTemplate struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	BodyHTML  string    `json:"body_html"`
	BodyText  string    `json:"body_text"`
	Variables []string  `json:"variables"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeliveryAudit records a terminal delivery outcome for a queued message.
type DeliveryAudit struct {
	ID                string        `json:"id"`
	TenantID          string        `json:"tenant_id"`
	MessageID         string        `json:"message_id"`
	Channel           string        `json:"channel"`
	Recipient         string        `json:"recipient"`
	Status            MessageStatus `json:"status"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}
