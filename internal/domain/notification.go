package domain

import "time"

// NotificationType classifies an in-app notification.
type NotificationType string

// Notification types.
const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeError   NotificationType = "error"
	NotificationTypeSystem  NotificationType = "system"
)

// Notification is a persisted per-user notification record.
// It is created once by a producer event and afterwards mutated
// only by read-state toggles.
type Notification struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"tenant_id"`
	UserID          string           `json:"user_id"`
	Title           string           `json:"title"`
	Message         string           `json:"message"`
	Type            NotificationType `json:"type"`
	Category        string           `json:"category,omitempty"`
	ActionType      string           `json:"action_type,omitempty"`
	Priority        string           `json:"priority,omitempty"`
	RelatedEntityID string           `json:"related_entity_id,omitempty"`
	Data            map[string]any   `json:"data,omitempty"`
	IsRead          bool             `json:"is_read"`
	CreatedAt       time.Time        `json:"created_at"`
}

// DeliveryFrequency controls how often side-channel deliveries happen.
type DeliveryFrequency string

// Delivery frequencies.
const (
	FrequencyImmediate DeliveryFrequency = "immediate"
	FrequencyDaily     DeliveryFrequency = "daily"
	FrequencyWeekly    DeliveryFrequency = "weekly"
)

// NotificationPreference holds a user's per-channel delivery settings.
// Upserted by the user, read-only to the fan-out service.
type NotificationPreference struct {
	TenantID   string            `json:"tenant_id"`
	UserID     string            `json:"user_id"`
	Email      bool              `json:"email_enabled"`
	SMS        bool              `json:"sms_enabled"`
	WhatsApp   bool              `json:"whatsapp_enabled"`
	Push       bool              `json:"push_enabled"`
	Frequency  DeliveryFrequency `json:"frequency"`
	Categories map[string]bool   `json:"categories,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// DefaultPreferences returns the settings applied when a user has not
// saved any: push and email on, paid channels off.
func DefaultPreferences(tenantID, userID string) *NotificationPreference {
	return &NotificationPreference{
		TenantID:  tenantID,
		UserID:    userID,
		Email:     true,
		SMS:       false,
		WhatsApp:  false,
		Push:      true,
		Frequency: FrequencyImmediate,
	}
}

// WantsCategory reports whether the user opted into a category.
// Categories absent from the map are opted in.
func (p *NotificationPreference) WantsCategory(category string) bool {
	if p.Categories == nil {
		return true
	}
	enabled, ok := p.Categories[category]
	if !ok {
		return true
	}
	return enabled
}
