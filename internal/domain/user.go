package domain

import "time"

// TenantUser is the directory view of a user consumed from the
// tenant/user/role collaborator. Only the fields needed to resolve
// recipient sets and contact targets are exposed here.
type TenantUser struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// Communication is an audit row written by the SMS and WhatsApp senders
// for every attempt, successful or not.
type Communication struct {
	ID                string        `json:"id"`
	TenantID          string        `json:"tenant_id"`
	Channel           string        `json:"channel"`
	Recipient         string        `json:"recipient"`
	Body              string        `json:"body"`
	Status            MessageStatus `json:"status"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}
