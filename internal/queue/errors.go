package queue

import "errors"

// Service errors.
var (
	// ErrValidation covers malformed recipients, empty content and
	// missing template variables. Surfaced synchronously to callers.
	ErrValidation = errors.New("validation error")

	// ErrMessageNotFound is returned when a durable record is missing.
	ErrMessageNotFound = errors.New("queued message not found")

	// ErrTemplateNotFound is returned when a template is missing or
	// inactive for the tenant.
	ErrTemplateNotFound = errors.New("message template not found")
)
