package notify

import "errors"

// Domain errors for the notify module.
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrPreferencesNotFound  = errors.New("notification preferences not found")
	ErrNoRecipients         = errors.New("no recipients resolved")
	ErrValidation           = errors.New("validation error")
)
