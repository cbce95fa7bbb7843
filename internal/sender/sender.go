// Package sender defines the outbound channel contracts the rest of the
// engine depends on. Provider implementations live in subpackages and
// are selected once at startup; core code never discovers providers per
// call.
package sender

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotConfigured is returned when a channel sender is disabled or has
// no provider wired. Callers degrade to a recorded failed send instead
// of crashing.
var ErrNotConfigured = errors.New("channel sender not configured")

// ErrInvalidPhoneNumber is returned before any provider call when the
// recipient does not look like a phone number.
var ErrInvalidPhoneNumber = errors.New("invalid phone number format")

// Result is the send-and-report contract shared by the SMS and WhatsApp
// senders: an outcome flag, the provider's message id when available,
// and the error that explains a failure.
type Result struct {
	Success           bool
	ProviderMessageID string
	Err               error
}

// Failure builds a failed Result.
func Failure(err error) Result {
	return Result{Success: false, Err: err}
}

// EmailSender delivers a single email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// SMSSender delivers a single SMS message.
type SMSSender interface {
	Send(ctx context.Context, tenantID, to, message string) Result
}

// WhatsAppSender delivers WhatsApp messages in their three flavors.
type WhatsAppSender interface {
	SendText(ctx context.Context, tenantID, to, message string) Result
	SendTemplate(ctx context.Context, tenantID, to, templateName string, params []string) Result
	SendMedia(ctx context.Context, tenantID, to, mediaURL, caption string) Result
}

// E.164-ish: optional +, 7 to 15 digits, no leading zero.
var phoneRe = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

// ValidPhone reports whether s has a plausible phone number shape.
func ValidPhone(s string) bool {
	return phoneRe.MatchString(s)
}

// RetryableError indicates a temporary provider failure worth retrying.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }

// PermanentError indicates a provider failure that retrying cannot fix.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }
