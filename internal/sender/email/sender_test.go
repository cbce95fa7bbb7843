package email

import (
	"context"
	"testing"

	"github.com/bissquit/message-garden/internal/sender"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSender_Validation(t *testing.T) {
	_, err := NewSender(Config{Enabled: true, FromAddress: "noreply@example.com"})
	assert.Error(t, err, "enabled sender requires an SMTP host")

	_, err = NewSender(Config{Enabled: true, SMTPHost: "smtp.example.com"})
	assert.Error(t, err, "enabled sender requires a from address")

	s, err := NewSender(Config{})
	require.NoError(t, err, "disabled sender needs no config")
	assert.ErrorIs(t, s.Send(context.Background(), "user@example.com", "hi", "", "hi"), sender.ErrNotConfigured)
}

func TestBuildMessage(t *testing.T) {
	s := &Sender{config: Config{FromAddress: "Garden <noreply@example.com>"}}

	t.Run("text only", func(t *testing.T) {
		msg := string(s.buildMessage("user@example.com", "hi", "", "plain body"))
		assert.Contains(t, msg, "Content-Type: text/plain")
		assert.Contains(t, msg, "plain body")
		// No multipart wrapper around a single body: an empty HTML
		// alternative would render blank in HTML-preferring clients.
		assert.NotContains(t, msg, "multipart/alternative")
		assert.NotContains(t, msg, "text/html")
	})

	t.Run("html only", func(t *testing.T) {
		msg := string(s.buildMessage("user@example.com", "hi", "<p>rich</p>", ""))
		assert.Contains(t, msg, "Content-Type: text/html")
		assert.Contains(t, msg, "<p>rich</p>")
		assert.NotContains(t, msg, "multipart/alternative")
	})

	t.Run("both bodies", func(t *testing.T) {
		msg := string(s.buildMessage("user@example.com", "hi", "<p>rich</p>", "plain"))
		assert.Contains(t, msg, "multipart/alternative")
		assert.Contains(t, msg, "Content-Type: text/plain")
		assert.Contains(t, msg, "plain")
		assert.Contains(t, msg, "Content-Type: text/html")
		assert.Contains(t, msg, "<p>rich</p>")
	})
}
