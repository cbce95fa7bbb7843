//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bissquit/message-garden/internal/testutil"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	return testutil.NewClient(testServer.URL, testutil.RandomTenantID("tenant"))
}

// createTenantUser inserts a directory row and returns the user id.
func createTenantUser(t *testing.T, tenantID, email, phone, role string) string {
	t.Helper()
	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO tenant_users (tenant_id, email, phone, role) VALUES ($1, $2, $3, $4) RETURNING id`,
		tenantID, email, phone, role,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// createFormAccess inserts an open form-access row created the given
// number of days ago and returns its id.
func createFormAccess(t *testing.T, tenantID, userID, email string, daysAgo int) string {
	t.Helper()
	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO form_accesses (tenant_id, user_id, email, status, created_at)
		 VALUES ($1, NULLIF($2, '')::uuid, $3, 'pending', NOW() - $4::int * INTERVAL '1 day')
		 RETURNING id`,
		tenantID, userID, email, daysAgo,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// createTemplate inserts an active message template and returns its id.
func createTemplate(t *testing.T, tenantID, name, subject, bodyHTML string, variables []string) string {
	t.Helper()
	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO message_templates (tenant_id, name, subject, body_html, variables)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		tenantID, name, subject, bodyHTML, variables,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// forceReminderDue rewinds next_reminder_at so the next processing run
// picks the entity up.
func forceReminderDue(t *testing.T, entityID string) {
	t.Helper()
	tag, err := testDB.Exec(context.Background(),
		`UPDATE reminder_logs SET next_reminder_at = NOW() - INTERVAL '1 minute' WHERE entity_id = $1`,
		entityID,
	)
	require.NoError(t, err)
	require.EqualValues(t, 1, tag.RowsAffected())
}

// MailpitClient inspects emails received by the Mailpit container.
type MailpitClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewMailpitClient(host string, port int) *MailpitClient {
	return &MailpitClient{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type mailpitMessage struct {
	Subject string `json:"Subject"`
	To      []struct {
		Address string `json:"Address"`
	} `json:"To"`
}

type mailpitSearchResult struct {
	Total    int              `json:"total"`
	Messages []mailpitMessage `json:"messages"`
}

// Search returns the messages addressed to the given recipient.
func (c *MailpitClient) Search(t *testing.T, recipient string) []mailpitMessage {
	t.Helper()
	url := fmt.Sprintf("%s/api/v1/search?query=to:%s", c.baseURL, recipient)
	resp, err := c.httpClient.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result mailpitSearchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result.Messages
}

// WaitForMessage polls until at least one message for the recipient
// arrives or the deadline passes.
func (c *MailpitClient) WaitForMessage(t *testing.T, recipient string, timeout time.Duration) []mailpitMessage {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if msgs := c.Search(t, recipient); len(msgs) > 0 {
			return msgs
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("no email for %s within %s", recipient, timeout)
	return nil
}
