//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sendNotification(t *testing.T, client *testutil.Client, userIDs []string, title string) []string {
	t.Helper()
	resp, err := client.POST("/api/v1/admin/notifications/send", map[string]any{
		"user_ids": userIDs,
		"title":    title,
		"message":  "integration test notification",
		"type":     "info",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			NotificationIDs []string `json:"notification_ids"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data.NotificationIDs
}

func unreadCount(t *testing.T, client *testutil.Client) int64 {
	t.Helper()
	resp, err := client.GET("/api/v1/notifications/count?unread_only=true")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			Count int64 `json:"count"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data.Count
}

func TestNotifications_SendListReadAll(t *testing.T) {
	admin := newTestClient(t)
	alice := admin.WithActor("alice")

	ids := sendNotification(t, admin, []string{"alice"}, "first")
	require.Len(t, ids, 1)
	sendNotification(t, admin, []string{"alice"}, "second")
	sendNotification(t, admin, []string{"bob"}, "for someone else")

	resp, err := alice.GET("/api/v1/notifications")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Data []domain.Notification `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &list)
	require.Len(t, list.Data, 2)
	assert.False(t, list.Data[0].IsRead)

	assert.Equal(t, int64(2), unreadCount(t, alice))

	resp, err = alice.POST("/api/v1/notifications/read-all", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated struct {
		Data struct {
			Updated int64 `json:"updated"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &updated)
	assert.Equal(t, int64(2), updated.Data.Updated)
	assert.Equal(t, int64(0), unreadCount(t, alice))
}

func TestNotifications_MarkReadAndDelete(t *testing.T) {
	admin := newTestClient(t)
	alice := admin.WithActor("alice")

	ids := sendNotification(t, admin, []string{"alice"}, "to read")
	id := ids[0]

	resp, err := alice.POST("/api/v1/notifications/"+id+"/read", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int64(0), unreadCount(t, alice))

	resp, err = alice.DELETE("/api/v1/notifications/" + id)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// A second delete is a 404.
	resp, err = alice.DELETE("/api/v1/notifications/" + id)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotifications_SendTenant(t *testing.T) {
	admin := newTestClient(t)
	createTenantUser(t, admin.TenantID, "a@test.local", "", "member")
	createTenantUser(t, admin.TenantID, "b@test.local", "", "admin")

	resp, err := admin.POST("/api/v1/admin/notifications/send-tenant", map[string]any{
		"title":   "tenant wide",
		"message": "hello everyone",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			NotificationIDs []string `json:"notification_ids"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Len(t, result.Data.NotificationIDs, 2)
}

func TestNotifications_SendRole(t *testing.T) {
	admin := newTestClient(t)
	createTenantUser(t, admin.TenantID, "a@test.local", "", "member")
	adminUser := createTenantUser(t, admin.TenantID, "b@test.local", "", "admin")

	resp, err := admin.POST("/api/v1/admin/notifications/send-role", map[string]any{
		"role":    "admin",
		"title":   "admins only",
		"message": "hello admins",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			NotificationIDs []string `json:"notification_ids"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.Len(t, result.Data.NotificationIDs, 1)

	assert.Equal(t, int64(1), unreadCount(t, admin.WithActor(adminUser)))
}

func TestNotifications_Preferences(t *testing.T) {
	client := newTestClient(t).WithActor("alice")

	// Defaults before anything is saved.
	resp, err := client.GET("/api/v1/me/preferences")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var prefs struct {
		Data domain.NotificationPreference `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &prefs)
	assert.True(t, prefs.Data.Email)
	assert.False(t, prefs.Data.SMS)
	assert.Equal(t, domain.FrequencyImmediate, prefs.Data.Frequency)

	resp, err = client.PUT("/api/v1/me/preferences", map[string]any{
		"email":     false,
		"push":      true,
		"frequency": "weekly",
		"categories": map[string]bool{
			"marketing": false,
		},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.GET("/api/v1/me/preferences")
	require.NoError(t, err)
	testutil.DecodeJSON(t, resp, &prefs)
	assert.False(t, prefs.Data.Email)
	assert.Equal(t, domain.FrequencyWeekly, prefs.Data.Frequency)
	assert.Equal(t, map[string]bool{"marketing": false}, prefs.Data.Categories)

	// Unknown frequency is rejected.
	resp, err = client.PUT("/api/v1/me/preferences", map[string]any{
		"frequency": "hourly",
	})
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
