// Package postgres reads the tenant/user/role directory consumed from
// the surrounding application. This subsystem never writes to it.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound is returned when a contact lookup misses.
var ErrUserNotFound = errors.New("user not found in directory")

// Repository implements notify.Directory against the tenant_users table.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new directory repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListActiveUserIDs returns every active user of a tenant.
func (r *Repository) ListActiveUserIDs(ctx context.Context, tenantID string) ([]string, error) {
	query := `SELECT id FROM tenant_users WHERE tenant_id = $1 AND is_active = TRUE`
	return r.listIDs(ctx, query, tenantID)
}

// ListUserIDsByRole returns the tenant's active users holding a role.
func (r *Repository) ListUserIDsByRole(ctx context.Context, tenantID, role string) ([]string, error) {
	query := `SELECT id FROM tenant_users WHERE tenant_id = $1 AND role = $2 AND is_active = TRUE`
	return r.listIDs(ctx, query, tenantID, role)
}

// GetContact loads a user's contact targets.
func (r *Repository) GetContact(ctx context.Context, tenantID, userID string) (*domain.TenantUser, error) {
	query := `
		SELECT id, tenant_id, email, phone, role, is_active
		FROM tenant_users
		WHERE tenant_id = $1 AND id = $2
	`
	var u domain.TenantUser
	err := r.db.QueryRow(ctx, query, tenantID, userID).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.Phone, &u.Role, &u.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &u, nil
}

func (r *Repository) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
