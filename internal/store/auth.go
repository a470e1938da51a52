package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type UserWithTenant struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	TenantSlug   string
	TenantName   string
}

func (s *Store) ListUsersByEmail(ctx context.Context, email string) ([]UserWithTenant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.tenant_id, u.email, u.full_name, u.password_hash, u.is_active, t.slug, t.name
		FROM users u
		JOIN tenants t ON t.id = u.tenant_id
		WHERE u.email = $1
	`, email)
	if err != nil {
		return nil, fmt.Errorf("list users by email: %w", err)
	}
	defer rows.Close()

	users := []UserWithTenant{}
	for rows.Next() {
		var user UserWithTenant
		if err := rows.Scan(&user.ID, &user.TenantID, &user.Email, &user.FullName, &user.PasswordHash, &user.IsActive, &user.TenantSlug, &user.TenantName); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type CreateSessionParams struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CsrfToken string
	ExpiresAt time.Time
}

func (s *Store) CreateSession(ctx context.Context, params CreateSessionParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (tenant_id, user_id, token_hash, csrf_token, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, params.TenantID, params.UserID, params.TokenHash, params.CsrfToken, params.ExpiresAt).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

type SessionPrincipal struct {
	SessionID  uuid.UUID
	UserID     uuid.UUID
	TenantID   uuid.UUID
	Email      string
	FullName   string
	TenantSlug string
	TenantName string
	CsrfToken  string
	ExpiresAt  time.Time
}

func (s *Store) GetSessionPrincipalByTokenHash(ctx context.Context, tokenHash string) (SessionPrincipal, error) {
	var principal SessionPrincipal
	err := s.pool.QueryRow(ctx, `
		SELECT se.id, u.id, u.tenant_id, u.email, u.full_name, t.slug, t.name, se.csrf_token, se.expires_at
		FROM sessions se
		JOIN users u ON u.id = se.user_id
		JOIN tenants t ON t.id = u.tenant_id
		WHERE se.token_hash = $1
		  AND se.revoked_at IS NULL
		  AND se.expires_at > now()
		  AND u.is_active
	`, tokenHash).Scan(
		&principal.SessionID,
		&principal.UserID,
		&principal.TenantID,
		&principal.Email,
		&principal.FullName,
		&principal.TenantSlug,
		&principal.TenantName,
		&principal.CsrfToken,
		&principal.ExpiresAt,
	)
	if err != nil {
		return SessionPrincipal{}, err
	}
	return principal, nil
}

func (s *Store) TouchSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET last_seen_at = now() WHERE id = $1`, sessionID)
	return err
}

func (s *Store) RevokeSessionByTokenHash(ctx context.Context, tokenHash string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, tokenHash)
	if err != nil {
		return 0, fmt.Errorf("revoke session: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) RevokeSessionByID(ctx context.Context, sessionID, tenantID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = now()
		WHERE id = $1 AND tenant_id = $2 AND revoked_at IS NULL
	`, sessionID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("revoke session: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) UserHasPermission(ctx context.Context, userID, tenantID uuid.UUID, permission string) (bool, error) {
	var has bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM user_roles ur
			JOIN role_permissions rp ON rp.role_id = ur.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE ur.user_id = $1 AND ur.tenant_id = $2 AND p.name = $3
		)
	`, userID, tenantID, permission).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}
	return has, nil
}
