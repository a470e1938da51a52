package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/clientpulse-platform/apps/api/internal/auth"
	"github.com/clientpulse-platform/apps/api/internal/canonical"
)

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	email := envOrDefault("SEED_ADMIN_EMAIL", "admin@local.clientpulse")
	password := envOrDefault("SEED_ADMIN_PASSWORD", "Admin12345!")
	fullName := envOrDefault("SEED_ADMIN_NAME", "Local Admin")
	tenantSlug := envOrDefault("SEED_TENANT_SLUG", "local-dev")
	tenantName := envOrDefault("SEED_TENANT_NAME", "Local Dev Tenant")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback(ctx)

	var tenantID uuid.UUID
	if err := tx.QueryRow(ctx, `
		INSERT INTO tenants (slug, name)
		VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, tenantSlug, tenantName).Scan(&tenantID); err != nil {
		log.Fatalf("upsert tenant: %v", err)
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO users (tenant_id, email, full_name, password_hash, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT DO NOTHING
	`, tenantID, email, fullName, passwordHash)
	if err != nil {
		log.Fatalf("insert user: %v", err)
	}

	var userID uuid.UUID
	if err := tx.QueryRow(ctx, `
		SELECT id FROM users WHERE tenant_id = $1 AND lower(email) = lower($2)
	`, tenantID, email).Scan(&userID); err != nil {
		log.Fatalf("find user: %v", err)
	}

	permissionDescriptions := map[string]string{
		"clients.read":   "Read client records",
		"clients.write":  "Create, update, and delete client records",
		"dashboard.read": "Read dashboard summaries and renewal views",
		"imports.run":    "Run data imports and download import reports",
	}

	for perm, description := range permissionDescriptions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO permissions (name, description)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		`, perm, description); err != nil {
			log.Fatalf("insert permission: %v", err)
		}
	}

	roles := map[string]struct {
		description string
		permissions []string
	}{
		"admin": {
			description: "Tenant administrator",
			permissions: []string{"clients.read", "clients.write", "dashboard.read", "imports.run"},
		},
		"csm": {
			description: "Customer success manager",
			permissions: []string{"clients.read", "clients.write", "dashboard.read"},
		},
		"viewer": {
			description: "Read-only dashboard access",
			permissions: []string{"clients.read", "dashboard.read"},
		},
	}

	roleIDs := make(map[string]uuid.UUID, len(roles))
	for roleName, role := range roles {
		var roleID uuid.UUID
		if err := tx.QueryRow(ctx, `
			INSERT INTO roles (tenant_id, name, description)
			VALUES ($1, $2, $3)
			ON CONFLICT (tenant_id, name) DO UPDATE SET description = EXCLUDED.description
			RETURNING id
		`, tenantID, roleName, role.description).Scan(&roleID); err != nil {
			log.Fatalf("upsert role %s: %v", roleName, err)
		}
		roleIDs[roleName] = roleID

		for _, perm := range role.permissions {
			if _, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id)
				SELECT $1, p.id FROM permissions p WHERE p.name = $2
				ON CONFLICT DO NOTHING
			`, roleID, perm); err != nil {
				log.Fatalf("insert role permission: %v", err)
			}
		}
	}

	adminRoleID := roleIDs["admin"]
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, tenant_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, userID, adminRoleID, tenantID); err != nil {
		log.Fatalf("insert user role: %v", err)
	}

	if envOrDefault("SEED_DEMO_CLIENTS", "true") == "true" {
		if err := seedDemoClients(ctx, tx, tenantID, userID); err != nil {
			log.Fatalf("seed demo clients: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("commit tx: %v", err)
	}

	fmt.Printf("Seed completed. Tenant=%s, admin=%s, password=%s\n", tenantSlug, email, password)
}

// seedDemoClients gives a fresh tenant a small portfolio so the dashboard and
// renewal views render something out of the box.
func seedDemoClients(ctx context.Context, tx pgx.Tx, tenantID, userID uuid.UUID) error {
	now := time.Now().UTC()
	demo := []struct {
		key     string
		company string
		renewal time.Time
		mrr     float64
		record  canonical.Record
	}{
		{
			key: "acme-001", company: "Acme Corp",
			renewal: now.AddDate(0, 1, 0), mrr: 4200,
			record: canonical.Record{
				"client":  map[string]any{"id": "acme-001"},
				"company": map[string]any{"name": "Acme Corp"},
				"contact": map[string]any{"name": "Jane Doe", "email": "jane@acme.com"},
				"health":  map[string]any{"score": 82.0},
				"usage":   map[string]any{"last30d": 64.0},
				"churn":   map[string]any{"risk": "low"},
				"csm":     map[string]any{"owner": "Sam Rivera"},
				"mrr":     4200.0,
			},
		},
		{
			key: "globex-002", company: "Globex",
			renewal: now.AddDate(0, 2, 0), mrr: 1800,
			record: canonical.Record{
				"client":  map[string]any{"id": "globex-002"},
				"company": map[string]any{"name": "Globex"},
				"health":  map[string]any{"score": 44.0},
				"churn":   map[string]any{"risk": "high"},
				"mrr":     1800.0,
			},
		},
		{
			key: "initech-003", company: "Initech",
			renewal: now.AddDate(0, 6, 0), mrr: 950,
			record: canonical.Record{
				"client":   map[string]any{"id": "initech-003"},
				"company":  map[string]any{"name": "Initech"},
				"contact":  map[string]any{"name": "Bill Lumbergh", "email": "bill@initech.com"},
				"health":   map[string]any{"score": 61.0},
				"churn":    map[string]any{"risk": "medium"},
				"contract": map[string]any{"value": 11400.0},
				"mrr":      950.0,
			},
		},
	}

	for _, client := range demo {
		renewal := client.renewal.Format("2006-01-02")
		client.record.Set("renewal.date", renewal)
		doc, err := json.Marshal(client.record)
		if err != nil {
			return fmt.Errorf("marshal demo client %s: %w", client.key, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO clients (tenant_id, client_key, doc, company_name, renewal_date, mrr, created_by, updated_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (tenant_id, client_key) DO NOTHING
		`, tenantID, client.key, doc, client.company, renewal, client.mrr, userID); err != nil {
			return fmt.Errorf("insert demo client %s: %w", client.key, err)
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
