package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/clientpulse-platform/apps/api/internal/auth"
	"github.com/clientpulse-platform/apps/api/internal/config"
	"github.com/clientpulse-platform/apps/api/internal/store"
)

func TestTenantIsolation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, _ = seedTenantUser(t, ctx, env.pool, "tenant-a", "Tenant A", "a@example.com", "Password123!", []string{"clients.read", "clients.write"})
	_, _ = seedTenantUser(t, ctx, env.pool, "tenant-b", "Tenant B", "b@example.com", "Password123!", []string{"clients.read"})

	cookieA := login(t, env.router, "a@example.com", "Password123!")
	csrfA := csrfToken(t, env.router, cookieA)
	clientKey := saveClient(t, env.router, cookieA, csrfA, "acme-1", "Acme Corp")

	cookieB := login(t, env.router, "b@example.com", "Password123!")
	status, _ := request(t, env.router, http.MethodGet, "/api/clients/"+clientKey, nil, cookieB, "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-tenant read, got %d", status)
	}
}

func TestRBACDeniesRead(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	tenantID, _ := seedTenantUser(t, ctx, env.pool, "tenant-rbac", "Tenant RBAC", "writer@example.com", "Password123!", []string{"clients.write"})
	_, _ = seedUserInTenant(t, ctx, env.pool, tenantID, "admin@example.com", "Password123!", []string{"clients.read", "clients.write"})

	adminCookie := login(t, env.router, "admin@example.com", "Password123!")
	adminCsrf := csrfToken(t, env.router, adminCookie)
	clientKey := saveClient(t, env.router, adminCookie, adminCsrf, "globex-1", "Globex")

	writerCookie := login(t, env.router, "writer@example.com", "Password123!")
	status, _ := request(t, env.router, http.MethodGet, "/api/clients/"+clientKey, nil, writerCookie, "")
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for missing clients.read, got %d", status)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, _ = seedTenantUser(t, ctx, env.pool, "tenant-session", "Tenant Session", "session@example.com", "Password123!", []string{"clients.read"})

	cookie := login(t, env.router, "session@example.com", "Password123!")
	status, _ := request(t, env.router, http.MethodGet, "/api/auth/me", nil, cookie, "")
	if status != http.StatusOK {
		t.Fatalf("expected 200 before logout, got %d", status)
	}

	csrf := csrfToken(t, env.router, cookie)
	status, _ = request(t, env.router, http.MethodPost, "/api/auth/logout", nil, cookie, csrf)
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 logout response, got %d", status)
	}

	status, _ = request(t, env.router, http.MethodGet, "/api/auth/me", nil, cookie, "")
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", status)
	}
}

func TestSaveClientRejectsInvalidRecord(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, _ = seedTenantUser(t, ctx, env.pool, "tenant-invalid", "Tenant Invalid", "invalid@example.com", "Password123!", []string{"clients.read", "clients.write"})

	cookie := login(t, env.router, "invalid@example.com", "Password123!")
	csrf := csrfToken(t, env.router, cookie)

	payload, _ := json.Marshal(map[string]any{
		"client_id":    "bad-1",
		"company_name": "Bad Co",
		"health_score": 150,
		"churn_risk":   "catastrophic",
	})
	status, body := request(t, env.router, http.MethodPut, "/api/clients", payload, cookie, csrf)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for invalid record, got %d (%s)", status, string(body))
	}
}

func TestImportDryRunDoesNotPersist(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	tenantID, _ := seedTenantUser(t, ctx, env.pool, "tenant-import-dry", "Tenant Import Dry", "dry@example.com", "Password123!", []string{"clients.read", "clients.write", "imports.run"})

	cookie := login(t, env.router, "dry@example.com", "Password123!")
	csrf := csrfToken(t, env.router, cookie)

	csvData := "client_id,company_name,mrr\nc-1,Initech,1200\nc-2,,900\n"
	status, body := uploadImport(t, env.router, cookie, csrf, "/api/imports/dry-run", csvData)
	if status != http.StatusOK {
		t.Fatalf("expected 200 dry run, got %d (%s)", status, string(body))
	}

	var run struct {
		TotalRows   int `json:"totalRows"`
		ValidRows   int `json:"validRows"`
		InvalidRows int `json:"invalidRows"`
		AppliedRows int `json:"appliedRows"`
	}
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatalf("parse run body: %v", err)
	}
	if run.TotalRows != 2 || run.ValidRows != 1 || run.InvalidRows != 1 {
		t.Fatalf("unexpected row counts: %+v", run)
	}
	if run.AppliedRows != 0 {
		t.Fatalf("dry run must not apply rows, got %d", run.AppliedRows)
	}

	var count int
	if err := env.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients WHERE tenant_id = $1`, tenantID).Scan(&count); err != nil {
		t.Fatalf("count clients: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 clients after dry run, got %d", count)
	}
}

func TestImportApplyPersistsValidRows(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	tenantID, _ := seedTenantUser(t, ctx, env.pool, "tenant-import-apply", "Tenant Import Apply", "apply@example.com", "Password123!", []string{"clients.read", "clients.write", "imports.run"})

	cookie := login(t, env.router, "apply@example.com", "Password123!")
	csrf := csrfToken(t, env.router, cookie)

	csvData := "client_id,company_name,mrr\nc-1,Initech,1200\nc-2,,900\nc-3,Umbrella,4100\n"
	status, body := uploadImport(t, env.router, cookie, csrf, "/api/imports/apply", csvData)
	if status != http.StatusOK {
		t.Fatalf("expected 200 apply, got %d (%s)", status, string(body))
	}

	var run struct {
		ID          string `json:"id"`
		AppliedRows int    `json:"appliedRows"`
		InvalidRows int    `json:"invalidRows"`
	}
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatalf("parse run body: %v", err)
	}
	if run.AppliedRows != 2 || run.InvalidRows != 1 {
		t.Fatalf("unexpected apply counts: %+v", run)
	}

	var count int
	if err := env.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients WHERE tenant_id = $1`, tenantID).Scan(&count); err != nil {
		t.Fatalf("count clients: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 clients after apply, got %d", count)
	}

	status, body = request(t, env.router, http.MethodGet, "/api/imports/"+run.ID+"/errors.csv", nil, cookie, "")
	if status != http.StatusOK {
		t.Fatalf("expected 200 errors.csv, got %d (%s)", status, string(body))
	}
	if !bytes.Contains(body, []byte("Company name is required")) {
		t.Fatalf("errors.csv missing validation message: %s", string(body))
	}
}

func TestDashboardSummary(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, _ = seedTenantUser(t, ctx, env.pool, "tenant-dash", "Tenant Dash", "dash@example.com", "Password123!", []string{"clients.read", "clients.write", "dashboard.read"})

	cookie := login(t, env.router, "dash@example.com", "Password123!")
	csrf := csrfToken(t, env.router, cookie)

	payload, _ := json.Marshal(map[string]any{
		"client_id":    "dash-1",
		"company_name": "Hooli",
		"mrr":          2000,
		"health_score": 80,
	})
	status, body := request(t, env.router, http.MethodPut, "/api/clients", payload, cookie, csrf)
	if status != http.StatusOK {
		t.Fatalf("save client expected 200, got %d (%s)", status, string(body))
	}

	status, body = request(t, env.router, http.MethodGet, "/api/dashboard/summary", nil, cookie, "")
	if status != http.StatusOK {
		t.Fatalf("summary expected 200, got %d (%s)", status, string(body))
	}
	var summary struct {
		TotalClients    int    `json:"totalClients"`
		AtRisk          int    `json:"atRisk"`
		TotalMRRDisplay string `json:"totalMrrDisplay"`
	}
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatalf("parse summary: %v", err)
	}
	if summary.TotalClients != 1 || summary.AtRisk != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.TotalMRRDisplay != "$2K" {
		t.Fatalf("expected $2K display, got %q", summary.TotalMRRDisplay)
	}
}

type testEnv struct {
	pool   *pgxpool.Pool
	router http.Handler
}

func setupTestEnv(t *testing.T) testEnv {
	t.Helper()
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect test db: %v", err)
	}
	t.Cleanup(pool.Close)

	resetSchema(t, ctx, pool, databaseURL)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		Addr:               ":0",
		DatabaseURL:        databaseURL,
		SessionCookieName:  "cp_sess",
		SessionTTL:         12 * time.Hour,
		SecureCookies:      false,
		CSRFEnforce:        true,
		Env:                "test",
		ImportMaxRows:      5000,
		RenewalHorizonDays: 90,
		OpenAPISpecPath:    filepath.Join("..", "..", "openapi.yaml"),
	}

	router, err := NewRouter(cfg, store.New(pool), logger)
	if err != nil {
		t.Fatalf("create router: %v", err)
	}

	return testEnv{pool: pool, router: router}
}

func resetSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool, databaseURL string) {
	t.Helper()

	if _, err := pool.Exec(ctx, `DROP SCHEMA public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		t.Fatalf("open migration db: %v", err)
	}
	defer db.Close()

	migrationsDir := filepath.Join("..", "..", "migrations")
	if err := goose.Up(db, migrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
}

func seedTenantUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, slug, name, email, password string, permissions []string) (uuid.UUID, uuid.UUID) {
	t.Helper()
	var tenantID uuid.UUID
	if err := pool.QueryRow(ctx, `INSERT INTO tenants (slug, name) VALUES ($1, $2) RETURNING id`, slug, name).Scan(&tenantID); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	userID, _ := seedUserInTenant(t, ctx, pool, tenantID, email, password, permissions)
	return tenantID, userID
}

func seedUserInTenant(t *testing.T, ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, email, password string, permissions []string) (uuid.UUID, uuid.UUID) {
	t.Helper()
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var userID uuid.UUID
	if err := pool.QueryRow(ctx, `
		INSERT INTO users (tenant_id, email, full_name, password_hash, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id
	`, tenantID, email, email, passwordHash).Scan(&userID); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	var roleID uuid.UUID
	roleName := "role_" + userID.String()[:8]
	if err := pool.QueryRow(ctx, `
		INSERT INTO roles (tenant_id, name, description)
		VALUES ($1, $2, 'test role')
		RETURNING id
	`, tenantID, roleName).Scan(&roleID); err != nil {
		t.Fatalf("seed role: %v", err)
	}

	if _, err := pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, tenant_id) VALUES ($1, $2, $3)`, userID, roleID, tenantID); err != nil {
		t.Fatalf("seed user role: %v", err)
	}

	for _, perm := range permissions {
		if _, err := pool.Exec(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`, perm, "test"); err != nil {
			t.Fatalf("seed permission: %v", err)
		}
		if _, err := pool.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, id FROM permissions WHERE name = $2
		`, roleID, perm); err != nil {
			t.Fatalf("seed role permission: %v", err)
		}
	}

	return userID, roleID
}

func login(t *testing.T, router http.Handler, email, password string) *http.Cookie {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.1:12345"
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		body, _ := io.ReadAll(rec.Result().Body)
		t.Fatalf("login expected 200, got %d with body: %s", rec.Code, string(body))
	}

	for _, c := range rec.Result().Cookies() {
		if c.Name == "cp_sess" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func csrfToken(t *testing.T, router http.Handler, session *http.Cookie) string {
	t.Helper()
	status, body := request(t, router, http.MethodGet, "/api/auth/csrf", nil, session, "")
	if status != http.StatusOK {
		t.Fatalf("csrf expected 200, got %d (%s)", status, string(body))
	}
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("parse csrf body: %v", err)
	}
	return payload["csrfToken"]
}

func saveClient(t *testing.T, router http.Handler, session *http.Cookie, csrf, clientID, companyName string) string {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{
		"client_id":    clientID,
		"company_name": companyName,
		"mrr":          1000,
		"health_score": 75,
	})
	status, body := request(t, router, http.MethodPut, "/api/clients", payload, session, csrf)
	if status != http.StatusOK {
		t.Fatalf("save client expected 200, got %d (%s)", status, string(body))
	}
	var saved struct {
		Client struct {
			ClientKey string `json:"clientKey"`
		} `json:"client"`
	}
	if err := json.Unmarshal(body, &saved); err != nil {
		t.Fatalf("parse client body: %v", err)
	}
	if saved.Client.ClientKey == "" {
		t.Fatalf("client key missing")
	}
	return saved.Client.ClientKey
}

func uploadImport(t *testing.T, router http.Handler, session *http.Cookie, csrf, path, csvData string) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "clients.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(csvData)); err != nil {
		t.Fatalf("write csv part: %v", err)
	}
	options, _ := json.Marshal(map[string]any{
		"hasHeader": true,
		"mapping": map[string]string{
			"client_id":    "client.id",
			"company_name": "company.name",
			"mrr":          "mrr",
		},
	})
	if err := writer.WriteField("options", string(options)); err != nil {
		t.Fatalf("write options field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.RemoteAddr = "127.0.0.1:12345"
	if session != nil {
		req.AddCookie(session)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	resBody, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, resBody
}

func request(t *testing.T, router http.Handler, method, path string, body []byte, session *http.Cookie, csrf string, extraHeaders ...map[string]string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:12345"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != nil {
		req.AddCookie(session)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	for _, headers := range extraHeaders {
		for key, value := range headers {
			req.Header.Set(key, value)
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	resBody, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, resBody
}
