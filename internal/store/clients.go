package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clientpulse-platform/apps/api/internal/canonical"
)

// Client is a persisted canonical client record. The full document lives in
// the doc JSONB column; company name, renewal date and MRR are extracted
// into typed columns for filtering and exports.
type Client struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ClientKey   string
	Doc         canonical.Record
	CompanyName string
	RenewalDate *time.Time
	MRR         *float64
	CreatedBy   *uuid.UUID
	UpdatedBy   *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type UpsertClientParams struct {
	TenantID    uuid.UUID
	ClientKey   string
	Doc         canonical.Record
	CompanyName string
	RenewalDate *time.Time
	MRR         *float64
	ActorID     *uuid.UUID
}

const clientColumns = `id, tenant_id, client_key, doc, company_name, renewal_date, mrr, created_by, updated_by, created_at, updated_at`

func (s *Store) UpsertClient(ctx context.Context, params UpsertClientParams) (Client, error) {
	doc, err := json.Marshal(params.Doc)
	if err != nil {
		return Client{}, fmt.Errorf("marshal client doc: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO clients (tenant_id, client_key, doc, company_name, renewal_date, mrr, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (tenant_id, client_key) DO UPDATE SET
			doc = EXCLUDED.doc,
			company_name = EXCLUDED.company_name,
			renewal_date = EXCLUDED.renewal_date,
			mrr = EXCLUDED.mrr,
			updated_by = EXCLUDED.updated_by,
			updated_at = now()
		RETURNING `+clientColumns,
		params.TenantID, params.ClientKey, doc, params.CompanyName, params.RenewalDate, params.MRR, params.ActorID)
	return scanClient(row)
}

func (s *Store) GetClientByKey(ctx context.Context, tenantID uuid.UUID, clientKey string) (Client, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE tenant_id = $1 AND client_key = $2
	`, tenantID, clientKey)
	return scanClient(row)
}

// ListClients returns the tenant's portfolio ordered by company name. A
// non-empty company filter narrows with a case-insensitive prefix match.
func (s *Store) ListClients(ctx context.Context, tenantID uuid.UUID, company string) ([]Client, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE tenant_id = $1
		  AND ($2 = '' OR company_name ILIKE $2 || '%')
		ORDER BY company_name, client_key
	`, tenantID, company)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := []Client{}
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func (s *Store) DeleteClientByKey(ctx context.Context, tenantID uuid.UUID, clientKey string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM clients WHERE tenant_id = $1 AND client_key = $2
	`, tenantID, clientKey)
	if err != nil {
		return 0, fmt.Errorf("delete client: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (Client, error) {
	var client Client
	var doc []byte
	if err := row.Scan(
		&client.ID,
		&client.TenantID,
		&client.ClientKey,
		&doc,
		&client.CompanyName,
		&client.RenewalDate,
		&client.MRR,
		&client.CreatedBy,
		&client.UpdatedBy,
		&client.CreatedAt,
		&client.UpdatedAt,
	); err != nil {
		return Client{}, err
	}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &client.Doc); err != nil {
			return Client{}, fmt.Errorf("unmarshal client doc: %w", err)
		}
	}
	return client, nil
}
