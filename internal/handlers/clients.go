package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clientpulse-platform/apps/api/internal/audit"
	"github.com/clientpulse-platform/apps/api/internal/canonical"
	"github.com/clientpulse-platform/apps/api/internal/httpx"
	"github.com/clientpulse-platform/apps/api/internal/middleware"
	"github.com/clientpulse-platform/apps/api/internal/store"
	"github.com/clientpulse-platform/apps/api/internal/validate"
)

type clientResponse struct {
	ID          uuid.UUID        `json:"id"`
	ClientKey   string           `json:"clientKey"`
	CompanyName string           `json:"companyName"`
	RenewalDate *string          `json:"renewalDate,omitempty"`
	MRR         *float64         `json:"mrr,omitempty"`
	Doc         canonical.Record `json:"doc"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type saveClientResponse struct {
	Client   clientResponse `json:"client"`
	Warnings []string       `json:"warnings"`
}

// PutClients accepts one raw client record, sanitizes and validates it,
// then upserts it under its resolved client key.
func (s *Server) PutClients(w http.ResponseWriter, r *http.Request) {
	_, tenantID, userID, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
		return
	}

	sanitized := validate.SanitizeRecord(raw)
	result := validate.ValidateRecord(sanitized)
	if !result.IsValid {
		httpx.WriteError(w, r, http.StatusUnprocessableEntity, "validation_error", "Client record failed validation", map[string]any{
			"errors":   result.Errors,
			"warnings": result.Warnings,
		})
		return
	}

	record := canonical.Record(sanitized)
	clientKey := canonical.ResolveClientID(record)
	if strings.TrimSpace(clientKey) == "" {
		httpx.WriteError(w, r, http.StatusUnprocessableEntity, "validation_error", "Client record failed validation", map[string]any{
			"errors": []string{"Client ID is required and must be a string"},
		})
		return
	}

	saved, err := s.Store.UpsertClient(r.Context(), upsertParamsFromRecord(tenantID, userID, clientKey, record))
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to save client", nil)
		return
	}

	clientID := saved.ID
	_ = s.Audit.Log(r.Context(), audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     "clients.upsert",
		EntityType: "client",
		EntityID:   &clientID,
		RequestID:  middleware.RequestIDFromContext(r.Context()),
		Metadata:   map[string]any{"clientKey": clientKey},
	})

	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, saveClientResponse{
		Client:   mapClient(saved),
		Warnings: warnings,
	})
}

func (s *Server) GetClients(w http.ResponseWriter, r *http.Request) {
	_, tenantID, _, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	company := strings.TrimSpace(r.URL.Query().Get("company"))
	clients, err := s.Store.ListClients(r.Context(), tenantID, company)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to list clients", nil)
		return
	}

	items := make([]clientResponse, 0, len(clients))
	for _, client := range clients {
		items = append(items, mapClient(client))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"clients": items})
}

func (s *Server) GetClientsClientKey(w http.ResponseWriter, r *http.Request, clientKey string) {
	_, tenantID, _, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	client, err := s.Store.GetClientByKey(r.Context(), tenantID, clientKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteError(w, r, http.StatusNotFound, "client_not_found", "Client was not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load client", nil)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mapClient(client))
}

func (s *Server) DeleteClientsClientKey(w http.ResponseWriter, r *http.Request, clientKey string) {
	_, tenantID, userID, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	deleted, err := s.Store.DeleteClientByKey(r.Context(), tenantID, clientKey)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to delete client", nil)
		return
	}
	if deleted == 0 {
		httpx.WriteError(w, r, http.StatusNotFound, "client_not_found", "Client was not found", nil)
		return
	}

	_ = s.Audit.Log(r.Context(), audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     "clients.delete",
		EntityType: "client",
		RequestID:  middleware.RequestIDFromContext(r.Context()),
		Metadata:   map[string]any{"clientKey": clientKey},
	})

	w.WriteHeader(http.StatusNoContent)
}

func upsertParamsFromRecord(tenantID, userID uuid.UUID, clientKey string, record canonical.Record) store.UpsertClientParams {
	params := store.UpsertClientParams{
		TenantID:  tenantID,
		ClientKey: clientKey,
		Doc:       record,
		ActorID:   &userID,
	}
	if name := canonical.ResolveCompanyName(record); name != "" {
		params.CompanyName = name
	}
	if date, ok := canonical.ResolveRenewalDate(record); ok {
		params.RenewalDate = &date
	}
	if mrr, ok := canonical.ResolveMRR(record); ok {
		params.MRR = &mrr
	}
	return params
}

func mapClient(client store.Client) clientResponse {
	resp := clientResponse{
		ID:          client.ID,
		ClientKey:   client.ClientKey,
		CompanyName: client.CompanyName,
		MRR:         client.MRR,
		Doc:         client.Doc,
		CreatedAt:   client.CreatedAt.UTC(),
		UpdatedAt:   client.UpdatedAt.UTC(),
	}
	if client.RenewalDate != nil {
		date := client.RenewalDate.UTC().Format("2006-01-02")
		resp.RenewalDate = &date
	}
	return resp
}

func clientDocs(clients []store.Client) []canonical.Record {
	docs := make([]canonical.Record, 0, len(clients))
	for _, client := range clients {
		if client.Doc != nil {
			docs = append(docs, client.Doc)
		}
	}
	return docs
}
