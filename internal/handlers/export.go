package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/clientpulse-platform/apps/api/internal/audit"
	"github.com/clientpulse-platform/apps/api/internal/canonical"
	"github.com/clientpulse-platform/apps/api/internal/httpx"
	"github.com/clientpulse-platform/apps/api/internal/middleware"
)

func (s *Server) GetExportsClientsCsv(w http.ResponseWriter, r *http.Request) {
	s.writeExportCSV(w, r, "clients", "clients.csv", func(writer *csv.Writer, tenantID uuid.UUID) error {
		clients, err := s.Store.ListClients(r.Context(), tenantID, "")
		if err != nil {
			return err
		}
		_ = writer.Write([]string{"client_key", "company_name", "contact_name", "contact_email", "csm_owner", "churn_risk", "health_score", "mrr", "contract_value", "renewal_date", "created_at", "updated_at"})
		for _, client := range clients {
			record := client.Doc
			healthScore := ""
			if score, ok := canonical.ResolveHealthScore(record); ok {
				healthScore = strconv.FormatFloat(score, 'f', -1, 64)
			}
			mrr := ""
			if client.MRR != nil {
				mrr = strconv.FormatFloat(*client.MRR, 'f', -1, 64)
			}
			contractValue := ""
			if value, ok := canonical.ResolveContractValue(record); ok {
				contractValue = strconv.FormatFloat(value, 'f', -1, 64)
			}
			renewalDate := ""
			if client.RenewalDate != nil {
				renewalDate = client.RenewalDate.UTC().Format("2006-01-02")
			}
			churnRisk := canonical.ResolveChurnRisk(record)
			contactName := canonical.ResolveContactName(record)
			csmOwner := canonical.ResolveCSMOwner(record)
			contactEmail := ""
			if value, ok := record.Get("contact.email"); ok {
				if text, isString := value.(string); isString {
					contactEmail = text
				}
			} else if value, ok := record["contact_email"]; ok {
				if text, isString := value.(string); isString {
					contactEmail = text
				}
			}

			_ = writer.Write([]string{
				client.ClientKey,
				client.CompanyName,
				contactName,
				contactEmail,
				csmOwner,
				churnRisk,
				healthScore,
				mrr,
				contractValue,
				renewalDate,
				client.CreatedAt.UTC().Format(time.RFC3339),
				client.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		return nil
	})
}

func (s *Server) writeExportCSV(w http.ResponseWriter, r *http.Request, entityType, filename string, writerFunc func(writer *csv.Writer, tenantID uuid.UUID) error) {
	_, tenantID, userID, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	writer := csv.NewWriter(w)
	if err := writerFunc(writer, tenantID); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to generate export CSV", nil)
		return
	}
	writer.Flush()
	if writer.Error() != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to stream export CSV", nil)
		return
	}

	_ = s.Audit.Log(r.Context(), audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     "export.download",
		EntityType: entityType,
		RequestID:  middleware.RequestIDFromContext(r.Context()),
		Metadata: map[string]any{
			"filename": filename,
			"entity":   entityType,
		},
	})
}
