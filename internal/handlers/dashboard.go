package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/clientpulse-platform/apps/api/internal/httpx"
	"github.com/clientpulse-platform/apps/api/internal/metrics"
)

type dashboardSummaryResponse struct {
	TotalClients       int             `json:"totalClients"`
	AtRisk             int             `json:"atRisk"`
	TotalMRR           float64         `json:"totalMrr"`
	TotalMRRDisplay    string          `json:"totalMrrDisplay"`
	AvgHealth          int             `json:"avgHealth"`
	AvgHealthDisplay   string          `json:"avgHealthDisplay"`
	UnlockedDashboards map[string]bool `json:"unlockedDashboards"`
}

type renewalResponse struct {
	ClientID         string  `json:"clientId"`
	CompanyName      string  `json:"companyName"`
	RenewalDate      string  `json:"renewalDate"`
	RenewalDisplay   string  `json:"renewalDisplay"`
	ContractValue    float64 `json:"contractValue"`
	ContractDisplay  string  `json:"contractDisplay"`
	MRR              float64 `json:"mrr"`
	HealthScore      float64 `json:"healthScore"`
	ChurnRisk        string  `json:"churnRisk"`
	ContactName      string  `json:"contactName"`
	CSMOwner         string  `json:"csmOwner"`
	DaysUntilRenewal int     `json:"daysUntilRenewal"`
}

func (s *Server) GetDashboardSummary(w http.ResponseWriter, r *http.Request) {
	_, tenantID, _, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	clients, err := s.Store.ListClients(r.Context(), tenantID, "")
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load clients", nil)
		return
	}

	docs := clientDocs(clients)
	totals := metrics.CalcTotals(docs)

	httpx.WriteJSON(w, http.StatusOK, dashboardSummaryResponse{
		TotalClients:       totals.TotalClients,
		AtRisk:             totals.AtRisk,
		TotalMRR:           totals.TotalMRR,
		TotalMRRDisplay:    metrics.FormatCurrency(totals.TotalMRR),
		AvgHealth:          totals.AvgHealth,
		AvgHealthDisplay:   metrics.FormatPercentage(float64(totals.AvgHealth)),
		UnlockedDashboards: metrics.Unlocks(docs),
	})
}

func (s *Server) GetDashboardRenewals(w http.ResponseWriter, r *http.Request) {
	_, tenantID, _, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	days := s.Config.RenewalHorizonDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "days must be a non-negative integer", nil)
			return
		}
		days = parsed
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "limit must be a non-negative integer", nil)
			return
		}
		limit = parsed
	}

	clients, err := s.Store.ListClients(r.Context(), tenantID, "")
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load clients", nil)
		return
	}

	now := time.Now().UTC()
	renewals := metrics.NextRenewals(clientDocs(clients), now, days, limit)
	items := make([]renewalResponse, 0, len(renewals))
	for _, renewal := range renewals {
		items = append(items, renewalResponse{
			ClientID:         renewal.ClientID,
			CompanyName:      renewal.CompanyName,
			RenewalDate:      renewal.RenewalDate,
			RenewalDisplay:   metrics.FormatRelativeDate(renewal.RenewalDate, now),
			ContractValue:    renewal.ContractValue,
			ContractDisplay:  metrics.FormatCurrency(renewal.ContractValue),
			MRR:              renewal.MRR,
			HealthScore:      renewal.HealthScore,
			ChurnRisk:        renewal.ChurnRisk,
			ContactName:      renewal.ContactName,
			CSMOwner:         renewal.CSMOwner,
			DaysUntilRenewal: renewal.DaysUntilRenewal,
		})
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"renewals": items,
		"days":     days,
	})
}
