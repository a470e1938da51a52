package handlers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clientpulse-platform/apps/api/internal/audit"
	"github.com/clientpulse-platform/apps/api/internal/canonical"
	"github.com/clientpulse-platform/apps/api/internal/httpx"
	"github.com/clientpulse-platform/apps/api/internal/mapper"
	"github.com/clientpulse-platform/apps/api/internal/middleware"
	"github.com/clientpulse-platform/apps/api/internal/store"
	"github.com/clientpulse-platform/apps/api/internal/validate"
)

const (
	importSeverityError = "error"
	importSeverityWarn  = "warning"
	importSeverityInfo  = "info"
)

var supportedCSVContentTypes = map[string]struct{}{
	"text/csv":                 {},
	"application/csv":          {},
	"application/vnd.ms-excel": {},
}

type importMode string

const (
	importModeDryRun importMode = "dry_run"
	importModeApply  importMode = "apply"
)

type importOptionsPayload struct {
	HasHeader *bool             `json:"hasHeader,omitempty"`
	Mapping   map[string]string `json:"mapping"`
}

type parsedImportFile struct {
	filename  string
	options   importOptionsPayload
	headers   []string
	rows      [][]string
	mapping   mapper.FieldMapping
	hasHeader bool
}

type importRowMessage struct {
	RowNumber int    `json:"rowNumber"`
	Severity  string `json:"severity"`
	Result    string `json:"result"`
	ClientKey string `json:"clientKey,omitempty"`
	Message   string `json:"message"`
}

type importRunResponse struct {
	ID           uuid.UUID          `json:"id"`
	Mode         string             `json:"mode"`
	Filename     string             `json:"filename"`
	Status       string             `json:"status"`
	TotalRows    int                `json:"totalRows"`
	ValidRows    int                `json:"validRows"`
	InvalidRows  int                `json:"invalidRows"`
	AppliedRows  int                `json:"appliedRows"`
	WarningCount int                `json:"warningCount"`
	Warnings     []importRowMessage `json:"warnings"`
	Errors       []importRowMessage `json:"errors"`
	CreatedAt    time.Time          `json:"createdAt"`
	CompletedAt  *time.Time         `json:"completedAt,omitempty"`
	RequestID    string             `json:"requestId"`
}

type inspectColumn struct {
	Column        string `json:"column"`
	SuggestedPath string `json:"suggestedPath,omitempty"`
	Matched       bool   `json:"matched"`
}

type inspectResponse struct {
	Filename         string                `json:"filename"`
	Columns          []inspectColumn       `json:"columns"`
	DuplicateTargets []string              `json:"duplicateTargets"`
	Presence         mapper.PresenceReport `json:"presence"`
	Validation       validate.SetResult    `json:"validation"`
	RowCount         int                   `json:"rowCount"`
}

// PostImportsInspect previews an upload without writing anything: column
// mapping suggestions, required-field presence on the first record, and the
// full validation partition.
func (s *Server) PostImportsInspect(w http.ResponseWriter, r *http.Request) {
	_, _, _, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	parsed, appErr := parseImportUpload(r, s.Config.ImportMaxRows, false)
	if appErr != nil {
		httpx.WriteError(w, r, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
		return
	}

	columns := make([]inspectColumn, 0, len(parsed.headers))
	suggested := mapper.FieldMapping{}
	for _, header := range parsed.headers {
		path, matched := mapper.SuggestMapping(header)
		columns = append(columns, inspectColumn{Column: header, SuggestedPath: path, Matched: matched})
		if matched {
			suggested[normalizeRecordKey(header)] = path
		}
	}

	effective := parsed.mapping
	if len(effective) == 0 {
		effective = suggested
	}

	rawRecords := buildRawRecords(parsed.headers, parsed.rows)
	sanitized := sanitizeAll(rawRecords)
	canonicalRecords := mapper.TransformToCanonical(sanitized, effective)

	httpx.WriteJSON(w, http.StatusOK, inspectResponse{
		Filename:         parsed.filename,
		Columns:          columns,
		DuplicateTargets: mapper.DuplicateTargets(effective),
		Presence:         mapper.CheckFieldPresence(canonical.RequiredPaths(), canonicalRecords),
		Validation:       validate.ValidateRecordSet(sanitized),
		RowCount:         len(parsed.rows),
	})
}

func (s *Server) PostImportsDryRun(w http.ResponseWriter, r *http.Request) {
	s.handleImport(w, r, importModeDryRun)
}

func (s *Server) PostImportsApply(w http.ResponseWriter, r *http.Request) {
	s.handleImport(w, r, importModeApply)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, mode importMode) {
	_, tenantID, userID, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	parsed, appErr := parseImportUpload(r, s.Config.ImportMaxRows, true)
	if appErr != nil {
		httpx.WriteError(w, r, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
		return
	}

	runID, err := s.Store.CreateImportRun(r.Context(), store.CreateImportRunParams{
		TenantID: tenantID,
		UserID:   userID,
		Mode:     string(mode),
		Filename: parsed.filename,
	})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create import run", nil)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	startAction := "import.dry_run_started"
	completeAction := "import.dry_run_completed"
	if mode == importModeApply {
		startAction = "import.apply_started"
		completeAction = "import.apply_completed"
	}
	_ = s.Audit.Log(r.Context(), audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     startAction,
		EntityType: "import_run",
		EntityID:   &runID,
		RequestID:  requestID,
		Metadata: map[string]any{
			"mode":      mode,
			"filename":  parsed.filename,
			"totalRows": len(parsed.rows),
		},
	})

	summary, outcomes, processErr := s.processImportRows(r, tenantID, userID, mode, runID, parsed)

	status := "completed"
	if processErr != nil {
		status = "failed"
	}
	if err := s.Store.CompleteImportRun(r.Context(), store.CompleteImportRunParams{
		ID:           runID,
		TenantID:     tenantID,
		TotalRows:    summary.TotalRows,
		ValidRows:    summary.ValidRows,
		InvalidRows:  summary.InvalidRows,
		AppliedRows:  summary.AppliedRows,
		WarningCount: summary.WarningCount,
		Status:       status,
	}); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to complete import run", nil)
		return
	}

	_ = s.Audit.Log(r.Context(), audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     completeAction,
		EntityType: "import_run",
		EntityID:   &runID,
		RequestID:  requestID,
		Metadata: map[string]any{
			"mode":        mode,
			"filename":    parsed.filename,
			"status":      status,
			"totalRows":   summary.TotalRows,
			"validRows":   summary.ValidRows,
			"invalidRows": summary.InvalidRows,
			"appliedRows": summary.AppliedRows,
		},
	})

	if processErr != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "import_failed", processErr.Error(), map[string]any{"importRunId": runID})
		return
	}

	run, err := s.Store.GetImportRunByID(r.Context(), runID, tenantID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import run", nil)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mapImportRunResponse(run,
		topOutcomesBySeverity(outcomes, importSeverityWarn, 100),
		topOutcomesBySeverity(outcomes, importSeverityError, 100),
		requestID,
	))
}

type importRunTally struct {
	TotalRows    int
	ValidRows    int
	InvalidRows  int
	AppliedRows  int
	WarningCount int
}

// processImportRows validates and, in apply mode, upserts every row. One bad
// row never aborts the run; persistence failures do.
func (s *Server) processImportRows(
	r *http.Request,
	tenantID uuid.UUID,
	userID uuid.UUID,
	mode importMode,
	runID uuid.UUID,
	parsed parsedImportFile,
) (importRunTally, []importRowMessage, error) {
	tally := importRunTally{}
	outcomes := make([]importRowMessage, 0, len(parsed.rows))

	record := func(rowNumber int, severity, result, clientKey, message string) error {
		outcome := importRowMessage{
			RowNumber: rowNumber,
			Severity:  severity,
			Result:    result,
			ClientKey: clientKey,
			Message:   message,
		}
		outcomes = append(outcomes, outcome)
		if severity == importSeverityWarn {
			tally.WarningCount++
		}
		return s.Store.InsertImportRowResult(r.Context(), store.InsertImportRowResultParams{
			RunID:     runID,
			TenantID:  tenantID,
			RowNumber: rowNumber,
			Severity:  severity,
			Result:    result,
			ClientKey: clientKey,
			Message:   truncateText(message, 500),
		})
	}

	rawRecords := buildRawRecords(parsed.headers, parsed.rows)
	for idx, raw := range rawRecords {
		tally.TotalRows++
		rowNumber := idx + 1
		if parsed.hasHeader {
			rowNumber = idx + 2
		}

		sanitized := validate.SanitizeRecord(raw)
		result := validate.ValidateRecord(sanitized)
		if !result.IsValid {
			tally.InvalidRows++
			if err := record(rowNumber, importSeverityError, "rejected", "", strings.Join(result.Errors, "; ")); err != nil {
				return tally, outcomes, fmt.Errorf("persist import row result: %w", err)
			}
			continue
		}
		tally.ValidRows++

		for _, warning := range result.Warnings {
			if err := record(rowNumber, importSeverityWarn, "accepted", "", warning); err != nil {
				return tally, outcomes, fmt.Errorf("persist import row result: %w", err)
			}
		}

		canonicalRecord := transformRow(sanitized, parsed.mapping)
		clientKey := canonical.ResolveClientID(canonicalRecord)
		if strings.TrimSpace(clientKey) == "" {
			tally.ValidRows--
			tally.InvalidRows++
			if err := record(rowNumber, importSeverityError, "rejected", "", "Mapped record has no client identifier"); err != nil {
				return tally, outcomes, fmt.Errorf("persist import row result: %w", err)
			}
			continue
		}

		if mode == importModeDryRun {
			if err := record(rowNumber, importSeverityInfo, "validated", clientKey, "Row would be imported"); err != nil {
				return tally, outcomes, fmt.Errorf("persist import row result: %w", err)
			}
			continue
		}

		if _, err := s.Store.UpsertClient(r.Context(), upsertParamsFromRecord(tenantID, userID, clientKey, canonicalRecord)); err != nil {
			if recErr := record(rowNumber, importSeverityError, "error", clientKey, "Failed to save client"); recErr != nil {
				return tally, outcomes, fmt.Errorf("persist import row result: %w", recErr)
			}
			continue
		}
		tally.AppliedRows++
		if err := record(rowNumber, importSeverityInfo, "applied", clientKey, "Client imported"); err != nil {
			return tally, outcomes, fmt.Errorf("persist import row result: %w", err)
		}
	}

	return tally, outcomes, nil
}

func (s *Server) GetImportsImportRunId(w http.ResponseWriter, r *http.Request, importRunId uuid.UUID) {
	_, tenantID, _, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	run, err := s.Store.GetImportRunByID(r.Context(), importRunId, tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteError(w, r, http.StatusNotFound, "import_run_not_found", "Import run not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import run", nil)
		return
	}

	warnings, _ := s.Store.ListImportRowResults(r.Context(), run.ID, tenantID, importSeverityWarn)
	errorRows, _ := s.Store.ListImportRowResults(r.Context(), run.ID, tenantID, importSeverityError)

	httpx.WriteJSON(w, http.StatusOK, mapImportRunResponse(run,
		mapRowResults(warnings, 100),
		mapRowResults(errorRows, 100),
		middleware.RequestIDFromContext(r.Context()),
	))
}

func (s *Server) GetImportsImportRunIdErrorsCsv(w http.ResponseWriter, r *http.Request, importRunId uuid.UUID) {
	_, tenantID, _, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	if _, err := s.Store.GetImportRunByID(r.Context(), importRunId, tenantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteError(w, r, http.StatusNotFound, "import_run_not_found", "Import run not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import run", nil)
		return
	}

	rows, err := s.Store.ListImportRowResults(r.Context(), importRunId, tenantID, "")
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import rows", nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"import-%s-errors.csv\"", importRunId.String()))
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"row_number", "severity", "result", "client_key", "message"})
	for _, row := range rows {
		if row.Severity != importSeverityError && row.Severity != importSeverityWarn {
			continue
		}
		_ = writer.Write([]string{
			strconv.Itoa(row.RowNumber),
			row.Severity,
			row.Result,
			row.ClientKey,
			row.Message,
		})
	}
	writer.Flush()
}

func (s *Server) GetImportsImportRunIdReportJson(w http.ResponseWriter, r *http.Request, importRunId uuid.UUID) {
	_, tenantID, _, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	run, err := s.Store.GetImportRunByID(r.Context(), importRunId, tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteError(w, r, http.StatusNotFound, "import_run_not_found", "Import run not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import run", nil)
		return
	}

	rows, err := s.Store.ListImportRowResults(r.Context(), run.ID, tenantID, "")
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import rows", nil)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	warnings, _ := s.Store.ListImportRowResults(r.Context(), run.ID, tenantID, importSeverityWarn)
	errorRows, _ := s.Store.ListImportRowResults(r.Context(), run.ID, tenantID, importSeverityError)

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"run":       mapImportRunResponse(run, mapRowResults(warnings, 100), mapRowResults(errorRows, 100), requestID),
		"rows":      mapRowResults(rows, 0),
		"requestId": requestID,
	})
}

func (s *Server) GetImportsTemplateCsv(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=\"clients-template.csv\"")
	_, _ = w.Write([]byte(canonical.TemplateCSV()))
}

type appError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func parseImportUpload(r *http.Request, maxRows int, mappingRequired bool) (parsedImportFile, *appError) {
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_content_type",
			Message: "Content-Type must be multipart/form-data",
		}
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_multipart",
			Message: "Failed to parse multipart form",
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "missing_file",
			Message: "file is required",
		}
	}
	defer file.Close()

	options := importOptionsPayload{}
	if optionsRaw := strings.TrimSpace(r.FormValue("options")); optionsRaw != "" {
		if err := json.Unmarshal([]byte(optionsRaw), &options); err != nil {
			return parsedImportFile{}, &appError{
				Status:  http.StatusBadRequest,
				Code:    "invalid_options",
				Message: "options must be valid JSON",
			}
		}
	}
	if mappingRequired && len(options.Mapping) == 0 {
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "validation_error",
			Message: "options.mapping is required",
		}
	}

	hasHeader := true
	if options.HasHeader != nil {
		hasHeader = *options.HasHeader
	}

	filename := header.Filename
	ext := strings.ToLower(filepath.Ext(filename))
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))

	switch ext {
	case ".csv":
		if contentType != "" {
			if _, ok := supportedCSVContentTypes[contentType]; !ok {
				return parsedImportFile{}, &appError{
					Status:  http.StatusBadRequest,
					Code:    "invalid_content_type",
					Message: "Unsupported CSV content type",
					Details: map[string]any{"contentType": contentType},
				}
			}
		}
	case ".xlsx":
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "XLSX_NOT_SUPPORTED",
			Message: "XLSX import is not supported. Please export and upload CSV.",
		}
	default:
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_file_type",
			Message: "Only .csv uploads are supported",
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_file",
			Message: "Failed to read uploaded file",
		}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows := make([][]string, 0, 1024)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return parsedImportFile{}, &appError{
				Status:  http.StatusBadRequest,
				Code:    "invalid_csv",
				Message: "CSV parsing failed",
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "empty_file",
			Message: "Uploaded CSV is empty",
		}
	}

	headers := []string{}
	dataRows := rows
	if hasHeader {
		headers = normalizeHeaderRow(rows[0])
		dataRows = rows[1:]
	}

	if maxRows > 0 && len(dataRows) > maxRows {
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "row_limit_exceeded",
			Message: "CSV row limit exceeded",
			Details: map[string]any{"maxRows": maxRows},
		}
	}

	// Mapping keys are normalized the same way record keys are, so a
	// "Company Name" column and a company_name mapping entry line up.
	mapping := mapper.FieldMapping{}
	for column, path := range options.Mapping {
		mapping[normalizeRecordKey(column)] = path
	}
	if duplicates := mapper.DuplicateTargets(mapping); len(duplicates) > 0 {
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_mapping",
			Message: "Multiple columns map to the same canonical field",
			Details: map[string]any{"duplicateTargets": duplicates},
		}
	}

	return parsedImportFile{
		filename:  filename,
		options:   options,
		headers:   headers,
		rows:      dataRows,
		mapping:   mapping,
		hasHeader: hasHeader,
	}, nil
}

func normalizeHeaderRow(row []string) []string {
	headers := make([]string, len(row))
	for i, col := range row {
		headers[i] = strings.TrimPrefix(strings.TrimSpace(col), "\ufeff")
	}
	return headers
}

// buildRawRecords converts positional CSV rows into flat records keyed by
// header. Headerless files fall back to col_N keys so index-based mappings
// still work.
func buildRawRecords(headers []string, rows [][]string) []map[string]any {
	records := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		record := map[string]any{}
		for i, value := range row {
			key := ""
			if i < len(headers) {
				key = normalizeRecordKey(headers[i])
			}
			if key == "" {
				key = "col_" + strconv.Itoa(i)
			}
			if strings.TrimSpace(value) == "" {
				continue
			}
			record[key] = value
		}
		records = append(records, record)
	}
	return records
}

func normalizeRecordKey(header string) string {
	lowered := strings.ToLower(strings.TrimSpace(header))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(lowered)
}

func sanitizeAll(records []map[string]any) []map[string]any {
	sanitized := make([]map[string]any, 0, len(records))
	for _, record := range records {
		sanitized = append(sanitized, validate.SanitizeRecord(record))
	}
	return sanitized
}

func transformRow(record map[string]any, mapping mapper.FieldMapping) canonical.Record {
	transformed := mapper.TransformToCanonical([]map[string]any{record}, mapping)
	if len(transformed) == 0 {
		return canonical.Record{}
	}
	return transformed[0]
}

func mapImportRunResponse(run store.ImportRun, warnings, errorRows []importRowMessage, requestID string) importRunResponse {
	return importRunResponse{
		ID:           run.ID,
		Mode:         run.Mode,
		Filename:     run.Filename,
		Status:       run.Status,
		TotalRows:    run.TotalRows,
		ValidRows:    run.ValidRows,
		InvalidRows:  run.InvalidRows,
		AppliedRows:  run.AppliedRows,
		WarningCount: run.WarningCount,
		Warnings:     warnings,
		Errors:       errorRows,
		CreatedAt:    run.CreatedAt.UTC(),
		CompletedAt:  run.CompletedAt,
		RequestID:    requestID,
	}
}

func mapRowResults(rows []store.ImportRowResult, limit int) []importRowMessage {
	messages := make([]importRowMessage, 0, len(rows))
	for _, row := range rows {
		if limit > 0 && len(messages) >= limit {
			break
		}
		messages = append(messages, importRowMessage{
			RowNumber: row.RowNumber,
			Severity:  row.Severity,
			Result:    row.Result,
			ClientKey: row.ClientKey,
			Message:   row.Message,
		})
	}
	return messages
}

func topOutcomesBySeverity(outcomes []importRowMessage, severity string, limit int) []importRowMessage {
	filtered := make([]importRowMessage, 0, limit)
	for _, outcome := range outcomes {
		if outcome.Severity != severity {
			continue
		}
		filtered = append(filtered, outcome)
		if len(filtered) >= limit {
			break
		}
	}
	return filtered
}

func truncateText(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}
