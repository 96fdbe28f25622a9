package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/relaycrm/api/internal/audit"
	"github.com/relaycrm/api/internal/httpx"
	"github.com/relaycrm/api/internal/importer"
	"github.com/relaycrm/api/internal/middleware"
	"github.com/relaycrm/api/internal/store"
)

var supportedCSVContentTypes = map[string]struct{}{
	"text/csv":                 {},
	"text/plain":               {},
	"application/csv":          {},
	"application/vnd.ms-excel": {},
}

// importEntities maps the URL entity segment to a record type.
var importEntities = map[string]importer.RecordType{
	"contacts": importer.TypeContact,
	"leads":    importer.TypeLead,
	"deals":    importer.TypeDeal,
}

// importTemplates hold the downloadable starter CSVs, one header row
// plus a sample row, per entity.
var importTemplates = map[string]string{
	"contacts": "First Name,Last Name,Company,Email,Phone,Title,Industry,Region\n" +
		"Jane,Doe,Acme Inc,jane.doe@acme.example,555-0100,VP Sales,Technology,West\n",
	"leads": "ID,Lead Name,Company,Email,Phone,Status,Source,Action Items\n" +
		",Acme expansion,Acme Inc,jane.doe@acme.example,555-0100,New,Referral,\n",
	"deals": "Deal Name,Company,Contact Name,Stage,Amount,Probability,Priority,Start Date,Close Date,Owner,Action Items\n" +
		"Acme renewal,Acme Inc,Jane Doe,Prospecting,12000,40,3,2026-01-15,2026-03-31,sam@relay.example,\n",
}

type parsedImportFile struct {
	filename   string
	fileSHA256 string
	text       string
	rowCount   int
}

type appError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (s *Server) PostImportsEntity(w http.ResponseWriter, r *http.Request, entity string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	recordType, ok := importEntities[entity]
	if !ok {
		httpx.WriteError(w, r, http.StatusNotFound, "unknown_entity", "Unknown import entity", map[string]string{"entity": entity})
		return
	}

	parsed, appErr := parseImportUpload(r, s.Config.ImportMaxFileBytes, s.Config.ImportMaxRows)
	if appErr != nil {
		httpx.WriteError(w, r, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	_ = s.Audit.Log(r.Context(), audit.Entry{
		UserID:     actor.UserID,
		Action:     "import.started",
		EntityType: string(recordType),
		RequestID:  requestID,
		Metadata: map[string]any{
			"filename":   parsed.filename,
			"fileSha256": parsed.fileSHA256,
			"rowsTotal":  parsed.rowCount,
		},
	})

	processor := importer.NewProcessor(s.Store, s.Logger)
	if s.Config.ImportBatchSize > 0 {
		processor.BatchSize = s.Config.ImportBatchSize
	}

	result, err := processor.ProcessCSV(r.Context(), parsed.text, importer.Options{
		RecordType:   recordType,
		ActingUserID: actor.UserID,
		OnProgress: func(processed, total int) {
			s.Logger.Debug("import_progress",
				"entity", entity,
				"processed", processed,
				"total", total,
				"request_id", requestID,
			)
		},
	})
	if err != nil {
		_ = s.Audit.Log(r.Context(), audit.Entry{
			UserID:     actor.UserID,
			Action:     "import.failed",
			EntityType: string(recordType),
			RequestID:  requestID,
			Metadata:   map[string]any{"filename": parsed.filename, "error": err.Error()},
		})
		httpx.WriteError(w, r, http.StatusBadRequest, "import_failed", err.Error(), nil)
		return
	}

	_ = s.Audit.Log(r.Context(), audit.Entry{
		UserID:     actor.UserID,
		Action:     "import.completed",
		EntityType: string(recordType),
		RequestID:  requestID,
		Metadata: map[string]any{
			"filename":       parsed.filename,
			"fileSha256":     parsed.fileSHA256,
			"successCount":   result.Success,
			"updateCount":    result.Updated,
			"duplicateCount": result.Duplicates,
			"errorCount":     result.Errors,
		},
	})

	httpx.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) GetImportsTemplatesEntityCsv(w http.ResponseWriter, r *http.Request, entity string) {
	normalized := strings.ToLower(strings.TrimSpace(entity))
	content, ok := importTemplates[normalized]
	if !ok {
		httpx.WriteError(w, r, http.StatusNotFound, "template_not_found", "Import template not found", nil)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s-template.csv\"", normalized))
	_, _ = w.Write([]byte(content))
}

func (s *Server) GetExportsEntityCsv(w http.ResponseWriter, r *http.Request, entity string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	recordType, ok := importEntities[entity]
	if !ok {
		httpx.WriteError(w, r, http.StatusNotFound, "unknown_entity", "Unknown export entity", map[string]string{"entity": entity})
		return
	}
	cfg, _ := importer.ConfigFor(recordType)

	filter := store.Filter{}
	variant := ""
	if recordType == importer.TypeDeal {
		variant = "all"
	}

	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "all"
	}
	switch scope {
	case "all":
	case "selected":
		ids := splitIDs(r.URL.Query().Get("ids"))
		if len(ids) == 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "ids is required when scope=selected", nil)
			return
		}
		filter.In = map[string][]any{"id": ids}
		variant = "selected"
	case "filtered":
		if recordType != importer.TypeDeal {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "stage filtering is only available for deals", nil)
			return
		}
		stage := canonicalChoice(r.URL.Query().Get("stage"), importer.DealStages)
		if stage == "" {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "stage is required when scope=filtered", map[string]any{"stage": r.URL.Query().Get("stage")})
			return
		}
		filter.Eq = map[string]any{"stage": stage}
		variant = "filtered"
	default:
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "scope must be all, selected, or filtered", nil)
		return
	}

	records, err := s.Store.Select(r.Context(), cfg.Table, filter)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load records", nil)
		return
	}

	exporter := importer.NewExporter(s.Store)
	payload, err := exporter.Export(r.Context(), recordType, records)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to generate export CSV", nil)
		return
	}

	filename := importer.Filename(entity, variant, time.Now())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	_, _ = w.Write(payload)

	_ = s.Audit.Log(r.Context(), audit.Entry{
		UserID:     actor.UserID,
		Action:     "export.download",
		EntityType: string(recordType),
		RequestID:  middleware.RequestIDFromContext(r.Context()),
		Metadata: map[string]any{
			"filename": filename,
			"rows":     len(records),
			"scope":    variantOrAll(variant),
		},
	})
}

func parseImportUpload(r *http.Request, maxBytes int64, maxRows int) (parsedImportFile, *appError) {
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

	filename := header.Filename
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".csv" {
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_file_type",
			Message: "Only .csv uploads are supported",
		}
	}
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
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

	if maxBytes > 0 && header.Size > maxBytes {
		return parsedImportFile{}, &appError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "file_too_large",
			Message: fmt.Sprintf("File exceeds the %d byte limit", maxBytes),
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

	doc, err := importer.Parse(string(data))
	if err != nil {
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_csv",
			Message: err.Error(),
		}
	}
	if maxRows > 0 && len(doc.Rows) > maxRows {
		return parsedImportFile{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "import_too_large",
			Message: fmt.Sprintf("Import exceeds the %d row limit", maxRows),
			Details: map[string]any{"rows": len(doc.Rows)},
		}
	}

	sum := sha256.Sum256(data)
	return parsedImportFile{
		filename:   filename,
		fileSHA256: hex.EncodeToString(sum[:]),
		text:       string(data),
		rowCount:   len(doc.Rows),
	}, nil
}

func splitIDs(raw string) []any {
	parts := strings.Split(raw, ",")
	ids := make([]any, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		ids = append(ids, trimmed)
	}
	return ids
}

func variantOrAll(variant string) string {
	if variant == "" {
		return "all"
	}
	return variant
}
