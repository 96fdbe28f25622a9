package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/relaycrm/api/internal/audit"
	"github.com/relaycrm/api/internal/httpx"
	"github.com/relaycrm/api/internal/importer"
	"github.com/relaycrm/api/internal/middleware"
	"github.com/relaycrm/api/internal/store"
)

type contactPayload struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Company   string `json:"company,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Title     string `json:"title,omitempty"`
	Industry  string `json:"industry,omitempty"`
	Region    string `json:"region,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type leadPayload struct {
	ID        string `json:"id"`
	LeadName  string `json:"leadName"`
	Company   string `json:"company,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status"`
	Source    string `json:"source,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type dealPayload struct {
	ID          string  `json:"id"`
	DealName    string  `json:"dealName"`
	Company     string  `json:"company,omitempty"`
	ContactName string  `json:"contactName,omitempty"`
	Stage       string  `json:"stage"`
	Amount      float64 `json:"amount,omitempty"`
	Probability int     `json:"probability,omitempty"`
	Priority    int     `json:"priority,omitempty"`
	StartDate   string  `json:"startDate,omitempty"`
	CloseDate   string  `json:"closeDate,omitempty"`
	OwnerID     string  `json:"ownerId,omitempty"`
	CreatedAt   string  `json:"createdAt,omitempty"`
}

type actionItemPayload struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Done    bool   `json:"done"`
	DueDate string `json:"dueDate,omitempty"`
}

type createContactRequest struct {
	FirstName string               `json:"firstName"`
	LastName  string               `json:"lastName"`
	Company   string               `json:"company"`
	Email     *openapi_types.Email `json:"email,omitempty"`
	Phone     string               `json:"phone"`
	Title     string               `json:"title"`
	Industry  string               `json:"industry"`
	Region    string               `json:"region"`
}

type createLeadRequest struct {
	LeadName string               `json:"leadName"`
	Company  string               `json:"company"`
	Email    *openapi_types.Email `json:"email,omitempty"`
	Phone    string               `json:"phone"`
	Status   string               `json:"status"`
	Source   string               `json:"source"`
}

type createDealRequest struct {
	DealName    string              `json:"dealName"`
	Company     string              `json:"company"`
	ContactName string              `json:"contactName"`
	Stage       string              `json:"stage"`
	Amount      float64             `json:"amount"`
	Probability int                 `json:"probability"`
	Priority    int                 `json:"priority"`
	StartDate   *openapi_types.Date `json:"startDate,omitempty"`
	CloseDate   *openapi_types.Date `json:"closeDate,omitempty"`
}

func (s *Server) GetContacts(w http.ResponseWriter, r *http.Request) {
	records, err := s.Store.Select(r.Context(), "contacts", store.Filter{})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load contacts", nil)
		return
	}
	payload := make([]contactPayload, 0, len(records))
	for _, rec := range records {
		payload = append(payload, mapContact(rec))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (s *Server) PostContacts(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
		return
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "firstName and lastName are required", nil)
		return
	}

	rec := store.Record{
		"first_name":  strings.TrimSpace(req.FirstName),
		"last_name":   strings.TrimSpace(req.LastName),
		"created_by":  actor.UserID,
		"modified_by": actor.UserID,
	}
	setIfPresent(rec, "company", req.Company)
	setIfPresent(rec, "phone", req.Phone)
	setIfPresent(rec, "title", req.Title)
	setIfPresent(rec, "industry", req.Industry)
	setIfPresent(rec, "region", req.Region)
	if req.Email != nil {
		rec["email"] = string(*req.Email)
	}

	created, err := s.Store.Insert(r.Context(), "contacts", rec)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create contact", nil)
		return
	}

	s.auditCreate(r, actor.UserID, "contacts.create", "contact", created.ID())
	httpx.WriteJSON(w, http.StatusCreated, mapContact(created))
}

func (s *Server) GetLeads(w http.ResponseWriter, r *http.Request) {
	records, err := s.Store.Select(r.Context(), "leads", store.Filter{})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load leads", nil)
		return
	}
	payload := make([]leadPayload, 0, len(records))
	for _, rec := range records {
		payload = append(payload, mapLead(rec))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (s *Server) PostLeads(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
		return
	}
	if strings.TrimSpace(req.LeadName) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "leadName is required", nil)
		return
	}

	status := canonicalChoice(req.Status, importer.LeadStatuses)
	if status == "" {
		status = importer.LeadStatuses[0]
	}

	rec := store.Record{
		"lead_name":   strings.TrimSpace(req.LeadName),
		"status":      status,
		"created_by":  actor.UserID,
		"modified_by": actor.UserID,
	}
	setIfPresent(rec, "company", req.Company)
	setIfPresent(rec, "phone", req.Phone)
	setIfPresent(rec, "source", req.Source)
	if req.Email != nil {
		rec["email"] = string(*req.Email)
	}

	created, err := s.Store.Insert(r.Context(), "leads", rec)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create lead", nil)
		return
	}

	s.auditCreate(r, actor.UserID, "leads.create", "lead", created.ID())
	httpx.WriteJSON(w, http.StatusCreated, mapLead(created))
}

func (s *Server) GetDeals(w http.ResponseWriter, r *http.Request) {
	records, err := s.Store.Select(r.Context(), "deals", store.Filter{})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load deals", nil)
		return
	}
	payload := make([]dealPayload, 0, len(records))
	for _, rec := range records {
		payload = append(payload, mapDeal(rec))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (s *Server) PostDeals(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
		return
	}
	if strings.TrimSpace(req.DealName) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "dealName is required", nil)
		return
	}
	stage := canonicalChoice(req.Stage, importer.DealStages)
	if stage == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "stage is not a recognized pipeline stage", map[string]any{"stage": req.Stage})
		return
	}

	rec := store.Record{
		"deal_name":   strings.TrimSpace(req.DealName),
		"stage":       stage,
		"owner_id":    actor.UserID,
		"created_by":  actor.UserID,
		"modified_by": actor.UserID,
	}
	setIfPresent(rec, "company", req.Company)
	setIfPresent(rec, "contact_name", req.ContactName)
	if req.Amount != 0 {
		rec["amount"] = req.Amount
	}
	if req.Probability != 0 {
		rec["probability"] = clampInt(req.Probability, 0, 100)
	}
	if req.Priority != 0 {
		rec["priority"] = clampInt(req.Priority, 1, 5)
	}
	if req.StartDate != nil {
		rec["start_date"] = req.StartDate.Format("2006-01-02")
	}
	if req.CloseDate != nil {
		rec["close_date"] = req.CloseDate.Format("2006-01-02")
	}

	created, err := s.Store.Insert(r.Context(), "deals", rec)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create deal", nil)
		return
	}

	s.auditCreate(r, actor.UserID, "deals.create", "deal", created.ID())
	httpx.WriteJSON(w, http.StatusCreated, mapDeal(created))
}

func (s *Server) GetDealActionItems(w http.ResponseWriter, r *http.Request, dealID string) {
	deals, err := s.Store.Select(r.Context(), "deals", store.Filter{Eq: map[string]any{"id": dealID}})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load deal", nil)
		return
	}
	if len(deals) == 0 {
		httpx.WriteError(w, r, http.StatusNotFound, "deal_not_found", "Deal was not found", nil)
		return
	}

	items, err := s.Store.Select(r.Context(), "action_items", store.Filter{
		Eq: map[string]any{"parent_type": "deal", "parent_id": dealID},
	})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load action items", nil)
		return
	}

	payload := make([]actionItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, actionItemPayload{
			ID:      item.ID(),
			Title:   item.String("title"),
			Done:    item.Bool("done"),
			DueDate: item.String("due_date"),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (s *Server) auditCreate(r *http.Request, userID, action, entityType, entityID string) {
	_ = s.Audit.Log(r.Context(), audit.Entry{
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.RequestIDFromContext(r.Context()),
	})
}

func mapContact(rec store.Record) contactPayload {
	return contactPayload{
		ID:        rec.ID(),
		FirstName: rec.String("first_name"),
		LastName:  rec.String("last_name"),
		Company:   rec.String("company"),
		Email:     rec.String("email"),
		Phone:     rec.String("phone"),
		Title:     rec.String("title"),
		Industry:  rec.String("industry"),
		Region:    rec.String("region"),
		CreatedAt: formatTimestamp(rec, "created_at"),
	}
}

func mapLead(rec store.Record) leadPayload {
	return leadPayload{
		ID:        rec.ID(),
		LeadName:  rec.String("lead_name"),
		Company:   rec.String("company"),
		Email:     rec.String("email"),
		Phone:     rec.String("phone"),
		Status:    rec.String("status"),
		Source:    rec.String("source"),
		CreatedAt: formatTimestamp(rec, "created_at"),
	}
}

func mapDeal(rec store.Record) dealPayload {
	return dealPayload{
		ID:          rec.ID(),
		DealName:    rec.String("deal_name"),
		Company:     rec.String("company"),
		ContactName: rec.String("contact_name"),
		Stage:       rec.String("stage"),
		Amount:      floatField(rec, "amount"),
		Probability: intField(rec, "probability"),
		Priority:    intField(rec, "priority"),
		StartDate:   dateField(rec, "start_date"),
		CloseDate:   dateField(rec, "close_date"),
		OwnerID:     rec.String("owner_id"),
		CreatedAt:   formatTimestamp(rec, "created_at"),
	}
}

func setIfPresent(rec store.Record, column, value string) {
	trimmed := strings.TrimSpace(value)
	if trimmed != "" {
		rec[column] = trimmed
	}
}

func canonicalChoice(raw string, choices []string) string {
	trimmed := strings.TrimSpace(raw)
	for _, choice := range choices {
		if strings.EqualFold(trimmed, choice) {
			return choice
		}
	}
	return ""
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func floatField(rec store.Record, column string) float64 {
	switch v := rec[column].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	default:
		return 0
	}
}

func intField(rec store.Record, column string) int {
	switch v := rec[column].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func dateField(rec store.Record, column string) string {
	switch v := rec[column].(type) {
	case time.Time:
		return v.Format("2006-01-02")
	case string:
		return v
	default:
		return ""
	}
}

func formatTimestamp(rec store.Record, column string) string {
	ts := rec.Time(column)
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
