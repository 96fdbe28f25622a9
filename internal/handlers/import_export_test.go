package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycrm/api/internal/audit"
	"github.com/relaycrm/api/internal/config"
	"github.com/relaycrm/api/internal/middleware"
	"github.com/relaycrm/api/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		SessionCookieName:  "relay_sess",
		ImportMaxFileBytes: 1 << 20,
		ImportMaxRows:      100,
		ImportBatchSize:    25,
	}
	return NewServer(cfg, st, audit.NewLogger(st), logger), st
}

func withActor(r *http.Request, userID string) *http.Request {
	ctx := middleware.WithActor(r.Context(), middleware.Actor{
		SessionID: "sess-1",
		UserID:    userID,
		Email:     "tester@example.com",
		Role:      "manager",
	})
	return r.WithContext(ctx)
}

func TestExportSelectedScopeRequiresIDs(t *testing.T) {
	s, _ := newTestServer(t)

	req := withActor(httptest.NewRequest(http.MethodGet, "/api/exports/deals.csv?scope=selected", nil), "user-1")
	rr := httptest.NewRecorder()
	s.GetExportsEntityCsv(rr, req, "deals")

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "ids is required")
}

func TestExportSelectedScopePicksOnlyRequestedIDs(t *testing.T) {
	s, st := newTestServer(t)
	ctx := context.Background()

	first, err := st.Insert(ctx, "deals", store.Record{"deal_name": "Acme Renewal", "stage": "Prospecting"})
	require.NoError(t, err)
	_, err = st.Insert(ctx, "deals", store.Record{"deal_name": "Globex Pilot", "stage": "Proposal"})
	require.NoError(t, err)

	req := withActor(httptest.NewRequest(http.MethodGet, "/api/exports/deals.csv?scope=selected&ids="+first.ID(), nil), "user-1")
	rr := httptest.NewRecorder()
	s.GetExportsEntityCsv(rr, req, "deals")

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Acme Renewal")
	assert.NotContains(t, body, "Globex Pilot")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "deals_export_selected_")
}

func TestExportFilteredScopeByStage(t *testing.T) {
	s, st := newTestServer(t)
	ctx := context.Background()

	_, err := st.Insert(ctx, "deals", store.Record{"deal_name": "Acme Renewal", "stage": "Closed Won"})
	require.NoError(t, err)
	_, err = st.Insert(ctx, "deals", store.Record{"deal_name": "Globex Pilot", "stage": "Proposal"})
	require.NoError(t, err)

	req := withActor(httptest.NewRequest(http.MethodGet, "/api/exports/deals.csv?scope=filtered&stage=closed+won", nil), "user-1")
	rr := httptest.NewRecorder()
	s.GetExportsEntityCsv(rr, req, "deals")

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Acme Renewal")
	assert.NotContains(t, body, "Globex Pilot")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "deals_export_filtered_")
}

func TestExportFilteredScopeRejections(t *testing.T) {
	s, _ := newTestServer(t)

	// Missing or unrecognized stage.
	req := withActor(httptest.NewRequest(http.MethodGet, "/api/exports/deals.csv?scope=filtered", nil), "user-1")
	rr := httptest.NewRecorder()
	s.GetExportsEntityCsv(rr, req, "deals")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "stage is required")

	// Stage filtering is a deals-only surface.
	req = withActor(httptest.NewRequest(http.MethodGet, "/api/exports/contacts.csv?scope=filtered&stage=Proposal", nil), "user-1")
	rr = httptest.NewRecorder()
	s.GetExportsEntityCsv(rr, req, "contacts")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "only available for deals")
}

func TestExportDealsDefaultScopeIsAllVariant(t *testing.T) {
	s, st := newTestServer(t)
	ctx := context.Background()

	_, err := st.Insert(ctx, "deals", store.Record{"deal_name": "Acme Renewal", "stage": "Prospecting"})
	require.NoError(t, err)

	req := withActor(httptest.NewRequest(http.MethodGet, "/api/exports/deals.csv", nil), "user-1")
	rr := httptest.NewRecorder()
	s.GetExportsEntityCsv(rr, req, "deals")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "deals_export_all_")

	// Contacts stay unvarianted.
	req = withActor(httptest.NewRequest(http.MethodGet, "/api/exports/contacts.csv", nil), "user-1")
	rr = httptest.NewRecorder()
	s.GetExportsEntityCsv(rr, req, "contacts")
	require.Equal(t, http.StatusOK, rr.Code)
	disposition := rr.Header().Get("Content-Disposition")
	assert.Contains(t, disposition, "contacts_export_")
	assert.NotContains(t, disposition, "contacts_export_all_")
}

func TestExportUnknownEntity(t *testing.T) {
	s, _ := newTestServer(t)

	req := withActor(httptest.NewRequest(http.MethodGet, "/api/exports/widgets.csv", nil), "user-1")
	rr := httptest.NewRecorder()
	s.GetExportsEntityCsv(rr, req, "widgets")

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTemplatesRoundTripThroughHeaderMapping(t *testing.T) {
	s, st := newTestServer(t)

	for _, entity := range []string{"contacts", "leads", "deals"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/imports/templates/"+entity+".csv", nil)
		s.GetImportsTemplatesEntityCsv(rr, req, entity)
		require.Equal(t, http.StatusOK, rr.Code, entity)

		// Importing a downloaded template must succeed without errors.
		contentType, body := multipartCSV(t, entity+".csv", rr.Body.String())
		importReq := withActor(httptest.NewRequest(http.MethodPost, "/api/imports/"+entity, body), "user-1")
		importReq.Header.Set("Content-Type", contentType)
		importRR := httptest.NewRecorder()
		s.PostImportsEntity(importRR, importReq, entity)
		require.Equal(t, http.StatusOK, importRR.Code, "%s: %s", entity, importRR.Body.String())
		assert.Contains(t, importRR.Body.String(), `"errorCount":0`, entity)
	}
	assert.Equal(t, 1, st.Count("contacts"))
	assert.Equal(t, 1, st.Count("leads"))
	assert.Equal(t, 1, st.Count("deals"))
}

func TestImportRejectsOversizedRowCount(t *testing.T) {
	s, _ := newTestServer(t)
	s.Config.ImportMaxRows = 1

	csv := "First Name,Last Name\nAda,Lovelace\nGrace,Hopper\n"
	contentType, body := multipartCSV(t, "contacts.csv", csv)
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/imports/contacts", body), "user-1")
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	s.PostImportsEntity(rr, req, "contacts")

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "import_too_large")
}

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []any{"a", "b"}, splitIDs(" a , b ,"))
	assert.Empty(t, splitIDs(" , "))
}

func multipartCSV(t *testing.T, filename, content string) (string, io.Reader) {
	t.Helper()
	boundary := "testboundary"
	body := "--" + boundary + "\r\n" +
		`Content-Disposition: form-data; name="file"; filename="` + filename + `"` + "\r\n" +
		"Content-Type: text/csv\r\n\r\n" +
		content + "\r\n" +
		"--" + boundary + "--\r\n"
	return "multipart/form-data; boundary=" + boundary, strings.NewReader(body)
}
