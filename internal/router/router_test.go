package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/database"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/document"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/handlers"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/logging"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/middleware"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/services/converter"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/services/worker"
)

const testSecret = "router-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// stubConverter renders fixed pages through the real XML builder.
type stubConverter struct {
	err error
}

func (s stubConverter) Convert(ctx context.Context, data []byte, st models.StructureType) (*converter.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	line := func(y float64, text string) converter.Line {
		return converter.Line{Text: text, Y: y, FontSize: 11}
	}
	pages := []converter.Page{
		{Number: 1, Lines: []converter.Line{line(700, "Alpha page one")}},
		{Number: 2, Lines: []converter.Line{line(700, "Invoice total on page two")}},
		{Number: 3, Lines: []converter.Line{line(700, "Closing invoice notes")}},
	}
	xml, stats := converter.BuildDocument(pages, st, converter.Metadata{})
	return &converter.Result{XML: xml, PageCount: len(pages), Statistics: stats}, nil
}

type testServer struct {
	engine  *gin.Engine
	handler *handlers.Handler
	store   *database.MemoryStore
	pool    *worker.Pool
}

func newTestServer(t *testing.T, conv converter.Converter, queueSize int, start bool, syncWait time.Duration) *testServer {
	t.Helper()
	logger := logging.Discard()
	store := database.NewMemoryStore()

	pool := worker.NewPool(1, queueSize, store, conv, logger)
	if start {
		pool.Start()
	}
	t.Cleanup(pool.Stop)

	h := handlers.NewHandler(store, pool, logger, handlers.Options{
		MaxUploadSize: 1 << 20,
		SyncWait:      syncWait,
		Metrics:       document.DefaultMetrics,
	})
	h.Inspect = func([]byte) (int, error) { return 3, nil }

	engine := Setup(h, Options{JWTSecret: testSecret, AllowedOrigins: []string{"http://localhost"}, Logger: logger})
	return &testServer{engine: engine, handler: h, store: store, pool: pool}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := middleware.GenerateJWT(userID, "", testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, req *http.Request, userID string) *httptest.ResponseRecorder {
	t.Helper()
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) get(t *testing.T, path, userID string) *httptest.ResponseRecorder {
	return s.do(t, httptest.NewRequest(http.MethodGet, path, nil), userID)
}

func (s *testServer) upload(t *testing.T, filename string, fields map[string]string, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(t, req, userID)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// submitted uploads report.pdf as user-1 and returns the finished result.
func submitted(t *testing.T, s *testServer) models.ConvertResult {
	t.Helper()
	w := s.upload(t, "report.pdf", map[string]string{"structure_type": "enhanced", "tags": "q1, finance"}, "user-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res models.ConvertResult
	decode(t, w, &res)
	return res
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, time.Second)
	w := s.get(t, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var health models.HealthResponse
	decode(t, w, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Workers)
}

func TestSetup_WithoutOrigins(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, time.Second)

	var engine http.Handler
	require.NotPanics(t, func() {
		engine = Setup(s.handler, Options{JWTSecret: testSecret})
	})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, time.Second)
	assert.Equal(t, http.StatusUnauthorized, s.get(t, "/api/v1/conversions", "").Code)
}

func TestSubmitConversion_ImmediateResult(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, 5*time.Second)
	res := submitted(t, s)

	assert.NotEmpty(t, res.ConversionID)
	assert.Equal(t, 3, res.PageCount)
	assert.True(t, strings.HasPrefix(res.XML, document.XMLDeclaration))
	assert.Contains(t, res.XML, document.PageStartTag(3))
	assert.Equal(t, 11, res.Statistics.WordCount)

	stored, err := s.store.GetConversion(context.Background(), res.ConversionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, []string{"q1", "finance"}, []string(stored.Tags))
}

func TestSubmitConversion_Validation(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, time.Second)

	w := s.upload(t, "notes.txt", nil, "user-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_file_type")

	w = s.upload(t, "report.pdf", map[string]string{"structure_type": "fancy"}, "user-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_structure_type")
}

func TestSubmitConversion_FailedWithinWait(t *testing.T) {
	s := newTestServer(t, stubConverter{err: errors.New("no text layer")}, 10, true, 5*time.Second)

	w := s.upload(t, "scan.pdf", nil, "user-1")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	var e models.ErrorResponse
	decode(t, w, &e)
	assert.Equal(t, "conversion_failed", e.Error)
	assert.Contains(t, e.Message, "no text layer")
}

func TestSubmitConversion_QueuedAndQueueFull(t *testing.T) {
	// Workers never start, so the single queue slot stays taken.
	s := newTestServer(t, stubConverter{}, 1, false, 10*time.Millisecond)

	w := s.upload(t, "first.pdf", nil, "user-1")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var queued models.SubmitResponse
	decode(t, w, &queued)
	assert.Equal(t, models.StatusPending, queued.Status)

	w = s.upload(t, "second.pdf", nil, "user-1")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "queue_full")

	list, total, err := s.store.ListConversions(context.Background(), models.ConversionListParams{
		UserID: "user-1", Status: string(models.StatusFailed),
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "second.pdf", list[0].Filename)
}

func TestSubmitConversion_AfterPoolStop(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, time.Second)
	s.pool.Stop()

	w := s.upload(t, "late.pdf", nil, "user-1")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "shutting_down")

	list, total, err := s.store.ListConversions(context.Background(), models.ConversionListParams{
		UserID: "user-1", Status: string(models.StatusFailed),
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "late.pdf", list[0].Filename)
}

func TestGetConversion_Pages(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, 5*time.Second)
	res := submitted(t, s)
	base := "/api/v1/conversions/" + res.ConversionID

	tests := []struct {
		name     string
		query    string
		wantPage int
		wantXML  string
	}{
		{"whole document", "", 0, res.XML},
		{"second page", "?page=2", 2, document.ExtractPage(res.XML, 2)},
		{"page past the end", "?page=5", 0, res.XML},
		{"page zero", "?page=0", 0, res.XML},
		{"unparsable page", "?page=two", 0, res.XML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.get(t, base+tt.query, "user-1")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var resp models.ConversionResponse
			decode(t, w, &resp)
			assert.Equal(t, 3, resp.FullPageCount)
			assert.Equal(t, tt.wantPage, resp.Page)
			assert.Equal(t, tt.wantXML, resp.Conversion.XMLContent)
		})
	}

	w := s.get(t, base+"?page=2", "user-1")
	var resp models.ConversionResponse
	decode(t, w, &resp)
	assert.Contains(t, resp.Conversion.XMLContent, "Invoice total on page two")
	assert.NotContains(t, resp.Conversion.XMLContent, "Alpha page one")
	assert.NotContains(t, resp.Conversion.XMLContent, document.PageStartTag(3))
}

func TestConversionsAreOwnerOnly(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, 5*time.Second)
	res := submitted(t, s)
	base := "/api/v1/conversions/" + res.ConversionID

	assert.Equal(t, http.StatusNotFound, s.get(t, base, "user-2").Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, base+"/search?q=invoice", "user-2").Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, base+"/download", "user-2").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, httptest.NewRequest(http.MethodDelete, base, nil), "user-2").Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/v1/conversions/missing", "user-1").Code)

	assert.Equal(t, http.StatusOK, s.do(t, httptest.NewRequest(http.MethodDelete, base, nil), "user-1").Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, base, "user-1").Code)
}

func TestSearchConversion(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, 5*time.Second)
	res := submitted(t, s)
	base := "/api/v1/conversions/" + res.ConversionID + "/search"

	search := func(query string) models.SearchResponse {
		w := s.get(t, base+query, "user-1")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp models.SearchResponse
		decode(t, w, &resp)
		return resp
	}

	all := search("?q=INVOICE")
	assert.Equal(t, 2, all.Count)
	assert.Equal(t, document.Search(res.XML, "invoice"), all.Offsets)
	assert.Equal(t, 0, all.Current)

	assert.Equal(t, 1, search("?q=invoice&current=1").Current)
	assert.Equal(t, 0, search("?q=invoice&current=2").Current, "wraps past the end")
	assert.Equal(t, 1, search("?q=invoice&current=-1").Current, "wraps before the start")

	paged := search("?q=invoice&page=2")
	assert.Equal(t, 2, paged.Page)
	assert.Equal(t, 1, paged.Count)

	none := search("?q=zebra")
	assert.Equal(t, 0, none.Count)
	assert.Equal(t, document.NoSelection, none.Current)
	assert.Empty(t, none.Offsets)
	assert.Equal(t, 0, none.ScrollOffset)
}

func TestDownloadConversion(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, 5*time.Second)
	res := submitted(t, s)
	base := "/api/v1/conversions/" + res.ConversionID + "/download"

	w := s.get(t, base, "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="converted-report.xml"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, res.XML, w.Body.String())

	w = s.get(t, base+"?page=2", "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="converted-report-page2.xml"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, document.ExtractPage(res.XML, 2), w.Body.String())

	assert.Equal(t, http.StatusBadRequest, s.get(t, base+"?format=pdf", "user-1").Code)
}

func TestListConversionsAndStats(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, 5*time.Second)
	submitted(t, s)
	submitted(t, s)

	w := s.get(t, "/api/v1/conversions?limit=1&status=COMPLETED", "user-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page models.PaginatedResponse[models.Conversion]
	decode(t, w, &page)
	assert.Equal(t, 2, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Data, 1)

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/v1/conversions?status=done", "user-1").Code)
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/v1/conversions?date_from=yesterday", "user-1").Code)

	w = s.get(t, "/api/v1/conversions", "user-2")
	decode(t, w, &page)
	assert.Equal(t, 0, page.TotalItems)
	assert.NotNil(t, page.Data)

	w = s.get(t, "/api/v1/stats", "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.UserStats
	decode(t, w, &stats)
	assert.Equal(t, 2, stats.ConversionsCount)
	require.NotNil(t, stats.LatestConversion)
	assert.Equal(t, []models.StructureTypeCount{{StructureType: models.StructureEnhanced, Count: 2}}, stats.StructureTypeCounts)
}

func TestWebhookManagement(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, time.Second)

	body := strings.NewReader(`{"url":"https://example.com/hook","events":["conversion.completed"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks", body)
	req.Header.Set("Content-Type", "application/json")
	w := s.do(t, req, "user-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID     string `json:"id"`
		Secret string `json:"secret"`
	}
	decode(t, w, &created)
	assert.Len(t, created.Secret, 64)

	w = s.get(t, "/api/v1/webhooks", "user-1")
	var hooks []models.Webhook
	decode(t, w, &hooks)
	require.Len(t, hooks, 1)
	assert.Empty(t, hooks[0].Secret)

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks",
		strings.NewReader(`{"url":"https://example.com/hook","events":["conversion.started"]}`))
	bad.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, s.do(t, bad, "user-1").Code)

	path := "/api/v1/webhooks/" + created.ID
	patch := func(user string) int {
		req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"active":false}`))
		req.Header.Set("Content-Type", "application/json")
		return s.do(t, req, user).Code
	}
	assert.Equal(t, http.StatusNotFound, patch("user-2"))
	assert.Equal(t, http.StatusOK, patch("user-1"))

	assert.Equal(t, http.StatusOK, s.get(t, "/api/v1/webhooks/deliveries", "user-1").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, httptest.NewRequest(http.MethodDelete, path, nil), "user-2").Code)
	assert.Equal(t, http.StatusOK, s.do(t, httptest.NewRequest(http.MethodDelete, path, nil), "user-1").Code)
}

func TestDocsArePublic(t *testing.T) {
	s := newTestServer(t, stubConverter{}, 10, true, time.Second)
	w := s.get(t, "/api/docs/openapi.yaml", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/conversions/{id}/search")

	w = s.get(t, "/api/docs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "url: '/api/docs/openapi.yaml'")
	assert.Contains(t, w.Body.String(), "<title>PDF2XML API</title>")
}
