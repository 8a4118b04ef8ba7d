package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvlint/internal/config"
	"github.com/JonMunkholm/csvlint/internal/core"
	"github.com/JonMunkholm/csvlint/internal/metrics"
	"github.com/JonMunkholm/csvlint/internal/store"
)

const peopleMetadata = `{
  "@context": "http://www.w3.org/ns/csvw",
  "tables": [
    {
      "url": "countries.csv",
      "tableSchema": {
        "columns": [{"name": "code", "required": true}, {"name": "name"}],
        "primaryKey": "code"
      }
    },
    {
      "url": "people.csv",
      "tableSchema": {
        "columns": [{"name": "name"}, {"name": "age", "datatype": "integer"}, {"name": "country"}],
        "foreignKeys": [{
          "columnReference": "country",
          "reference": {"resource": "countries.csv", "columnReference": "code"}
        }]
      }
    }
  ]
}`

type part struct {
	field, name, body string
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		w, err := mw.CreateFormFile(p.field, p.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	if env == nil {
		env = map[string]string{}
	}
	cfg, err := config.LoadFrom(env)
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	svc := core.NewService(core.WithLimiter(core.NewLimiter(2, time.Second)))
	s := NewServer(svc, cfg, opts...)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func postValidate(t *testing.T, s *Server, query string, parts ...part) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, "/api/validate"+query, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

// ----------------------------------------------------------------------------
// Validate Tests
// ----------------------------------------------------------------------------

func TestHandleValidate_Metadata(t *testing.T) {
	s := newTestServer(t, testConfig(t, nil))

	rec := postValidate(t, s, "",
		part{"metadata", "tables.json", peopleMetadata},
		part{"file", "countries.csv", "code,name\nAT,Austria\n"},
		part{"file", "people.csv", "name,age,country\nAnna,31,AT\nBen,x,FR\n"},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var report core.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.Valid)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Tables, 2)
	assert.True(t, report.Tables[0].Valid)
	assert.Len(t, report.Tables[1].Errors, 2)
	assert.Equal(t, "192.0.2.1", report.Client.IPAddress)
}

func TestHandleValidate_TableSchema(t *testing.T) {
	s := newTestServer(t, testConfig(t, nil))

	schemaDoc := `{"fields": [{"name": "id", "constraints": {"required": true, "type": "http://www.w3.org/2001/XMLSchema#integer"}}]}`
	rec := postValidate(t, s, "",
		part{"metadata", "schema.json", schemaDoc},
		part{"file", "ids.csv", "id\n1\n2\n"},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report core.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.Rows())
}

func TestHandleValidate_Errors(t *testing.T) {
	s := newTestServer(t, testConfig(t, nil))

	tests := []struct {
		name   string
		query  string
		parts  []part
		status int
		code   string
	}{
		{
			name:   "no metadata",
			parts:  []part{{"file", "countries.csv", "code\n"}},
			status: http.StatusBadRequest,
			code:   "META001",
		},
		{
			name:   "no files",
			parts:  []part{{"metadata", "tables.json", peopleMetadata}},
			status: http.StatusBadRequest,
			code:   "FILE003",
		},
		{
			name:   "unknown table",
			parts:  []part{{"metadata", "tables.json", peopleMetadata}, {"file", "planets.csv", "a\n"}},
			status: http.StatusBadRequest,
			code:   "FILE004",
		},
		{
			name:   "broken metadata",
			parts:  []part{{"metadata", "tables.json", `{"tables": [{"url": "a.csv", "tableSchema": {"primaryKey": 3`}, {"file", "a.csv", "a\n"}},
			status: http.StatusBadRequest,
			code:   "META001",
		},
		{
			name:   "unrecognised document",
			parts:  []part{{"metadata", "x.json", `{"hello": "world"}`}, {"file", "a.csv", "a\n"}},
			status: http.StatusBadRequest,
			code:   "META001",
		},
		{
			name:   "schema with two files",
			parts:  []part{{"metadata", "s.json", `{"fields": []}`}, {"file", "a.csv", "a\n"}, {"file", "b.csv", "b\n"}},
			status: http.StatusBadRequest,
			code:   "META002",
		},
		{
			name:   "bad option",
			query:  "?strict=maybe",
			parts:  []part{{"metadata", "tables.json", peopleMetadata}, {"file", "countries.csv", "code\n"}},
			status: http.StatusBadRequest,
			code:   "FILE006",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postValidate(t, s, tt.query, tt.parts...)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestHandleValidate_StrictQuery(t *testing.T) {
	s := newTestServer(t, testConfig(t, nil))
	parts := []part{
		{"metadata", "tables.json", peopleMetadata},
		{"file", "countries.csv", "code,name,extra\nAT,Austria\n"},
	}

	var lax, strict core.Report
	require.NoError(t, json.Unmarshal(postValidate(t, s, "", parts...).Body.Bytes(), &lax))
	require.NoError(t, json.Unmarshal(postValidate(t, s, "?strict=true", parts...).Body.Bytes(), &strict))
	assert.True(t, lax.Valid)
	assert.False(t, strict.Valid)
}

// ----------------------------------------------------------------------------
// History Tests
// ----------------------------------------------------------------------------

type fakeHistory struct {
	runs   map[uuid.UUID]*core.Report
	limit  int
	counts []store.KindCount
}

func (f *fakeHistory) GetRun(_ context.Context, id uuid.UUID) (*core.Report, error) {
	if r, ok := f.runs[id]; ok {
		return r, nil
	}
	return nil, store.ErrRunNotFound
}

func (f *fakeHistory) ListRuns(_ context.Context, limit int) ([]store.RunSummary, error) {
	f.limit = limit
	var out []store.RunSummary
	for id := range f.runs {
		out = append(out, store.RunSummary{ID: id})
	}
	return out, nil
}

func (f *fakeHistory) KindCounts(context.Context, uuid.UUID) ([]store.KindCount, error) {
	return f.counts, nil
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRuns_Disabled(t *testing.T) {
	s := newTestServer(t, testConfig(t, nil))

	for _, path := range []string{"/api/runs", "/api/runs/" + uuid.NewString()} {
		rec := get(s, path)
		assert.Equal(t, http.StatusNotImplemented, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "DB003")
	}
}

func TestRuns_ListAndGet(t *testing.T) {
	id := uuid.New()
	h := &fakeHistory{
		runs:   map[uuid.UUID]*core.Report{id: {RunID: id.String(), Valid: true}},
		counts: []store.KindCount{{Kind: "pattern", Severity: "error", Count: 3}},
	}
	s := newTestServer(t, testConfig(t, nil), WithHistory(h))

	rec := get(s, "/api/runs?limit=10000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxListLimit, h.limit)
	var runs []store.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	get(s, "/api/runs?limit=abc")
	assert.Equal(t, store.DefaultListLimit, h.limit)

	rec = get(s, "/api/runs/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var report core.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, id.String(), report.RunID)

	rec = get(s, "/api/runs/"+id.String()+"/kinds")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"kind":"pattern","severity":"error","count":3}]`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(s, "/api/runs/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusNotFound, get(s, "/api/runs/not-a-uuid").Code)
}

// ----------------------------------------------------------------------------
// Health, Metrics, Rate Limit, Auth
// ----------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig(t, nil))
	rec := get(s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Runs)
	assert.Equal(t, 2, resp.Runs.MaxConcurrent)
	assert.False(t, resp.History)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewCollector(prometheus.NewRegistry())
	m.RunStarted()
	s := newTestServer(t, testConfig(t, nil), WithMetrics(m))

	rec := get(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "csvlint_active_runs")

	assert.Equal(t, http.StatusNotFound, get(newTestServer(t, testConfig(t, nil)), "/metrics").Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t, map[string]string{"RATE_LIMIT_REQUESTS_PER_MINUTE": "2"})
	s := newTestServer(t, cfg, WithHistory(&fakeHistory{}))

	assert.Equal(t, http.StatusOK, get(s, "/api/runs").Code)
	assert.Equal(t, http.StatusOK, get(s, "/api/runs").Code)
	rec := get(s, "/api/runs")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE001")

	// Health checks are never limited.
	assert.Equal(t, http.StatusOK, get(s, "/healthz").Code)
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := testConfig(t, map[string]string{"REQUIRE_API_KEY": "true", "API_KEYS": "secret"})
	s := newTestServer(t, cfg, WithHistory(&fakeHistory{}))

	assert.Equal(t, http.StatusUnauthorized, get(s, "/api/runs").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusOK, get(s, "/healthz").Code)
}
