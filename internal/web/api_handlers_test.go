package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jizpi/arm-ledger/internal/db"
	"github.com/jizpi/arm-ledger/internal/feed"
	"github.com/jizpi/arm-ledger/internal/ledger"
	"github.com/jizpi/arm-ledger/internal/metrics"
	"github.com/jizpi/arm-ledger/internal/stats"
	"github.com/jizpi/arm-ledger/internal/view"
	"github.com/jizpi/arm-ledger/internal/visit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testClock = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }

type testEnv struct {
	srv *Server
	hub *feed.Hub
	m   *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, d.Close()) })

	repo := visit.NewRepository(d)
	opts := stats.Options{Catalog: visit.DefaultResources, Location: time.UTC}
	hub := feed.NewHub(repo, opts, nil).WithClock(testClock)
	m := metrics.New()
	svc := ledger.NewService(repo, hub, time.UTC, nil).WithClock(testClock).WithRecorder(m)

	srv := NewServer(Options{
		Ledger:    svc,
		Snapshots: hub,
		Location:  time.UTC,
		Metrics:   m.Handler(),
		Ready:     func(ctx context.Context) error { return d.PingContext(ctx) },
		Now:       testClock,
	})
	return &testEnv{srv: srv, hub: hub, m: m}
}

func apiRequest(t *testing.T, srv http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}

	r := httptest.NewRequest(method, path, &reqBody)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) create(t *testing.T, body map[string]any) visit.Record {
	t.Helper()
	w := apiRequest(t, e.srv, "POST", "/api/visits", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[visit.Record](t, w)
}

func individual(first string) map[string]any {
	return map[string]any{
		"first_name": first, "last_name": "Valiyev", "group": "511-22",
		"department": "Energetika", "resource": "Ilmiy zal",
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	w := apiRequest(t, e.srv, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestHealthNotReady(t *testing.T) {
	srv := NewServer(Options{
		Snapshots: feed.NewHub(nil, stats.Options{}, nil),
		Ready:     func(context.Context) error { return errors.New("db gone") },
	})

	w := apiRequest(t, srv, "GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCreateVisit(t *testing.T) {
	e := newTestEnv(t)

	w := apiRequest(t, e.srv, "POST", "/api/visits", individual("Ali"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	rec := decode[visit.Record](t, w)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "/api/visits/"+rec.ID, w.Header().Get("Location"))
	assert.Equal(t, "01.03.2025", rec.VisitDate)
	assert.Equal(t, 1, rec.Sequence)
	assert.Equal(t, visit.Internal, rec.Class)
}

func TestCreateVisitValidation(t *testing.T) {
	e := newTestEnv(t)

	w := apiRequest(t, e.srv, "POST", "/api/visits", map[string]any{"group_size": 1, "group": "g"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode[struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}](t, w)
	assert.Equal(t, "validation failed", body.Error)
	assert.Contains(t, body.Fields, "first_name")
	assert.Contains(t, body.Fields, "department")
	assert.Contains(t, body.Fields, "resource")
}

func TestCreateVisitBadJSON(t *testing.T) {
	e := newTestEnv(t)

	r := httptest.NewRequest("POST", "/api/visits", strings.NewReader("{"))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListVisits(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 25; i++ {
		e.create(t, individual(fmt.Sprintf("Talaba%02d", i)))
	}
	group := individual("")
	group["group_size"] = 4
	group["resource"] = "O'quv zali"
	e.create(t, group)
	e.hub.Refresh(context.Background())

	w := apiRequest(t, e.srv, "GET", "/api/visits", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[view.Page](t, w)
	assert.Equal(t, 26, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Records, view.PageSize)
	assert.Equal(t, 4, page.Records[0].GroupSize, "newest first")

	w = apiRequest(t, e.srv, "GET", "/api/visits?page=99", nil)
	page = decode[view.Page](t, w)
	assert.Equal(t, 2, page.Page)
	assert.Len(t, page.Records, 6)

	w = apiRequest(t, e.srv, "GET", "/api/visits?resource=O%27quv+zali", nil)
	page = decode[view.Page](t, w)
	assert.Equal(t, 1, page.TotalCount)

	w = apiRequest(t, e.srv, "GET", "/api/visits?q=talaba1&sort=first_name&dir=asc", nil)
	page = decode[view.Page](t, w)
	require.Equal(t, 10, page.TotalCount)
	assert.Equal(t, "Talaba10", page.Records[0].FirstName)

	w = apiRequest(t, e.srv, "GET", "/api/visits?date=2025-03-01", nil)
	assert.Equal(t, 26, decode[view.Page](t, w).TotalCount)

	w = apiRequest(t, e.srv, "GET", "/api/visits?date=soon", nil)
	page = decode[view.Page](t, w)
	assert.Equal(t, 0, page.TotalCount)
	assert.Equal(t, 1, page.TotalPages)
}

func TestListVisitsBadParams(t *testing.T) {
	e := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, apiRequest(t, e.srv, "GET", "/api/visits?sort=password", nil).Code)
	assert.Equal(t, http.StatusBadRequest, apiRequest(t, e.srv, "GET", "/api/visits?dir=up", nil).Code)
	assert.Equal(t, http.StatusBadRequest, apiRequest(t, e.srv, "GET", "/api/visits?page=two", nil).Code)
}

func TestGetUpdateDeleteVisit(t *testing.T) {
	e := newTestEnv(t)
	rec := e.create(t, individual("Ali"))

	w := apiRequest(t, e.srv, "GET", "/api/visits/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ali", decode[visit.Record](t, w).FirstName)

	w = apiRequest(t, e.srv, "PATCH", "/api/visits/"+rec.ID, map[string]any{"group_size": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[visit.Record](t, w)
	assert.Empty(t, updated.FirstName)
	assert.Equal(t, 3, updated.GroupSize)
	assert.Equal(t, rec.Sequence, updated.Sequence)
	require.NotNil(t, updated.CreatedAt)
	assert.True(t, rec.CreatedAt.Equal(*updated.CreatedAt))

	w = apiRequest(t, e.srv, "PATCH", "/api/visits/"+rec.ID, map[string]any{"visit_date": "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = apiRequest(t, e.srv, "DELETE", "/api/visits/"+rec.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = apiRequest(t, e.srv, "DELETE", "/api/visits/"+rec.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = apiRequest(t, e.srv, "GET", "/api/visits/"+rec.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestToday(t *testing.T) {
	e := newTestEnv(t)
	e.create(t, individual("Ali"))
	e.create(t, individual("Vali"))
	e.hub.Refresh(context.Background())

	w := apiRequest(t, e.srv, "GET", "/api/today", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "01.03.2025", body["date"])
	assert.Equal(t, float64(3), body["next_sequence"])
}

func TestStats(t *testing.T) {
	e := newTestEnv(t)
	e.create(t, individual("Ali"))
	group := individual("")
	group["group_size"] = 5
	e.create(t, group)
	e.hub.Refresh(context.Background())

	w := apiRequest(t, e.srv, "GET", "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var state feed.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, 6, state.Stats.TodayCount)
	assert.Equal(t, 6, state.Stats.DailyVisits["01.03.2025"])
	r, ok := state.Stats.Resource("Ilmiy zal")
	require.True(t, ok)
	assert.Equal(t, 6, r.Count)
	assert.NotContains(t, w.Body.String(), `"records"`, "the raw record set is not part of the stats payload")
}

func TestCatalog(t *testing.T) {
	e := newTestEnv(t)

	w := apiRequest(t, e.srv, "GET", "/api/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, visit.DefaultResources, decode[map[string][]string](t, w)["resources"])
}

func TestLookup(t *testing.T) {
	e := newTestEnv(t)
	e.create(t, individual("Ali"))
	e.create(t, individual("Vali"))

	w := apiRequest(t, e.srv, "GET", "/api/lookup?first_name=Ali&last_name=Valiyev", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Records    []visit.Record `json:"records"`
		TotalCount int            `json:"total_count"`
	}](t, w)
	assert.Equal(t, 1, body.TotalCount)

	w = apiRequest(t, e.srv, "GET", "/api/lookup?first_name=Nobody&last_name=Here", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"records":[]`)

	w = apiRequest(t, e.srv, "GET", "/api/lookup?first_name=Ali", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExport(t *testing.T) {
	e := newTestEnv(t)
	e.create(t, individual("Ali"))
	other := individual("Vali")
	other["resource"] = "O'quv zali"
	e.create(t, other)
	e.hub.Refresh(context.Background())

	w := apiRequest(t, e.srv, "GET", "/api/export?resource=Ilmiy+zal", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="ARM_hisobot_Ilmiy zal_01-03-2025.xlsx"`)

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Foydalanuvchilar")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ali Valiyev", rows[1][3])
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.create(t, individual("Ali"))
	apiRequest(t, e.srv, "POST", "/api/visits", map[string]any{})

	w := apiRequest(t, e.srv, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `arm_visits_created_total{class="internal"} 1`)
	assert.Contains(t, w.Body.String(), `arm_mutation_errors_total{op="create"} 1`)
}

func TestNotFoundRoute(t *testing.T) {
	e := newTestEnv(t)

	w := apiRequest(t, e.srv, "GET", "/api/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not found", decode[map[string]string](t, w)["error"])
}

func TestCORS(t *testing.T) {
	srv := NewServer(Options{
		Snapshots:   feed.NewHub(nil, stats.Options{}, nil),
		CORSOrigins: []string{"http://desk.arm.uz"},
	})

	r := httptest.NewRequest("OPTIONS", "/api/visits", nil)
	r.Header.Set("Origin", "http://desk.arm.uz")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)

	assert.Equal(t, "http://desk.arm.uz", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestEventsStream(t *testing.T) {
	e := newTestEnv(t)
	ts := httptest.NewServer(e.srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	next := func() feed.State {
		t.Helper()
		for {
			line, err := r.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data:") {
				var s feed.State
				require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &s))
				return s
			}
		}
	}

	first := next()
	assert.Equal(t, uint64(0), first.Version)

	e.create(t, individual("Ali"))
	e.hub.Refresh(context.Background())

	second := next()
	assert.Equal(t, uint64(1), second.Version)
	assert.Equal(t, 1, second.Stats.TodayCount)
}
