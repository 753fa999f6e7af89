package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsis-platform/gsis-dashboard/internal/appstate"
	"github.com/gsis-platform/gsis-dashboard/internal/auth"
	"github.com/gsis-platform/gsis-dashboard/internal/clock"
	"github.com/gsis-platform/gsis-dashboard/internal/domain"
	"github.com/gsis-platform/gsis-dashboard/internal/gate"
	"github.com/gsis-platform/gsis-dashboard/internal/inference"
	"github.com/gsis-platform/gsis-dashboard/internal/realtime"
	"github.com/gsis-platform/gsis-dashboard/internal/seed"
	"github.com/gsis-platform/gsis-dashboard/internal/settings"
	"github.com/gsis-platform/gsis-dashboard/internal/uploads"
)

// sessionResolver admits every request as the configured session.
type sessionResolver struct {
	sess *auth.Session
}

func (r *sessionResolver) Resolve(*gin.Context) (*auth.Session, bool) {
	return r.sess, true
}

// memUploadStore is an in-process UploadStore for handler tests.
type memUploadStore struct {
	mu   sync.Mutex
	rows []domain.Upload
	next int
}

func (m *memUploadStore) Create(_ context.Context, u *domain.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		m.next++
		u.ID = "up-" + strconv.Itoa(m.next)
	}
	u.CreatedAt = time.Now()
	m.rows = append(m.rows, *u)
	return nil
}

func (m *memUploadStore) ListByUser(_ context.Context, userID string) ([]domain.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Upload
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memUploadStore) ListAll(_ context.Context) ([]domain.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Upload(nil), m.rows...), nil
}

func (m *memUploadStore) Delete(_ context.Context, id, principal string, admin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ID == id && (admin || r.UserID == principal) {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return uploads.ErrNotFound
}

type apiFixture struct {
	router *gin.Engine
	facade *appstate.Facade
	clock  *clock.Fake
	tokens *auth.TokenService
}

func newAPIFixture(t *testing.T, role domain.Role, upstream http.Handler) *apiFixture {
	return newAPIFixtureWith(t, role, upstream, nil)
}

func newAPIFixtureWith(t *testing.T, role domain.Role, upstream http.Handler, up UploadStore) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := settings.Open(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	sess := &auth.Session{Principal: "u1", Email: "u1@example.org", Role: role}
	facade := appstate.New(appstate.Config{
		Logger:         logger,
		Clock:          clk,
		Store:          store,
		Provider:       auth.NewStaticProvider(sess),
		Seed:           seed.Alerts(),
		RefreshLatency: 1500 * time.Millisecond,
	})
	t.Cleanup(facade.Close)

	base := "http://inference.invalid"
	if upstream != nil {
		srv := httptest.NewServer(upstream)
		t.Cleanup(srv.Close)
		base = srv.URL
	}
	inf := inference.NewClient(base, time.Second, logger, inference.NewMemoryCache())

	g := gate.New(&sessionResolver{sess: sess}, logger, "/signin", "/unauthorized")
	tokens := auth.NewTokenService("test-secret", "gsis-dashboard", time.Hour)
	h := New(logger, inf, up, g, realtime.NewHub(logger), tokens, true)

	router := gin.New()
	h.Register(router, facade)
	return &apiFixture{router: router, facade: facade, clock: clk, tokens: tokens}
}

func (fx *apiFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		blob, _ := json.Marshal(body)
		reader = bytes.NewReader(blob)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestHealth(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, nil)
	w := fx.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStateSnapshot(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleAnalyst, nil)

	w := fx.do(http.MethodGet, "/api/v1/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	state := decode(t, w)
	assert.Equal(t, "dark", state["theme"])
	assert.Equal(t, "analyst", state["role"])
	assert.Len(t, state["alerts"], 10)
	assert.Len(t, state["notifications"], 5)
	assert.EqualValues(t, 5, state["unread_count"])
}

func TestCreateAlertEndpoint(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleAnalyst, nil)

	w := fx.do(http.MethodPost, "/api/v1/alerts", gin.H{
		"title":    "Reservoir level critical",
		"module":   "Water Scarcity",
		"region":   "North Africa",
		"severity": "critical",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	created := decode(t, w)
	assert.Equal(t, "Reservoir level critical", created["title"])
	assert.Len(t, fx.facade.Alerts(), 11)
	assert.Equal(t, 6, fx.facade.UnreadCount())
}

func TestCreateAlertRequiresTitle(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleAnalyst, nil)

	w := fx.do(http.MethodPost, "/api/v1/alerts", gin.H{"module": "Deforestation"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, fx.facade.Alerts(), 10, "rejected input must not mutate state")
}

func TestViewerCannotMutateAlerts(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, nil)

	w := fx.do(http.MethodPost, "/api/v1/alerts", gin.H{"title": "nope"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = fx.do(http.MethodPost, "/api/v1/alerts/1/resolve", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = fx.do(http.MethodGet, "/api/v1/export/alerts.csv", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestResolveAndFilterAlerts(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleAnalyst, nil)

	w := fx.do(http.MethodPost, "/api/v1/alerts/5/resolve", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = fx.do(http.MethodGet, "/api/v1/alerts?status=resolved", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listing := decode(t, w)
	assert.EqualValues(t, 4, listing["total"], "three seeded resolved alerts plus alert 5")
}

func TestNotificationEndpoints(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, nil)

	w := fx.do(http.MethodPost, "/api/v1/notifications/1/read", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, decode(t, w)["unread_count"])

	w = fx.do(http.MethodPost, "/api/v1/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["unread_count"])

	w = fx.do(http.MethodDelete, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, fx.facade.Notifications())
	assert.Len(t, fx.facade.Alerts(), 10)
}

func TestSettingsEndpoints(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, nil)

	w := fx.do(http.MethodPatch, "/api/v1/settings", gin.H{"refreshInterval": 60, "theme": "light"})
	require.Equal(t, http.StatusOK, w.Code)

	merged := decode(t, w)
	assert.EqualValues(t, 60, merged["refreshInterval"])
	assert.Equal(t, "light", merged["theme"])
	assert.Equal(t, domain.ThemeLight, fx.facade.Theme())

	w = fx.do(http.MethodGet, "/api/v1/settings", nil)
	assert.EqualValues(t, 60, decode(t, w)["refreshInterval"])
}

func TestToggleThemeEndpoint(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, nil)

	w := fx.do(http.MethodPost, "/api/v1/theme/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "light", decode(t, w)["theme"])
}

func TestSetRoleEndpoint(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, nil)

	w := fx.do(http.MethodPost, "/api/v1/role", gin.H{"role": "admin"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.RoleAdmin, fx.facade.Role())

	w = fx.do(http.MethodPost, "/api/v1/role", gin.H{"role": "root"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.RoleAdmin, fx.facade.Role())
}

func TestRefreshEndpoint(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, nil)

	w := fx.do(http.MethodPost, "/api/v1/refresh", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	snap := decode(t, w)
	assert.Equal(t, "delayed", snap["status"])
	assert.Equal(t, true, snap["isRefreshing"])

	fx.clock.Advance(2 * time.Second)
	w = fx.do(http.MethodGet, "/api/v1/freshness", nil)
	assert.Equal(t, "live", decode(t, w)["status"])
}

func TestSearchEndpoint(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, nil)

	w := fx.do(http.MethodGet, "/api/v1/search?q=water", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, "water", res["query"])
	assert.NotEmpty(t, res["results"], "matches the Water Scarcity module at minimum")

	w = fx.do(http.MethodPut, "/api/v1/search", gin.H{"query": "heat"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "heat", fx.facade.SearchQuery())
}

func TestExportCSVEndpoint(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleAnalyst, nil)

	w := fx.do(http.MethodGet, "/api/v1/export/alerts.csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Body.String(), "ID,Title,Severity,Module,Region,Time,Status")
}

func TestExportPDFEndpoint(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleAdmin, nil)

	w := fx.do(http.MethodGet, "/api/v1/export/alerts.pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestSystemHealthDegradesDuringOutage(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	w := fx.do(http.MethodGet, "/api/v1/system-health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, true, decode(t, w)["stale"])
}

func TestSystemHealthProxiesUpstream(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(inference.SystemHealth{Status: "healthy"})
	}))

	w := fx.do(http.MethodGet, "/api/v1/system-health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["stale"])
}

func TestAdminRoutesNeedAdminSession(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleAnalyst, nil)

	w := fx.do(http.MethodGet, "/api/v1/admin/users", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/unauthorized", w.Header().Get("Location"))
}

func TestUploadsUnconfigured(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, nil)

	w := fx.do(http.MethodGet, "/api/v1/uploads", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func (fx *apiFixture) doMultipart(t *testing.T, path, field string, filenames ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range filenames {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte("fake-image-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func TestPredictRecordsUploadHistory(t *testing.T) {
	store := &memUploadStore{}
	fx := newAPIFixtureWith(t, domain.RoleViewer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(inference.Prediction{
			PredictedClass: "deforestation_risk",
			Confidence:     0.91,
		})
	}), store)

	w := fx.doMultipart(t, "/api/v1/predict", "file", "tile_42.png")
	require.Equal(t, http.StatusOK, w.Code)

	rows, err := store.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1, "a successful classification lands in the analysis history")
	assert.Equal(t, "u1", rows[0].UserID)
	assert.Equal(t, "tile_42.png", rows[0].ImageURL)
	assert.Equal(t, "deforestation_risk", rows[0].PredictedClass)
	assert.InDelta(t, 0.91, rows[0].Confidence, 1e-9)
	assert.Equal(t, "web", rows[0].Source)

	// The row is visible through the history endpoint.
	lw := fx.do(http.MethodGet, "/api/v1/uploads", nil)
	require.Equal(t, http.StatusOK, lw.Code)
	assert.EqualValues(t, 1, decode(t, lw)["total"])
}

func TestBatchPredictRecordsOnlySuccessfulFiles(t *testing.T) {
	store := &memUploadStore{}
	fx := newAPIFixtureWith(t, domain.RoleViewer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(inference.BatchResult{
			Results: []inference.Prediction{
				{Filename: "a.png", PredictedClass: "healthy_vegetation", Confidence: 0.8},
				{Filename: "b.png", Error: "corrupt image"},
			},
			Total:      2,
			Successful: 1,
		})
	}), store)

	w := fx.doMultipart(t, "/api/v1/batch-predict", "files", "a.png", "b.png")
	require.Equal(t, http.StatusOK, w.Code)

	rows, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1, "failed files stay out of the history")
	assert.Equal(t, "a.png", rows[0].ImageURL)
}

func TestFailedPredictionLeavesHistoryUntouched(t *testing.T) {
	store := &memUploadStore{}
	fx := newAPIFixtureWith(t, domain.RoleViewer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), store)

	w := fx.doMultipart(t, "/api/v1/predict", "file", "tile.png")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	rows, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDeleteUploadEndpoint(t *testing.T) {
	store := &memUploadStore{}
	require.NoError(t, store.Create(context.Background(), &domain.Upload{UserID: "u1", ImageURL: "x.png"}))
	fx := newAPIFixtureWith(t, domain.RoleViewer, nil, store)

	w := fx.do(http.MethodDelete, "/api/v1/uploads/up-1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = fx.do(http.MethodDelete, "/api/v1/uploads/up-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDevSignIn(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, nil)

	w := fx.do(http.MethodPost, "/auth/dev-session", gin.H{
		"principal": "dev-user", "email": "dev@example.org", "role": "analyst",
	})
	require.Equal(t, http.StatusOK, w.Code)

	token, ok := decode(t, w)["token"].(string)
	require.True(t, ok)
	sess, err := fx.tokens.ParseSession(token)
	require.NoError(t, err)
	assert.Equal(t, "dev-user", sess.Principal)
	assert.Equal(t, domain.RoleAnalyst, sess.Role)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, gate.SessionCookie, cookies[0].Name)
	assert.Equal(t, token, cookies[0].Value)

	t.Run("missing principal", func(t *testing.T) {
		w := fx.do(http.MethodPost, "/auth/dev-session", gin.H{"role": "admin"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown role", func(t *testing.T) {
		w := fx.do(http.MethodPost, "/auth/dev-session", gin.H{"principal": "x", "role": "root"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMarkAsReadRejectsMalformedID(t *testing.T) {
	fx := newAPIFixture(t, domain.RoleViewer, nil)

	w := fx.do(http.MethodPost, "/api/v1/notifications/abc/read", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid notification id", decode(t, w)["error"])
}
