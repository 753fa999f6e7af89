package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gsis-platform/gsis-dashboard/internal/alerting"
	"github.com/gsis-platform/gsis-dashboard/internal/appstate"
	"github.com/gsis-platform/gsis-dashboard/internal/auth"
	"github.com/gsis-platform/gsis-dashboard/internal/domain"
	"github.com/gsis-platform/gsis-dashboard/internal/export"
	"github.com/gsis-platform/gsis-dashboard/internal/gate"
	"github.com/gsis-platform/gsis-dashboard/internal/inference"
	"github.com/gsis-platform/gsis-dashboard/internal/metrics"
	"github.com/gsis-platform/gsis-dashboard/internal/realtime"
	"github.com/gsis-platform/gsis-dashboard/internal/uploads"
)

// modules the dashboard tracks; used by the search endpoint.
var moduleNames = []string{
	"Deforestation", "Water Scarcity", "Crop Stress",
	"Flood Monitoring", "Urban Heat", "Industrial Pollution",
}

// UploadStore persists the analysis history rows written after successful
// classifications.
type UploadStore interface {
	Create(ctx context.Context, u *domain.Upload) error
	ListByUser(ctx context.Context, userID string) ([]domain.Upload, error)
	ListAll(ctx context.Context) ([]domain.Upload, error)
	Delete(ctx context.Context, id, principal string, admin bool) error
}

// Handler exposes the dashboard API over the app-state facade. Every
// request recovers the facade from its context; a handler mounted outside
// the provider middleware fails fast with a configuration error.
type Handler struct {
	logger    *slog.Logger
	inference *inference.Client
	uploads   UploadStore
	gate      *gate.Gate
	hub       *realtime.Hub
	tokens    *auth.TokenService
	devSignIn bool
}

// New builds the handler set. The uploads store may be nil when no
// database is configured; upload routes then degrade to 503. devSignIn
// mounts the local token-minting route and must stay off in production.
func New(logger *slog.Logger, inf *inference.Client, up UploadStore, g *gate.Gate, hub *realtime.Hub, tokens *auth.TokenService, devSignIn bool) *Handler {
	return &Handler{
		logger:    logger,
		inference: inf,
		uploads:   up,
		gate:      g,
		hub:       hub,
		tokens:    tokens,
		devSignIn: devSignIn,
	}
}

// Register mounts all routes on the router.
func (h *Handler) Register(r *gin.Engine, f *appstate.Facade) {
	r.Use(appstate.Middleware(f), metrics.Middleware())

	r.GET("/health", h.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.hub.ServeWS)
	if h.devSignIn {
		r.POST("/auth/dev-session", h.handleDevSignIn)
	}

	api := r.Group("/api/v1", h.gate.Protect())

	api.GET("/state", h.handleState)

	api.GET("/alerts", h.handleListAlerts)
	api.POST("/alerts", h.handleCreateAlert)
	api.POST("/alerts/:id/resolve", h.handleResolveAlert)
	api.DELETE("/alerts/:id", h.handleDeleteAlert)

	api.GET("/notifications", h.handleListNotifications)
	api.POST("/notifications/:id/read", h.handleMarkAsRead)
	api.POST("/notifications/read-all", h.handleMarkAllAsRead)
	api.DELETE("/notifications", h.handleClearNotifications)

	api.GET("/settings", h.handleGetSettings)
	api.PATCH("/settings", h.handleUpdateSettings)
	api.POST("/theme/toggle", h.handleToggleTheme)
	api.POST("/role", h.handleSetRole)

	api.GET("/freshness", h.handleFreshness)
	api.POST("/refresh", h.handleRefresh)

	api.GET("/search", h.handleSearch)
	api.PUT("/search", h.handleSetSearch)

	api.GET("/export/alerts.csv", h.handleExportCSV)
	api.GET("/export/alerts.pdf", h.handleExportPDF)

	api.POST("/predict", h.handlePredict)
	api.POST("/batch-predict", h.handleBatchPredict)
	api.GET("/system-health", h.handleSystemHealth)
	api.GET("/stats", h.handleStats)
	api.GET("/regions", h.handleRegions)

	api.GET("/uploads", h.handleListUploads)
	api.DELETE("/uploads/:id", h.handleDeleteUpload)

	admin := api.Group("", h.gate.Protect(domain.RoleAdmin))
	admin.GET("/admin/users", h.handleAdminUsers)
}

// facade recovers the app-state facade for this request. Absence is a
// programming error, surfaced as a 500.
func (h *Handler) facade(c *gin.Context) (*appstate.Facade, bool) {
	f, err := appstate.FromContext(c.Request.Context())
	if err != nil {
		h.logger.Error("facade missing from request context", "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return f, true
}

func (h *Handler) requireCapability(c *gin.Context, f *appstate.Facade, action auth.Action) bool {
	if !auth.CanPerform(f.Role(), action) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": fmt.Sprintf("role %q cannot perform %s", f.Role(), action),
		})
		return false
	}
	return true
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "gsis-dashboard"})
}

type devSignInRequest struct {
	Principal string      `json:"principal" binding:"required"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
}

// handleDevSignIn mints a session token and sets the session cookie for
// local development; production deployments authenticate against the
// upstream account store instead.
func (h *Handler) handleDevSignIn(c *gin.Context) {
	var req devSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "principal is required"})
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleViewer
	}
	if !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	token, err := h.tokens.GenerateToken(&auth.Session{
		Principal: req.Principal,
		Email:     req.Email,
		Role:      req.Role,
	})
	if err != nil {
		h.logger.Error("failed to issue session token", "principal", req.Principal, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session token"})
		return
	}

	c.SetCookie(gate.SessionCookie, token, 0, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"token": token, "role": req.Role})
}

func (h *Handler) handleState(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"theme":         f.Theme(),
		"role":          f.Role(),
		"settings":      f.Settings(),
		"freshness":     f.Freshness(),
		"alerts":        f.Alerts(),
		"notifications": f.Notifications(),
		"unread_count":  f.UnreadCount(),
		"search_query":  f.SearchQuery(),
	})
}

func (h *Handler) handleListAlerts(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	filter := alerting.Filter{
		Status:   alerting.StatusFilter(c.Query("status")),
		Severity: domain.Severity(c.Query("severity")),
		Module:   c.Query("module"),
		Region:   c.Query("region"),
	}
	alerts := f.FilterAlerts(filter)
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "total": len(alerts)})
}

type createAlertRequest struct {
	Title    string          `json:"title" binding:"required"`
	Module   string          `json:"module"`
	Region   string          `json:"region"`
	Severity domain.Severity `json:"severity"`
	Time     string          `json:"time"`
}

func (h *Handler) handleCreateAlert(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	if !h.requireCapability(c, f, auth.ActionCreateAlert) {
		return
	}
	var req createAlertRequest
	// The engine skips business validation; the transport layer is the
	// caller responsible for rejecting malformed input.
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if req.Time == "" {
		req.Time = "Just now"
	}
	alert := f.CreateAlert(alerting.CreateAlertInput{
		Title:    req.Title,
		Module:   req.Module,
		Region:   req.Region,
		Severity: req.Severity,
		Time:     req.Time,
	})
	metrics.AlertsCreated.Inc()
	c.JSON(http.StatusCreated, alert)
}

func (h *Handler) alertID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) notificationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) handleResolveAlert(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	if !h.requireCapability(c, f, auth.ActionResolveAlert) {
		return
	}
	id, ok := h.alertID(c)
	if !ok {
		return
	}
	f.ResolveAlert(id)
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleDeleteAlert(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	if !h.requireCapability(c, f, auth.ActionDeleteAlert) {
		return
	}
	id, ok := h.alertID(c)
	if !ok {
		return
	}
	f.DeleteAlert(id)
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleListNotifications(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": f.Notifications(),
		"unread_count":  f.UnreadCount(),
	})
}

func (h *Handler) handleMarkAsRead(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	id, ok := h.notificationID(c)
	if !ok {
		return
	}
	f.MarkAsRead(id)
	c.JSON(http.StatusOK, gin.H{"unread_count": f.UnreadCount()})
}

func (h *Handler) handleMarkAllAsRead(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	f.MarkAllAsRead()
	c.JSON(http.StatusOK, gin.H{"unread_count": 0})
}

func (h *Handler) handleClearNotifications(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	f.ClearNotifications()
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleGetSettings(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, f.Settings())
}

func (h *Handler) handleUpdateSettings(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	var patch domain.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings patch"})
		return
	}
	c.JSON(http.StatusOK, f.UpdateSettings(patch))
}

func (h *Handler) handleToggleTheme(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": f.ToggleTheme()})
}

func (h *Handler) handleSetRole(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	var req struct {
		Role domain.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}
	f.SetRole(req.Role)
	c.JSON(http.StatusOK, gin.H{"role": f.Role()})
}

func (h *Handler) handleFreshness(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, f.Freshness())
}

func (h *Handler) handleRefresh(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	f.RefreshData()
	metrics.RefreshCycles.Inc()
	c.JSON(http.StatusAccepted, f.Freshness())
}

// handleSearch recomputes the result set from current state on every call;
// nothing is cached.
func (h *Handler) handleSearch(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	query := f.SearchQuery()
	if q := c.Query("q"); q != "" {
		query = q
	}

	type result struct {
		Kind  string `json:"kind"`
		Title string `json:"title"`
		ID    int64  `json:"id,omitempty"`
	}
	var results []result
	if query != "" {
		needle := strings.ToLower(query)
		for _, m := range moduleNames {
			if strings.Contains(strings.ToLower(m), needle) {
				results = append(results, result{Kind: "module", Title: m})
			}
		}
		for _, a := range f.Alerts() {
			if strings.Contains(strings.ToLower(a.Title), needle) {
				results = append(results, result{Kind: "alert", Title: a.Title, ID: a.ID})
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": results})
}

func (h *Handler) handleSetSearch(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid search payload"})
		return
	}
	f.SetSearchQuery(req.Query)
	c.JSON(http.StatusOK, gin.H{"query": req.Query})
}

var alertExportHeaders = []string{"ID", "Title", "Severity", "Module", "Region", "Time", "Status"}

func alertExportRows(alerts []domain.Alert) []export.Row {
	rows := make([]export.Row, 0, len(alerts))
	for _, a := range alerts {
		status := "active"
		if a.Resolved {
			status = "resolved"
		}
		rows = append(rows, export.Row{
			"ID":       strconv.FormatInt(a.ID, 10),
			"Title":    a.Title,
			"Severity": string(a.Severity),
			"Module":   a.Module,
			"Region":   a.Region,
			"Time":     a.Time,
			"Status":   status,
		})
	}
	return rows
}

func (h *Handler) handleExportCSV(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	if !h.requireCapability(c, f, auth.ActionExport) {
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="alerts.csv"`)
	if err := export.CSV(c.Writer, alertExportHeaders, alertExportRows(f.Alerts())); err != nil {
		h.logger.Error("csv export failed", "error", err)
	}
}

func (h *Handler) handleExportPDF(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	if !h.requireCapability(c, f, auth.ActionExport) {
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `attachment; filename="alerts.pdf"`)
	err := export.PDF(c.Writer, "GSIS Alert Report", alertExportHeaders,
		alertExportRows(f.Alerts()), time.Now())
	if err != nil {
		h.logger.Error("pdf export failed", "error", err)
	}
}

func (h *Handler) handlePredict(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	if !h.requireCapability(c, f, auth.ActionUpload) {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	defer file.Close()

	pred, err := h.inference.Predict(c.Request.Context(), header.Filename, file)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	h.recordUpload(c, header.Filename, pred)
	c.JSON(http.StatusOK, pred)
}

// recordUpload appends one row to the durable analysis history. A write
// failure is logged and the prediction response is served regardless, the
// same degradation policy as an unreachable upstream.
func (h *Handler) recordUpload(c *gin.Context, filename string, pred *inference.Prediction) {
	if h.uploads == nil || pred.Error != "" {
		return
	}
	sess, ok := gate.SessionFrom(c)
	if !ok {
		return
	}
	up := &domain.Upload{
		UserID:         sess.Principal,
		ImageURL:       filename,
		PredictedClass: pred.PredictedClass,
		Confidence:     pred.Confidence,
		Source:         "web",
	}
	if err := h.uploads.Create(c.Request.Context(), up); err != nil {
		h.logger.Warn("failed to record upload history",
			"principal", sess.Principal, "filename", filename, "error", err)
	}
}

func (h *Handler) handleBatchPredict(c *gin.Context) {
	f, ok := h.facade(c)
	if !ok {
		return
	}
	if !h.requireCapability(c, f, auth.ActionUpload) {
		return
	}
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one image file is required"})
		return
	}

	var files []inference.File
	var closers []func() error
	defer func() {
		for _, cl := range closers {
			cl()
		}
	}()
	for _, fh := range form.File["files"] {
		src, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image file"})
			return
		}
		closers = append(closers, src.Close)
		files = append(files, inference.File{Name: fh.Filename, Data: src})
	}

	res, err := h.inference.BatchPredict(c.Request.Context(), files)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	for i := range res.Results {
		h.recordUpload(c, res.Results[i].Filename, &res.Results[i])
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) handleSystemHealth(c *gin.Context) {
	health, stale, err := h.inference.SystemHealth(c.Request.Context())
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"health": health, "stale": stale})
}

func (h *Handler) handleStats(c *gin.Context) {
	stats, stale, err := h.inference.Stats(c.Request.Context())
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "stale": stale})
}

func (h *Handler) handleRegions(c *gin.Context) {
	regions, stale, err := h.inference.Regions(c.Request.Context())
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"regions": regions, "stale": stale})
}

func (h *Handler) handleAdminUsers(c *gin.Context) {
	users, err := h.inference.AdminUsers(c.Request.Context())
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

// upstreamError maps collaborator failures onto recoverable responses: the
// client shows a stale or placeholder state, never a crash.
func (h *Handler) upstreamError(c *gin.Context, err error) {
	if errors.Is(err, inference.ErrUpstreamUnavailable) {
		h.logger.Warn("inference service unreachable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "inference service unavailable", "stale": true,
		})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func (h *Handler) handleListUploads(c *gin.Context) {
	if h.uploads == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upload store not configured"})
		return
	}
	sess, ok := gate.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}

	var (
		rows []domain.Upload
		err  error
	)
	if sess.Role == domain.RoleAdmin && c.Query("scope") == "all" {
		rows, err = h.uploads.ListAll(c.Request.Context())
	} else {
		rows, err = h.uploads.ListByUser(c.Request.Context(), sess.Principal)
	}
	if err != nil {
		h.logger.Error("failed to list uploads", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upload store unavailable", "stale": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploads": rows, "total": len(rows)})
}

func (h *Handler) handleDeleteUpload(c *gin.Context) {
	if h.uploads == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upload store not configured"})
		return
	}
	sess, ok := gate.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	err := h.uploads.Delete(c.Request.Context(), c.Param("id"), sess.Principal, sess.Role == domain.RoleAdmin)
	if err != nil {
		if errors.Is(err, uploads.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
			return
		}
		h.logger.Error("failed to delete upload", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upload store unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}
