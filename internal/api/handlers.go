package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"reporting-service/internal/db"
	"reporting-service/internal/logging"
	"reporting-service/internal/models"
	"reporting-service/internal/reporting"
	"reporting-service/internal/sharing"
)

// ReportService is the reporting pipeline as seen by HTTP handlers.
type ReportService interface {
	Submit(ctx context.Context, kind string, payload reporting.Payload, userID int64) (reporting.Result, error)
	Report(ctx context.Context, id int64) (models.Report, error)
	Latest(ctx context.Context, corridorID int64, kind models.ReportKind) (models.Report, error)
	List(ctx context.Context, kind models.ReportKind, limit int) ([]models.Report, error)
}

// UserService updates the data audience resolution relies on.
type UserService interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
	UpdateDeviceToken(ctx context.Context, userID int64, token string) error
	UpdateLocation(ctx context.Context, userID int64, p models.Point) error
}

// ConnectionHub accepts regulator WebSocket connections.
type ConnectionHub interface {
	AddConnection(userID int64, conn *websocket.Conn) bool
	RemoveConnection(userID int64, conn *websocket.Conn)
}

type Handler struct {
	reports       ReportService
	users         UserService
	shares        sharing.Store
	hub           ConnectionHub
	health        func(ctx context.Context) error
	logger        *logging.Logger
	publicBaseURL string
	basePath      string
	upgrader      websocket.Upgrader
}

// HandlerDeps groups the collaborators of Handler.
type HandlerDeps struct {
	Reports       ReportService
	Users         UserService
	Shares        sharing.Store
	Hub           ConnectionHub
	Health        func(ctx context.Context) error
	Logger        *logging.Logger
	PublicBaseURL string
	BasePath      string
}

func NewHandler(d HandlerDeps) *Handler {
	return &Handler{
		reports:       d.Reports,
		users:         d.Users,
		shares:        d.Shares,
		hub:           d.Hub,
		health:        d.Health,
		logger:        d.Logger,
		publicBaseURL: strings.TrimRight(d.PublicBaseURL, "/"),
		basePath:      d.BasePath,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SubmitResponse is returned by SubmitReport.
type SubmitResponse struct {
	OK        bool                    `json:"ok"`
	Duplicate bool                    `json:"duplicate"`
	Report    models.Report           `json:"report"`
	Delivery  *models.DeliveryOutcome `json:"delivery,omitempty"`
}

func (h *Handler) SubmitReport(c *gin.Context) {
	id, _ := identityFrom(c)
	kind := c.Param("kind")

	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var payload reporting.Payload
	if err := dec.Decode(&payload); err != nil || payload == nil {
		BadRequest(c, "Request body must be a JSON object", "INVALID_BODY")
		return
	}

	res, err := h.reports.Submit(c.Request.Context(), kind, payload, id.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	body := SubmitResponse{OK: true, Duplicate: res.Duplicate, Report: res.Report, Delivery: res.Outcome}
	if res.Duplicate {
		Success(c, body)
		return
	}
	Created(c, body)
}

func (h *Handler) GetReport(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "Invalid report id", "INVALID_ID")
		return
	}
	report, err := h.reports.Report(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	Success(c, report)
}

func (h *Handler) LatestReport(c *gin.Context) {
	corridorID, err := strconv.ParseInt(c.Query("corridor_id"), 10, 64)
	if err != nil {
		BadRequest(c, "corridor_id must be numeric", "INVALID_QUERY")
		return
	}
	kind, ok := models.ParseReportKind(c.Query("kind"))
	if !ok {
		BadRequest(c, "Unknown report kind", "INVALID_QUERY")
		return
	}
	report, err := h.reports.Latest(c.Request.Context(), corridorID, kind)
	if err != nil {
		h.writeError(c, err)
		return
	}
	Success(c, report)
}

func (h *Handler) ListReports(c *gin.Context) {
	kind, ok := models.ParseReportKind(c.Query("kind"))
	if !ok {
		BadRequest(c, "Unknown report kind", "INVALID_QUERY")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			BadRequest(c, "limit must be a positive number", "INVALID_QUERY")
			return
		}
		limit = n
	}
	reports, err := h.reports.List(c.Request.Context(), kind, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}
	Success(c, reports)
}

func (h *Handler) UpdateDeviceToken(c *gin.Context) {
	id, _ := identityFrom(c)
	var req struct {
		DeviceToken *string `json:"device_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ValidationFailed(c, "device_token is required")
		return
	}
	if err := h.users.UpdateDeviceToken(c.Request.Context(), id.UserID, strings.TrimSpace(*req.DeviceToken)); err != nil {
		h.writeError(c, err)
		return
	}
	Success(c, gin.H{"updated": true})
}

func (h *Handler) UpdateLocation(c *gin.Context) {
	id, _ := identityFrom(c)
	var req struct {
		Lat *float64 `json:"lat" binding:"required"`
		Lng *float64 `json:"lng" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ValidationFailed(c, "lat and lng are required")
		return
	}
	p := models.Point{Lat: *req.Lat, Lng: *req.Lng}
	if !p.Valid() {
		ValidationFailed(c, "lat/lng out of range")
		return
	}
	if err := h.users.UpdateLocation(c.Request.Context(), id.UserID, p); err != nil {
		h.writeError(c, err)
		return
	}
	Success(c, gin.H{"updated": true})
}

// ShareResponse is returned when a user starts sharing their location.
type ShareResponse struct {
	Token          string    `json:"token"`
	ShareURL       string    `json:"share_url"`
	ExpiresAt      time.Time `json:"expires_at"`
	ExpiresInHours float64   `json:"expires_in_hours"`
}

func (h *Handler) CreateShare(c *gin.Context) {
	id, _ := identityFrom(c)
	share, err := h.shares.Create(c.Request.Context(), id.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	Created(c, ShareResponse{
		Token:          share.Token,
		ShareURL:       h.publicBaseURL + h.basePath + "/share/" + share.Token,
		ExpiresAt:      share.ExpiresAt,
		ExpiresInHours: time.Until(share.ExpiresAt).Round(time.Minute).Hours(),
	})
}

// SharedLocation is what a share link exposes.
type SharedLocation struct {
	UserID    int64         `json:"user_id"`
	Name      string        `json:"name"`
	Location  *models.Point `json:"location"`
	ExpiresAt time.Time     `json:"expires_at"`
}

func (h *Handler) GetShare(c *gin.Context) {
	share, err := h.shares.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	user, err := h.users.GetUser(c.Request.Context(), share.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if user.Location == nil {
		NotFound(c, "Location not available yet", "LOCATION_UNAVAILABLE")
		return
	}
	Success(c, SharedLocation{UserID: user.ID, Name: user.Name, Location: user.Location, ExpiresAt: share.ExpiresAt})
}

func (h *Handler) RevokeShare(c *gin.Context) {
	id, _ := identityFrom(c)
	token := c.Param("token")
	share, err := h.shares.Resolve(c.Request.Context(), token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if share.UserID != id.UserID {
		Forbidden(c, "Only the owner can revoke a share link", "FORBIDDEN")
		return
	}
	if err := h.shares.Revoke(c.Request.Context(), token); err != nil {
		h.writeError(c, err)
		return
	}
	Success(c, gin.H{"revoked": true})
}

// RegulatorFeed upgrades to a WebSocket that receives every report announcement.
func (h *Handler) RegulatorFeed(c *gin.Context) {
	id, _ := identityFrom(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.ForRequest(c.GetString(requestIDKey)).Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	if !h.hub.AddConnection(id.UserID, conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"))
		_ = conn.Close()
		return
	}
	defer func() {
		h.hub.RemoveConnection(id.UserID, conn)
		_ = conn.Close()
	}()

	// Drain client frames until the connection closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) Health(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps domain errors to HTTP replies.
func (h *Handler) writeError(c *gin.Context, err error) {
	var ve *reporting.ValidationError
	switch {
	case errors.As(err, &ve):
		ValidationFailed(c, ve.Error())
	case errors.Is(err, reporting.ErrUnknownReportKind):
		ValidationFailed(c, err.Error())
	case errors.Is(err, reporting.ErrNoCorridorAssigned):
		Conflict(c, "Emitter has no assigned corridor", "NO_CORRIDOR_ASSIGNED")
	case errors.Is(err, reporting.ErrReportNotFound):
		NotFound(c, "Report not found", "REPORT_NOT_FOUND")
	case errors.Is(err, db.ErrUserNotFound):
		NotFound(c, "User not found", "USER_NOT_FOUND")
	case errors.Is(err, sharing.ErrTokenNotFound):
		NotFound(c, "Share link not found or expired", "SHARE_NOT_FOUND")
	case errors.Is(err, reporting.ErrStorage):
		h.logger.ForRequest(c.GetString(requestIDKey)).Errorf("Storage failure: %v", err)
		Error(c, http.StatusInternalServerError, "Database error", "DATABASE_ERROR")
	default:
		h.logger.ForRequest(c.GetString(requestIDKey)).Errorf("Unhandled error: %v", err)
		InternalServerError(c, "Internal server error")
	}
}
