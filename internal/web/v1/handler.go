package v1

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/group-admin-service/internal/core/domain"
	"github.com/duynhne/group-admin-service/internal/logger"
	logicv1 "github.com/duynhne/group-admin-service/internal/logic/v1"
	"github.com/duynhne/group-admin-service/middleware"
)

// DefaultMaxAppStateBytes caps an uploaded appState when no limit is configured.
const DefaultMaxAppStateBytes int64 = 5 << 20

// Handler groups HTTP handlers for the group admin API.
// Dependencies are injected via the constructor, there is no global state.
type Handler struct {
	admin            *logicv1.AdminService
	maxAppStateBytes int64
}

// NewHandler creates a new Handler. maxAppStateBytes bounds the login body.
func NewHandler(admin *logicv1.AdminService, maxAppStateBytes int64) *Handler {
	if maxAppStateBytes <= 0 {
		maxAppStateBytes = DefaultMaxAppStateBytes
	}
	return &Handler{admin: admin, maxAppStateBytes: maxAppStateBytes}
}

// RegisterRoutes registers all group admin routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.Login)
	rg.GET("/groups/:sessionId", h.ListGroups)
	rg.POST("/change-all", h.ChangeAll)
	rg.POST("/start-monitoring", h.StartMonitoring)
	rg.POST("/stop-monitoring", h.StopMonitoring)
	rg.GET("/monitoring-status/:sessionId/:groupId", h.MonitoringStatus)
	rg.GET("/session/:sessionId/status", h.SessionStatus)
	rg.POST("/logout/:sessionId", h.Logout)
	rg.GET("/health", h.Health)
}

// startSpan opens the web layer span and carries it on the request context.
func startSpan(c *gin.Context) trace.Span {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("route", c.FullPath()),
	))
	c.Request = c.Request.WithContext(ctx)
	return span
}

// Login handles POST /api/login. The appState arrives either as a JSON body
// field or as an uploaded file in the multipart field "appState".
func (h *Handler) Login(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	raw, err := h.readAppState(c)
	if err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		log.Warn().Err(err).Msg("Invalid login request")

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "appState file is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid appState format"})
		return
	}

	response, err := h.admin.Login(ctx, raw)
	if err != nil {
		span.RecordError(err)

		var upstream *domain.UpstreamError
		switch {
		case errors.Is(err, logicv1.ErrInvalidAppState):
			log.Warn().Err(err).Msg("Invalid appState")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid appState format"})
		case errors.Is(err, domain.ErrAuthRejected):
			log.Warn().Err(err).Msg("Login rejected")
			body := gin.H{"error": "Login failed"}
			if errors.As(err, &upstream) && upstream.Message != "" {
				body["details"] = upstream.Message
			}
			c.JSON(http.StatusUnauthorized, body)
		default:
			log.Error().Err(err).Msg("Login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	log.Info().Msg("Login successful")
	c.JSON(http.StatusOK, response)
}

func (h *Handler) readAppState(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxAppStateBytes)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("appState")
		if err != nil {
			if v, ok := c.GetPostForm("appState"); ok {
				return []byte(v), nil
			}
			return nil, fmt.Errorf("read appState upload: %w", err)
		}
		if fh.Size > h.maxAppStateBytes {
			return nil, &http.MaxBytesError{Limit: h.maxAppStateBytes}
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open appState upload: %w", err)
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, fmt.Errorf("decode login request: %w", err)
	}
	return req.AppState, nil
}

// ListGroups handles GET /api/groups/:sessionId.
func (h *Handler) ListGroups(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	groups, err := h.admin.ListGroups(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.fail(c, span, err, "Failed to fetch groups")
		return
	}

	span.SetAttributes(attribute.Int("groups.count", len(groups)))
	c.JSON(http.StatusOK, domain.GroupsResponse{Groups: groups})
}

// ChangeAll handles POST /api/change-all.
func (h *Handler) ChangeAll(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	var req domain.ChangeAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.FromContext(c.Request.Context()).Warn().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and groupId are required"})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	response, err := h.admin.ChangeAll(c.Request.Context(), req)
	if err != nil {
		h.fail(c, span, err, "Batch change failed")
		return
	}

	logger.FromContext(c.Request.Context()).Info().
		Str("group_id", req.GroupID).
		Int("nickname_success", response.NicknameChanges.Success).
		Int("nickname_failed", response.NicknameChanges.Failed).
		Bool("group_name_changed", response.GroupNameChanged).
		Msg("Batch change finished")
	c.JSON(http.StatusOK, response)
}

// StartMonitoring handles POST /api/start-monitoring.
func (h *Handler) StartMonitoring(c *gin.Context) {
	h.toggleMonitoring(c, true)
}

// StopMonitoring handles POST /api/stop-monitoring.
func (h *Handler) StopMonitoring(c *gin.Context) {
	h.toggleMonitoring(c, false)
}

func (h *Handler) toggleMonitoring(c *gin.Context, on bool) {
	span := startSpan(c)
	defer span.End()

	var req domain.MonitoringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and groupId are required"})
		return
	}

	var err error
	if on {
		err = h.admin.StartMonitoring(c.Request.Context(), req.SessionID, req.GroupID)
	} else {
		err = h.admin.StopMonitoring(c.Request.Context(), req.SessionID, req.GroupID)
	}
	if err != nil {
		h.fail(c, span, err, "Monitoring update failed")
		return
	}

	c.JSON(http.StatusOK, domain.MonitoringResponse{Success: true, Monitoring: on})
}

// MonitoringStatus handles GET /api/monitoring-status/:sessionId/:groupId.
func (h *Handler) MonitoringStatus(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	status, err := h.admin.MonitoringStatus(c.Request.Context(), c.Param("sessionId"), c.Param("groupId"))
	if err != nil {
		h.fail(c, span, err, "Monitoring status failed")
		return
	}
	c.JSON(http.StatusOK, status)
}

// SessionStatus handles GET /api/session/:sessionId/status.
func (h *Handler) SessionStatus(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	status, err := h.admin.SessionStatus(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.fail(c, span, err, "Session status failed")
		return
	}
	c.JSON(http.StatusOK, status)
}

// Logout handles POST /api/logout/:sessionId. It always succeeds.
func (h *Handler) Logout(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	h.admin.Logout(c.Request.Context(), c.Param("sessionId"))
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Health handles GET /api/health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.admin.Health())
}

// fail maps a business error to its HTTP response. Unexpected errors are
// logged in full and answered with a generic body.
func (h *Handler) fail(c *gin.Context, span trace.Span, err error, msg string) {
	span.RecordError(err)
	log := logger.FromContext(c.Request.Context())

	switch {
	case errors.Is(err, logicv1.ErrMissingFields):
		log.Warn().Err(err).Msg(msg)
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and groupId are required"})
	case errors.Is(err, logicv1.ErrEmptyMutation):
		log.Warn().Err(err).Msg(msg)
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one of nickname or groupName is required"})
	case errors.Is(err, logicv1.ErrSessionNotFound):
		log.Warn().Err(err).Msg(msg)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
	default:
		log.Error().Err(err).Msg(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
