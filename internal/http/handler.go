package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"checkpoint-gate/internal/actuator"
	"checkpoint-gate/internal/config"
	"checkpoint-gate/internal/domain/gate"
	"checkpoint-gate/internal/service"
	"checkpoint-gate/internal/stream"
)

// GateService is the part of service.GateService the handlers use.
type GateService interface {
	FindEvents(ctx context.Context, vehicleQuery *string, from, to *string, limit, offset int) ([]gate.ActuationEvent, error)
	FindRecognitions(ctx context.Context, plateQuery *string, limit, offset int) ([]gate.Recognition, error)
	GateStatus() (service.GateStatus, error)
	OpenManually(operator string) error
}

type Handler struct {
	gateService GateService
	hub         *stream.Hub
	config      *config.Config
	log         zerolog.Logger
}

func NewHandler(
	gateService GateService,
	hub *stream.Hub,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		gateService: gateService,
		hub:         hub,
		config:      cfg,
		log:         log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/healthz", h.health)
	r.GET("/video_feed", h.videoFeed)

	public := r.Group("/api/v1")
	{
		public.GET("/events", h.listEvents)
		public.GET("/recognitions", h.listRecognitions)
		public.GET("/gate", h.gateStatus)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/gate/open", h.openGate)
	}
}

func (h *Handler) health(c *gin.Context) {
	status := gin.H{"status": "ok", "checkpoint": h.config.Checkpoint.Name}
	if err := h.hub.Err(); err != nil {
		status["camera"] = err.Error()
	}
	c.JSON(http.StatusOK, status)
}

// videoFeed streams the annotated live view, or sends the operator to the
// record-creation page when the camera could not be opened.
func (h *Handler) videoFeed(c *gin.Context) {
	if err := h.hub.Err(); err != nil {
		h.log.Warn().Err(err).Str("redirect", h.config.HTTP.FallbackURL).Msg("video source unavailable")
		c.Redirect(http.StatusSeeOther, h.config.HTTP.FallbackURL)
		return
	}

	frames, cancel := h.hub.Subscribe()
	defer cancel()

	c.Header("Content-Type", stream.ContentType)
	c.Header("Cache-Control", "no-cache, no-store")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	if err := stream.WriteMultipart(c.Request.Context(), c.Writer, frames, c.Writer.Flush); err != nil {
		h.log.Debug().Err(err).Msg("viewer disconnected")
	}
}

func (h *Handler) listEvents(c *gin.Context) {
	var vehicleQuery *string
	if v := strings.TrimSpace(c.Query("vehicle_id")); v != "" {
		vehicleQuery = &v
	}

	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}
	limit, offset := pagination(c)

	events, err := h.gateService.FindEvents(c.Request.Context(), vehicleQuery, from, to, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) listRecognitions(c *gin.Context) {
	var plateQuery *string
	if p := strings.TrimSpace(c.Query("plate")); p != "" {
		plateQuery = &p
	}
	limit, offset := pagination(c)

	recs, err := h.gateService.FindRecognitions(c.Request.Context(), plateQuery, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(recs))
}

func (h *Handler) gateStatus(c *gin.Context) {
	status, err := h.gateService.GateStatus()
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(status))
}

func (h *Handler) openGate(c *gin.Context) {
	operator := c.GetString(operatorKey)
	if err := h.gateService.OpenManually(operator); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, actuator.ErrBusy):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNoActuator):
		c.JSON(http.StatusServiceUnavailable, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func pagination(c *gin.Context) (int, int) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
