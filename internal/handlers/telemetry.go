package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"carbonledger/internal/service"
	"carbonledger/internal/telemetry"

	"github.com/gin-gonic/gin"
)

// maxTelemetryBody bounds the ingestion payload; both wire shapes are small.
const maxTelemetryBody = 1 << 14 // 16 KB

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// respondDomainError maps taxonomy errors to status codes. Returns false if
// the error was not a recognized domain error.
func (h *Handler) respondDomainError(c *gin.Context, err error) bool {
	var verr *telemetry.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, service.ErrInvalidThreshold):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnknownDevice):
		c.JSON(http.StatusNotFound, gin.H{"error": "device not registered"})
	case errors.Is(err, service.ErrDeviceConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "device is registered to another company"})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		return false
	}
	return true
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary      Ingest a telemetry reading
// @Description  Accepts either the verbose or the compact payload shape. Returns once the reading is durably persisted and accumulated.
// @Tags         telemetry
// @Accept       json
// @Produce      json
// @Param        device_id  query  string  false  "Device id when the payload omits it"
// @Success      201  {object}  service.IngestResult
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/telemetry [post]
// @Security     ApiKeyAuth
func (h *Handler) ingestTelemetry(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTelemetryBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	res, err := h.services.Ingestion.Ingest(c.Request.Context(), raw, c.Query("device_id"), companyID(c))
	if err != nil {
		if h.respondDomainError(c, err) {
			return
		}
		// A deadline mid-pipeline means the reading may already be durable:
		// report the outcome as unknown, not failed.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"outcome": "unknown", "error": "ingestion timed out; reading may be stored"})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to ingest reading", "telemetry_ingest_failed", err)
		return
	}

	c.JSON(http.StatusCreated, res)
}
