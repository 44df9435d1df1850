package handlers

import (
	"net/http"
	"strconv"
	"time"

	"carbonledger/internal/models"
	"carbonledger/internal/service"

	"github.com/gin-gonic/gin"
)

// RegisterDeviceRequest is the device registration payload.
type RegisterDeviceRequest struct {
	DeviceID      string   `json:"device_id" binding:"required" example:"24:6F:28:AE:52:7C"`
	DeviceType    string   `json:"device_type" example:"SEQUESTER"` // SEQUESTER | EMITTER
	WalletAddress string   `json:"wallet_address,omitempty"`
	Location      string   `json:"location,omitempty"`
	Co2Threshold  *float64 `json:"co2_threshold,omitempty"`
	EnergyThresh  *float64 `json:"energy_threshold,omitempty"`
	TimeWindowSec *int     `json:"time_window_seconds,omitempty"`
}

// ThresholdRequest updates a device's accumulation policy.
type ThresholdRequest struct {
	Co2Threshold    float64 `json:"co2_threshold" binding:"required" example:"1000"`
	EnergyThreshold float64 `json:"energy_threshold" binding:"required" example:"500"`
	TimeWindowSec   int     `json:"time_window_seconds" binding:"required" example:"3600"`
}

// bindJSONOrBadRequest tries to bind the request body into dst and writes a 400 JSON on failure.
// Returns false if the request was already handled (aborted), true otherwise.
func (h *Handler) bindJSONOrBadRequest(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if h.log != nil {
			h.log.Infow("bad_request_body", "err", err)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// @Summary      Register a device
// @Description  Seeds default thresholds when none are given. Re-registering under the same company touches lastSeen; another company's id is a conflict.
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        body  body  RegisterDeviceRequest  true  "Device payload"
// @Success      200   {object}  models.Device  "already registered"
// @Success      201   {object}  models.Device
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/devices [post]
// @Security     ApiKeyAuth
func (h *Handler) registerDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}

	params := service.RegisterParams{
		DeviceID:      req.DeviceID,
		DeviceType:    req.DeviceType,
		CompanyID:     companyID(c),
		WalletAddress: req.WalletAddress,
		Location:      req.Location,
	}
	if req.Co2Threshold != nil || req.EnergyThresh != nil || req.TimeWindowSec != nil {
		th := models.DefaultThreshold()
		if req.Co2Threshold != nil {
			th.Co2Threshold = *req.Co2Threshold
		}
		if req.EnergyThresh != nil {
			th.EnergyThreshold = *req.EnergyThresh
		}
		if req.TimeWindowSec != nil {
			th.TimeWindowSec = *req.TimeWindowSec
		}
		params.Threshold = &th
	}

	device, created, err := h.services.Devices.Register(c.Request.Context(), params)
	if err != nil {
		if h.respondDomainError(c, err) {
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to register device", "device_register_failed", err, "device", req.DeviceID)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, device)
}

// @Summary      List registered devices
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, devices"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     ApiKeyAuth
func (h *Handler) listDevices(c *gin.Context) {
	devices, err := h.services.Devices.List(c.Request.Context(), companyID(c))
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load devices", "device_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(devices), "devices": devices})
}

// @Summary      Get one device
// @Tags         devices
// @Produce      json
// @Param        id  path  string  true  "Device id"
// @Success      200  {object}  models.Device
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/devices/{id} [get]
// @Security     ApiKeyAuth
func (h *Handler) getDevice(c *gin.Context) {
	device, err := h.services.Devices.Get(c.Request.Context(), companyID(c), c.Param("id"))
	if err != nil {
		if h.respondDomainError(c, err) {
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load device", "device_get_failed", err, "device", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, device)
}

// @Summary      Update device thresholds
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path  string            true  "Device id"
// @Param        body  body  ThresholdRequest  true  "Threshold payload"
// @Success      200   {object}  models.Device
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/devices/{id}/threshold [put]
// @Security     ApiKeyAuth
func (h *Handler) updateThreshold(c *gin.Context) {
	var req ThresholdRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}

	th := models.Threshold{
		Co2Threshold:    req.Co2Threshold,
		EnergyThreshold: req.EnergyThreshold,
		TimeWindowSec:   req.TimeWindowSec,
	}
	device, err := h.services.Devices.UpdateThreshold(c.Request.Context(), companyID(c), c.Param("id"), th)
	if err != nil {
		if h.respondDomainError(c, err) {
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to update threshold", "threshold_update_failed", err, "device", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, device)
}

// @Summary      Deactivate a device
// @Description  Soft-deactivation; telemetry from the device is rejected until reactivated. Devices are never deleted.
// @Tags         devices
// @Produce      json
// @Param        id  path  string  true  "Device id"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id} [delete]
// @Security     ApiKeyAuth
func (h *Handler) deactivateDevice(c *gin.Context) {
	if err := h.services.Devices.Deactivate(c.Request.Context(), companyID(c), c.Param("id")); err != nil {
		if h.respondDomainError(c, err) {
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to deactivate device", "device_deactivate_failed", err, "device", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// @Summary      Device reading history
// @Tags         devices
// @Produce      json
// @Param        id     path   string  true   "Device id"
// @Param        from   query  string  false  "Start of range (RFC3339)"
// @Param        to     query  string  false  "End of range (RFC3339)"
// @Param        limit  query  int     false  "Max rows (default 100)"
// @Success      200  {object}  map[string]interface{}  "count, readings"
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id}/readings [get]
// @Security     ApiKeyAuth
func (h *Handler) listReadings(c *gin.Context) {
	var from, to time.Time
	var err error
	if qs := c.Query("from"); qs != "" {
		if from, err = time.Parse(time.RFC3339, qs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' time; use RFC3339"})
			return
		}
	}
	if qs := c.Query("to"); qs != "" {
		if to, err = time.Parse(time.RFC3339, qs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' time; use RFC3339"})
			return
		}
	}
	limit := 100
	if qs := c.Query("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			limit = v
		}
	}

	readings, err := h.services.Readings.History(c.Request.Context(), companyID(c), c.Param("id"), from, to, limit)
	if err != nil {
		if h.respondDomainError(c, err) {
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load readings", "readings_list_failed", err, "device", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(readings), "readings": readings})
}
