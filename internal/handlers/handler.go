package handlers

import (
	"carbonledger/internal/logger"
	"carbonledger/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger

	// apiKeys maps an application API key to the company id it is bound to.
	apiKeys map[string]string

	hub *wsHub
}

// NewHandler constructs a new HTTP handler with dependencies. The returned
// handler owns the websocket hub and registers it as the ledger's
// confirmed-transaction feed.
func NewHandler(services *service.Service, apiKeys map[string]string, log *logger.Logger) *Handler {
	h := &Handler{
		services: services,
		log:      log,
		apiKeys:  apiKeys,
		hub:      newWSHub(log),
	}
	services.Ledger.SetConfirmedHook(h.hub.Broadcast)
	return h
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Versioned API endpoints (API-key protected)
	h.registerAPIRoutes(router)

	// WebSocket feed of confirmed transactions — same port
	router.GET("/ws", h.apiKeyMiddleware, h.wsConnect)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.apiKeyMiddleware)
	{
		api.POST("/telemetry", h.ingestTelemetry)
		h.registerDeviceRoutes(api)
		h.registerLedgerRoutes(api)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	devices := api.Group("/devices")
	{
		devices.POST("", h.registerDevice)
		devices.GET("", h.listDevices)
		devices.GET("/:id", h.getDevice)
		devices.PUT("/:id/threshold", h.updateThreshold)
		devices.DELETE("/:id", h.deactivateDevice)
		devices.GET("/:id/readings", h.listReadings)
	}
}

func (h *Handler) registerLedgerRoutes(api *gin.RouterGroup) {
	api.GET("/credits", h.getCompanyCredit)
	api.GET("/transactions", h.listTransactions)
}
