package handlers

import (
	"net/http"

	"metering_dashboard/internal/feed"
	"metering_dashboard/internal/logger"
	"metering_dashboard/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the HTTP layer to services, the live feed, and logging.
type Handler struct {
	services *service.Service
	hub      *feed.Hub
	log      *logger.Logger
}

func NewHandler(services *service.Service, hub *feed.Hub, log *logger.Logger) *Handler {
	return &Handler{services: services, hub: hub, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// Live push-event feed, served on the same port via HTTP upgrade.
	router.GET("/ws/:id", h.wsFeed)

	return router
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerSimulatorRoutes(api)
		h.registerTriggerRoutes(api)
		h.registerSettingsRoutes(api)
		h.registerHistoryRoutes(api)
	}
}

func (h *Handler) registerSimulatorRoutes(api *gin.RouterGroup) {
	sims := api.Group("/simulators")
	{
		sims.GET("/", h.listSimulators)
		sims.POST("/:id/start", h.startEmitter)
		sims.POST("/:id/stop", h.stopEmitter)
		sims.GET("/:id/block", h.getBlock)
	}
}

func (h *Handler) registerTriggerRoutes(api *gin.RouterGroup) {
	triggers := api.Group("/triggers")
	{
		triggers.GET("/", h.listTriggers)
		triggers.POST("/", h.createTrigger)
		triggers.PUT("/:id", h.updateTrigger)
		triggers.PATCH("/:id/toggle", h.toggleTrigger)
		triggers.DELETE("/:id", h.deleteTrigger)
	}
}

func (h *Handler) registerSettingsRoutes(api *gin.RouterGroup) {
	settings := api.Group("/settings")
	{
		settings.GET("/", h.getSettings)
		settings.PUT("/", h.updateSettings)
	}
}

func (h *Handler) registerHistoryRoutes(api *gin.RouterGroup) {
	history := api.Group("/history")
	{
		history.GET("/", h.getHistory)
	}
}
