package handlers

import (
	"errors"
	"net/http"

	"metering_dashboard/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusStarted = "started"
	statusStopped = "stopped"

	errStartEmitter = "failed to start emitter"
	errStopEmitter  = "failed to stop emitter"
	errGetBlock     = "failed to load block"
)

// logAndJSONError centralizes error logging plus the JSON error response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// @Summary      List simulators
// @Tags         simulators
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, simulators"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/simulators [get]
// @Security     BearerAuth
func (h *Handler) listSimulators(c *gin.Context) {
	sims := h.services.Emitters.Status()
	c.JSON(http.StatusOK, gin.H{
		"count":      len(sims),
		"simulators": sims,
	})
}

// @Summary      Start load emitter
// @Tags         simulators
// @Produce      json
// @Param        id   path      string  true  "Simulator id"
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/simulators/{id}/start [post]
// @Security     BearerAuth
func (h *Handler) startEmitter(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.Emitters.Start(c.Request.Context(), id); err != nil {
		h.respondEmitterError(c, id, err, errStartEmitter, service.ErrEmitterRunning)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusStarted, "simulator_id": id})
}

// @Summary      Stop load emitter
// @Tags         simulators
// @Produce      json
// @Param        id   path      string  true  "Simulator id"
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/simulators/{id}/stop [post]
// @Security     BearerAuth
func (h *Handler) stopEmitter(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.Emitters.Stop(c.Request.Context(), id); err != nil {
		h.respondEmitterError(c, id, err, errStopEmitter, service.ErrEmitterNotRunning)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusStopped, "simulator_id": id})
}

// @Summary      Current accounting block
// @Description  Returns the current 30-minute block snapshot; a zero-valued block when no data exists yet.
// @Tags         simulators
// @Produce      json
// @Param        id   path      string  true  "Simulator id"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/simulators/{id}/block [get]
// @Security     BearerAuth
func (h *Handler) getBlock(c *gin.Context) {
	id := c.Param("id")
	block, err := h.services.Monitoring.GetBlock(c.Request.Context(), id)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetBlock, "block_load_failed", err, "simulator_id", id)
		return
	}
	c.JSON(http.StatusOK, block)
}

func (h *Handler) respondEmitterError(c *gin.Context, id string, err error, userMsg string, conflict error) {
	switch {
	case errors.Is(err, service.ErrUnknownSimulator):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, userMsg, "emitter_control_failed", err, "simulator_id", id)
	}
}
