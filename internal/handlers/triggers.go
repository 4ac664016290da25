package handlers

import (
	"errors"
	"net/http"

	"metering_dashboard/internal/service"

	"github.com/gin-gonic/gin"
)

// Request DTO for creating/updating a trigger.
type triggerRequest struct {
	SimulatorID      string  `json:"simulator_id"`
	PhoneNumber      string  `json:"phone_number" binding:"required"`
	ThresholdPercent float64 `json:"threshold_percent" binding:"required"`
	IsActive         *bool   `json:"is_active"`
}

func (r triggerRequest) params() service.TriggerParams {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return service.TriggerParams{
		SimulatorID:      r.SimulatorID,
		PhoneNumber:      r.PhoneNumber,
		ThresholdPercent: r.ThresholdPercent,
		IsActive:         active,
	}
}

// @Summary      List triggers
// @Tags         triggers
// @Produce      json
// @Param        simulator_id  query  string  false  "Filter by simulator"
// @Success      200  {object}  map[string]interface{}  "count, triggers"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/triggers [get]
// @Security     BearerAuth
func (h *Handler) listTriggers(c *gin.Context) {
	triggers, err := h.services.Triggers.List(c.Request.Context(), c.Query("simulator_id"))
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to list triggers", "trigger_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(triggers), "triggers": triggers})
}

// @Summary      Create trigger
// @Tags         triggers
// @Accept       json
// @Produce      json
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/triggers [post]
// @Security     BearerAuth
func (h *Handler) createTrigger(c *gin.Context) {
	var req triggerRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	t, err := h.services.Triggers.Create(c.Request.Context(), req.params())
	if err != nil {
		h.respondTriggerError(c, err, "trigger_create_failed")
		return
	}
	c.JSON(http.StatusCreated, t)
}

// @Summary      Update trigger
// @Tags         triggers
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Trigger id"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/triggers/{id} [put]
// @Security     BearerAuth
func (h *Handler) updateTrigger(c *gin.Context) {
	var req triggerRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	t, err := h.services.Triggers.Update(c.Request.Context(), c.Param("id"), req.params())
	if err != nil {
		h.respondTriggerError(c, err, "trigger_update_failed")
		return
	}
	c.JSON(http.StatusOK, t)
}

// @Summary      Toggle trigger activation
// @Tags         triggers
// @Produce      json
// @Param        id  path  string  true  "Trigger id"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/triggers/{id}/toggle [patch]
// @Security     BearerAuth
func (h *Handler) toggleTrigger(c *gin.Context) {
	t, err := h.services.Triggers.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondTriggerError(c, err, "trigger_toggle_failed")
		return
	}
	c.JSON(http.StatusOK, t)
}

// @Summary      Delete trigger
// @Description  Also purges the trigger's hysteresis and cooldown state.
// @Tags         triggers
// @Produce      json
// @Param        id  path  string  true  "Trigger id"
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/triggers/{id} [delete]
// @Security     BearerAuth
func (h *Handler) deleteTrigger(c *gin.Context) {
	if err := h.services.Triggers.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondTriggerError(c, err, "trigger_delete_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) respondTriggerError(c *gin.Context, err error, logKey string) {
	switch {
	case errors.Is(err, service.ErrTriggerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDuplicateTrigger):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSimulatorRequired),
		errors.Is(err, service.ErrInvalidPhone),
		errors.Is(err, service.ErrInvalidThreshold):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, "trigger operation failed", logKey, err)
	}
}
