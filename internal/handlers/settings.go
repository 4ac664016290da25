package handlers

import (
	"errors"
	"net/http"

	md "metering_dashboard"
	"metering_dashboard/internal/service"

	"github.com/gin-gonic/gin"
)

type settingsRequest struct {
	CooldownMinutes                 *int  `json:"cooldown_minutes" binding:"required"`
	MaxDailyNotificationsPerTrigger *int  `json:"max_daily_notifications_per_trigger" binding:"required"`
	EnabledGlobally                 *bool `json:"enabled_globally" binding:"required"`
}

// @Summary      Get dispatch settings
// @Tags         settings
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/settings [get]
// @Security     BearerAuth
func (h *Handler) getSettings(c *gin.Context) {
	s, err := h.services.Settings.Get(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load settings", "settings_load_failed", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// @Summary      Update dispatch settings
// @Tags         settings
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/settings [put]
// @Security     BearerAuth
func (h *Handler) updateSettings(c *gin.Context) {
	var req settingsRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	s, err := h.services.Settings.Update(c.Request.Context(), md.Settings{
		CooldownMinutes:                 *req.CooldownMinutes,
		MaxDailyNotificationsPerTrigger: *req.MaxDailyNotificationsPerTrigger,
		EnabledGlobally:                 *req.EnabledGlobally,
	})
	if err != nil {
		if errors.Is(err, service.ErrNegativeCooldown) || errors.Is(err, service.ErrInvalidDailyCap) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to save settings", "settings_save_failed", err)
		return
	}
	c.JSON(http.StatusOK, s)
}
