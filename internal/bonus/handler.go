package bonus

import (
	"errors"
	"net/http"

	"skibook/internal/api"
	"skibook/internal/auth"
	"skibook/internal/logger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// @Summary      Create a bonus rule
// @Tags         admin,bonus
// @Accept       json
// @Produce      json
// @Param        request body bonus.CreateSettingRequest true "Rule"
// @Success      201 {object} bonus.Setting
// @Failure      400 {object} api.ErrorResponse
// @Router       /admin/bonus-settings [post]
func (h *Handler) CreateSetting(c *gin.Context) {
	var req CreateSettingRequest
	if !api.BindJSON(c, &req) {
		return
	}

	setting, err := h.service.CreateSetting(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidSetting) || errors.Is(err, ErrUnknownType) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
			return
		}
		logger.Error("failed to create bonus setting", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to create bonus setting"})
		return
	}

	c.JSON(http.StatusCreated, setting)
}

func (h *Handler) ListSettings(c *gin.Context) {
	settings, err := h.service.ListSettings(c.Request.Context())
	if err != nil {
		logger.Error("failed to list bonus settings", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to fetch bonus settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// ListMine returns the bonuses credited to the authenticated client.
func (h *Handler) ListMine(c *gin.Context) {
	clientID, ok := auth.GetClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "client not authenticated"})
		return
	}

	bonuses, err := h.service.ListClientBonuses(c.Request.Context(), clientID)
	if err != nil {
		logger.Error("failed to list client bonuses", "client_id", clientID, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to fetch bonuses"})
		return
	}
	c.JSON(http.StatusOK, bonuses)
}
