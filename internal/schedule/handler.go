package schedule

import (
	"errors"
	"net/http"
	"strconv"

	"skibook/internal/api"
	"skibook/internal/logger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// @Summary      Create a resource
// @Description  Admin-only: add a simulator or an instructor
// @Tags         admin,schedule
// @Accept       json
// @Produce      json
// @Param        request body schedule.CreateResourceRequest true "Resource payload"
// @Success      201 {object} schedule.Resource
// @Failure      400 {object} api.ErrorResponse
// @Router       /admin/resources [post]
func (h *Handler) CreateResource(c *gin.Context) {
	var req CreateResourceRequest
	if !api.BindJSON(c, &req) {
		return
	}

	res, err := h.service.CreateResource(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, "Failed to create resource")
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListResources(c *gin.Context) {
	resources, err := h.service.ListResources(c.Request.Context())
	if err != nil {
		writeError(c, err, "Failed to fetch resources")
		return
	}

	c.JSON(http.StatusOK, resources)
}

// @Summary      List slots of a resource
// @Tags         schedule
// @Produce      json
// @Param        resourceID path int true "Resource ID"
// @Param        from query string false "First date, YYYY-MM-DD"
// @Param        to query string false "Last date, YYYY-MM-DD"
// @Success      200 {array} schedule.Slot
// @Router       /resources/{resourceID}/slots [get]
func (h *Handler) ListSlots(c *gin.Context) {
	resourceID, ok := idParam(c, "resourceID")
	if !ok {
		return
	}

	slots, err := h.service.ListSlots(c.Request.Context(), resourceID, c.Query("from"), c.Query("to"))
	if err != nil {
		writeError(c, err, "Failed to fetch slots")
		return
	}

	c.JSON(http.StatusOK, slots)
}

// @Summary      Generate slots
// @Description  Admin-only: bulk or single-day slot generation; existing slots are kept
// @Tags         admin,schedule
// @Router       /admin/slots/generate [post]
func (h *Handler) GenerateSlots(c *gin.Context) {
	var req GenerateSlotsRequest
	if !api.BindJSON(c, &req) {
		return
	}

	result, err := h.service.GenerateSlots(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, "Failed to generate slots")
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) CreateBlock(c *gin.Context) {
	var req CreateBlockRequest
	if !api.BindJSON(c, &req) {
		return
	}

	result, err := h.service.CreateBlock(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, "Failed to create block")
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) DeleteBlock(c *gin.Context) {
	blockID, ok := idParam(c, "blockID")
	if !ok {
		return
	}

	freed, err := h.service.DeleteBlock(c.Request.Context(), blockID)
	if err != nil {
		writeError(c, err, "Failed to delete block")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "block removed", "slots_freed": freed})
}

func (h *Handler) CreateGroupTraining(c *gin.Context) {
	var req CreateGroupTrainingRequest
	if !api.BindJSON(c, &req) {
		return
	}

	group, err := h.service.CreateGroupTraining(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, "Failed to create group training")
		return
	}

	c.JSON(http.StatusCreated, group)
}

func (h *Handler) ListGroupTrainings(c *gin.Context) {
	groups, err := h.service.ListGroupTrainings(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		writeError(c, err, "Failed to fetch group trainings")
		return
	}

	c.JSON(http.StatusOK, groups)
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid " + name})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrResourceNotFound),
		errors.Is(err, ErrSlotNotFound),
		errors.Is(err, ErrBlockNotFound),
		errors.Is(err, ErrGroupNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrSlotUnavailable):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "Slot unavailable"})
	case errors.Is(err, ErrInvalidTimeRange),
		errors.Is(err, ErrInvalidDateRange),
		errors.Is(err, ErrInvalidBlock),
		errors.Is(err, ErrInvalidResource),
		errors.Is(err, ErrSlotInPast):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	default:
		logger.Error(fallback, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: fallback})
	}
}
