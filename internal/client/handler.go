package client

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

// Register godoc
// @Summary      Register new client
// @Description  Creates a client account by phone and returns access & refresh tokens. An optional referral code credits the referrer.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      RegisterRequest  true  "Client registration data"
// @Success      201      {object}  LoginResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      409      {object}  api.ErrorResponse
// @Failure      500      {object}  api.ErrorResponse
// @Router       /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if !api.BindJSON(c, &req) {
		return
	}

	client, access, refresh, err := h.service.Register(c.Request.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, ErrPhoneExists):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "Phone already registered"})
		return
	case errors.Is(err, ErrInvalidReferralCode), errors.Is(err, ErrInvalidBirthDate):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	default:
		logger.Error("register failed", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to create client"})
		return
	}

	c.JSON(http.StatusCreated, LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		Client:       *client,
	})
}

// Login godoc
// @Summary      Login client
// @Description  Authenticates a client by phone and password.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      LoginRequest  true  "Client credentials"
// @Success      200      {object}  LoginResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      401      {object}  api.ErrorResponse
// @Router       /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !api.BindJSON(c, &req) {
		return
	}

	client, access, refresh, err := h.service.Login(c.Request.Context(), req)
	if errors.Is(err, ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "Invalid phone or password"})
		return
	}
	if err != nil {
		logger.Error("login failed", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to generate tokens"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		Client:       *client,
	})
}

// Me godoc
// @Summary      Get current client
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Client
// @Failure      401  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /me [get]
func (h *Handler) Me(c *gin.Context) {
	clientID, ok := auth.GetClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "client not authenticated"})
		return
	}

	client, err := h.service.GetByID(c.Request.Context(), clientID)
	if errors.Is(err, ErrClientNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Client not found"})
		return
	}
	if err != nil {
		logger.Error("load client failed", "client_id", clientID, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to load client"})
		return
	}

	c.JSON(http.StatusOK, client)
}

// Refresh godoc
// @Summary      Refresh access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      RefreshRequest  true  "Refresh token payload"
// @Success      200      {object}  LoginResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      401      {object}  api.ErrorResponse
// @Router       /auth/refresh [post]
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !api.BindJSON(c, &req) {
		return
	}

	access, client, err := h.service.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid or expired refresh token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{AccessToken: access, Client: *client})
}
