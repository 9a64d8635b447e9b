package wallet

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"skibook/internal/auth"
	"skibook/internal/logger"
	"skibook/internal/metrics"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

type TopUpRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Comment     string `json:"comment" binding:"max=200"`
}

func (h *Handler) GetBalance(c *gin.Context) {
	clientID, ok := auth.GetClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "client not authenticated"})
		return
	}

	w, err := h.repo.GetOrCreateWallet(c.Request.Context(), clientID)
	if err != nil {
		logger.Error("failed to load wallet", "client_id", clientID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, w)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	clientID, ok := auth.GetClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "client not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, err := h.repo.GetTransactions(c.Request.Context(), clientID, limit, offset)
	if err != nil {
		logger.Error("failed to load wallet transactions", "client_id", clientID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, txs)
}

// TopUp credits a client's wallet; admin only.
func (h *Handler) TopUp(c *gin.Context) {
	clientID, err := strconv.ParseInt(c.Param("clientID"), 10, 64)
	if err != nil || clientID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
		return
	}

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_cents must be positive"})
		return
	}

	adminID, _ := auth.GetClientID(c)
	reference := fmt.Sprintf("admin:%d", adminID)
	if req.Comment != "" {
		reference += " " + req.Comment
	}

	entry, err := h.repo.TopUp(c.Request.Context(), clientID, req.AmountCents, reference)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("wallet top up failed", "client_id", clientID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to top up wallet"})
		return
	}
	metrics.RecordWalletTopUp()

	c.JSON(http.StatusOK, gin.H{
		"message":     "wallet recharged",
		"transaction": entry,
	})
}
