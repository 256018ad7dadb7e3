package handlers

import (
	"net/http"

	"portfolio_backend/internal/domain"

	"github.com/gin-gonic/gin"
)

type creditPurchaseRequest struct {
	ItemID string `json:"item_id" binding:"required"`
}

// PurchaseWithCredits buys a catalog item from the credit balance.
func (h *Handler) PurchaseWithCredits(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req creditPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "item_id is required")
		return
	}

	res, err := h.Executor.PurchaseWithCredits(c.Request.Context(), userID, req.ItemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type selectionRequest struct {
	Slot   domain.Slot `json:"slot" binding:"required"`
	ItemID *string     `json:"item_id"`
}

// Select applies or clears the item shown in a slot.
func (h *Handler) Select(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "slot is required")
		return
	}

	res, err := h.Executor.SelectItem(c.Request.Context(), userID, req.Slot, req.ItemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ClaimEventReward grants the server-configured event reward once.
func (h *Handler) ClaimEventReward(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	res, err := h.Executor.ClaimEventReward(c.Request.Context(), userID, h.cfg.EventRewardCredits)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
