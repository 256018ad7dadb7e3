package handlers

import (
	"net/http"

	"portfolio_backend/internal/domain"

	"github.com/gin-gonic/gin"
)

type catalogResponse struct {
	Currency string              `json:"currency"`
	Items    []domain.CatalogItem `json:"items"`
	Packs    []domain.CreditPack  `json:"credit_packs"`
}

func (h *Handler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, catalogResponse{
		Currency: h.Catalog.Currency(),
		Items:    h.Catalog.Items(),
		Packs:    h.Catalog.Packs(),
	})
}
