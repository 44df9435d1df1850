package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// @Summary      Company credit balance
// @Tags         ledger
// @Produce      json
// @Success      200  {object}  models.CompanyCredit
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/credits [get]
// @Security     ApiKeyAuth
func (h *Handler) getCompanyCredit(c *gin.Context) {
	credit, err := h.services.Ledger.CompanyCredit(c.Request.Context(), companyID(c))
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load balance", "credit_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, credit)
}

// @Summary      List credit transactions
// @Description  Filter by device and/or status. status=FAILED is the reconciliation view for stranded issuances.
// @Tags         ledger
// @Produce      json
// @Param        device  query  string  false  "Device id"
// @Param        status  query  string  false  "Transaction status"  Enums(PENDING,CONFIRMED,FAILED)
// @Param        limit   query  int     false  "Max rows (default 50)"
// @Success      200  {object}  map[string]interface{}  "count, transactions"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/transactions [get]
// @Security     ApiKeyAuth
func (h *Handler) listTransactions(c *gin.Context) {
	limit := 50
	if qs := c.Query("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			limit = v
		}
	}

	txs, err := h.services.Ledger.Transactions(c.Request.Context(), companyID(c), c.Query("device"), c.Query("status"), limit)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load transactions", "transactions_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(txs), "transactions": txs})
}
