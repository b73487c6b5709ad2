// Wallet handlers: balance, history, loads, admin adjustments.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"beam/internal/modules/wallet"
	"beam/internal/types"
)

type WalletHandler struct {
	wallet *wallet.Service
}

func NewWalletHandler(svc *wallet.Service) *WalletHandler {
	return &WalletHandler{wallet: svc}
}

func (h *WalletHandler) Balance(c *gin.Context) {
	id := c.Param("id")
	bal, err := h.wallet.Balance(c.Request.Context(), types.ID(id))
	if err != nil {
		writeWalletError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"user_id": id, "balance": bal})
}

func (h *WalletHandler) History(c *gin.Context) {
	id := c.Param("id")
	txs, err := h.wallet.History(c.Request.Context(), types.ID(id))
	if err != nil {
		writeWalletError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"user_id": id, "transactions": txs})
}

type provisionReq struct {
	Currency string `json:"currency"`
}

// Provision opens a wallet account for a new user. Idempotent: an existing
// account is left untouched.
func (h *WalletHandler) Provision(c *gin.Context) {
	id := c.Param("id")
	var req provisionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.wallet.Provision(c.Request.Context(), types.ID(id), req.Currency); err != nil {
		writeWalletError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"user_id": id, "currency": req.Currency})
}

type loadReq struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
}

func (h *WalletHandler) Load(c *gin.Context) {
	id := c.Param("id")
	var req loadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	bal, err := h.wallet.Apply(c.Request.Context(), wallet.ApplyCommand{
		UserID:    types.ID(id),
		Amount:    types.Money{Amount: req.AmountCents, Currency: req.Currency},
		Type:      wallet.TxLoad,
		Reference: req.Reference,
	})
	if err != nil {
		writeWalletError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"user_id": id, "balance": bal})
}

type adjustReq struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	AdminID     string `json:"admin_id"`
}

func (h *WalletHandler) Adjust(c *gin.Context) {
	id := c.Param("id")
	var req adjustReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.AdminID == "" {
		writeError(c, http.StatusBadRequest, "missing admin_id")
		return
	}
	admin := types.ID(req.AdminID)
	bal, err := h.wallet.Apply(c.Request.Context(), wallet.ApplyCommand{
		UserID:      types.ID(id),
		Amount:      types.Money{Amount: req.AmountCents, Currency: req.Currency},
		Type:        wallet.TxAdjust,
		Reference:   req.Reference,
		ActorUserID: &admin,
	})
	if err != nil {
		writeWalletError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"user_id": id, "balance": bal})
}
