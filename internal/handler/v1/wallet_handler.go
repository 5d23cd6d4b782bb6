package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dentacore/dentaflow/internal/domain/ledger"
	"github.com/dentacore/dentaflow/internal/service"
)

type WalletHandler struct {
	walletSvc *service.WalletService
}

func NewWalletHandler(walletSvc *service.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

type depositRequest struct {
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	Method         string          `json:"method" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key"`
	Notes          string          `json:"notes"`
}

func (h *WalletHandler) Deposit(c *gin.Context) {
	claims := claimsFrom(c)
	patientID, ok := parseUUID(c, "patientId")
	if !ok {
		return
	}

	var req depositRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	cmd := &service.DepositCommand{
		PatientID:      patientID,
		Amount:         req.Amount,
		Method:         ledger.PaymentMethod(req.Method),
		IdempotencyKey: req.IdempotencyKey,
		Notes:          req.Notes,
	}

	balance, err := h.walletSvc.Deposit(c.Request.Context(), cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"balance": balance})
}

func (h *WalletHandler) Balance(c *gin.Context) {
	claims := claimsFrom(c)
	patientID, ok := parseUUID(c, "patientId")
	if !ok {
		return
	}

	balance, err := h.walletSvc.Balance(c.Request.Context(), patientID, claims.UserID, string(claims.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"balance": balance})
}

func (h *WalletHandler) Statement(c *gin.Context) {
	claims := claimsFrom(c)
	patientID, ok := parseUUID(c, "patientId")
	if !ok {
		return
	}

	page := parseQueryInt(c, "page", 1)
	pageSize := parseQueryInt(c, "page_size", 20)

	entries, total, err := h.walletSvc.Statement(c.Request.Context(), patientID, page, pageSize, claims.UserID, string(claims.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{
		"entries":     entries,
		"total_count": total,
		"page":        page,
		"page_size":   pageSize,
	})
}
