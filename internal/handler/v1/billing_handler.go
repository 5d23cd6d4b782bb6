package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dentacore/dentaflow/internal/domain/ledger"
	"github.com/dentacore/dentaflow/internal/service"
)

// BillingHandler exposes settlement, payout and ledger operations.
type BillingHandler struct {
	settlementSvc *service.SettlementService
}

func NewBillingHandler(settlementSvc *service.SettlementService) *BillingHandler {
	return &BillingHandler{settlementSvc: settlementSvc}
}

type settleRequest struct {
	Method string `json:"method" binding:"required"`
}

func (h *BillingHandler) Settle(c *gin.Context) {
	claims := claimsFrom(c)
	caseID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req settleRequest
	if !bindJSON(c, &req) {
		return
	}

	ps, err := h.settlementSvc.Settle(c.Request.Context(), caseID, ledger.PaymentMethod(req.Method), claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, ps)
}

func (h *BillingHandler) Refund(c *gin.Context) {
	claims := claimsFrom(c)
	caseID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	if err := h.settlementSvc.Refund(c.Request.Context(), caseID, claims.UserID, string(claims.Role), c.ClientIP()); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"refunded": true})
}

func (h *BillingHandler) DoctorEarnings(c *gin.Context) {
	claims := claimsFrom(c)
	doctorID, ok := parseUUID(c, "doctorId")
	if !ok {
		return
	}

	snapshot, err := h.settlementSvc.DoctorSnapshot(c.Request.Context(), doctorID, string(claims.Role), claims.DoctorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, snapshot)
}

type payoutRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Method string          `json:"method" binding:"required"`
}

func (h *BillingHandler) Payout(c *gin.Context) {
	claims := claimsFrom(c)
	doctorID, ok := parseUUID(c, "doctorId")
	if !ok {
		return
	}

	var req payoutRequest
	if !bindJSON(c, &req) {
		return
	}

	entry, err := h.settlementSvc.Payout(c.Request.Context(), doctorID, req.Amount, ledger.PaymentMethod(req.Method), claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, entry)
}

type remittanceRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Method string          `json:"method" binding:"required"`
}

func (h *BillingHandler) Remittance(c *gin.Context) {
	claims := claimsFrom(c)
	doctorID, ok := parseUUID(c, "doctorId")
	if !ok {
		return
	}

	var req remittanceRequest
	if !bindJSON(c, &req) {
		return
	}

	entry, err := h.settlementSvc.RecordRemittance(c.Request.Context(), doctorID, req.Amount, ledger.PaymentMethod(req.Method), claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, entry)
}

type adjustmentRequest struct {
	Type   string          `json:"type" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Notes  string          `json:"notes"`
}

func (h *BillingHandler) Adjustment(c *gin.Context) {
	claims := claimsFrom(c)
	subjectID, ok := parseUUID(c, "subjectId")
	if !ok {
		return
	}

	var req adjustmentRequest
	if !bindJSON(c, &req) {
		return
	}

	entryType := ledger.EntryType(req.Type)
	if !entryType.IsValid() {
		respondError(c, http.StatusBadRequest, "invalid adjustment type")
		return
	}

	entry, err := h.settlementSvc.RecordAdjustment(c.Request.Context(), subjectID, entryType, req.Amount, req.Notes, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, entry)
}
