package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentacore/dentaflow/internal/domain/proposal"
	"github.com/dentacore/dentaflow/internal/service"
	"github.com/dentacore/dentaflow/pkg/metrics"
)

type ProposalHandler struct {
	proposalSvc *service.ProposalService
	collector   *metrics.Collector
}

func NewProposalHandler(proposalSvc *service.ProposalService, collector *metrics.Collector) *ProposalHandler {
	return &ProposalHandler{proposalSvc: proposalSvc, collector: collector}
}

type submitProposalRequest struct {
	CaseID   uuid.UUID       `json:"case_id" binding:"required"`
	DoctorID uuid.UUID       `json:"doctor_id" binding:"required"`
	Cost     decimal.Decimal `json:"cost" binding:"required"`
	Details  string          `json:"details"`
	Notes    string          `json:"notes"`
	Duration string          `json:"duration"`
}

func (h *ProposalHandler) Submit(c *gin.Context) {
	claims := claimsFrom(c)

	var req submitProposalRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &proposal.SubmitProposalCommand{
		CaseID:   req.CaseID,
		DoctorID: req.DoctorID,
		Cost:     req.Cost,
		Details:  req.Details,
		Notes:    req.Notes,
		Duration: req.Duration,
	}

	created, err := h.proposalSvc.SubmitProposal(c.Request.Context(), cmd, claims.UserID, string(claims.Role), claims.DoctorID, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.ProposalsTotal.WithLabelValues(string(proposal.StatusPending)).Inc()
	respondCreated(c, created)
}

type editProposalRequest struct {
	Cost     *decimal.Decimal `json:"cost"`
	Details  *string          `json:"details"`
	Notes    *string          `json:"notes"`
	Duration *string          `json:"duration"`
}

func (h *ProposalHandler) Edit(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req editProposalRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &proposal.EditProposalCommand{
		Cost:      req.Cost,
		Details:   req.Details,
		Notes:     req.Notes,
		Duration:  req.Duration,
		UpdatedBy: claims.UserID,
	}

	updated, err := h.proposalSvc.EditProposal(c.Request.Context(), id, cmd, claims.UserID, string(claims.Role), claims.DoctorID, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, updated)
}

func (h *ProposalHandler) Withdraw(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	withdrawn, err := h.proposalSvc.WithdrawProposal(c.Request.Context(), id, claims.UserID, string(claims.Role), claims.DoctorID, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.ProposalsTotal.WithLabelValues(string(proposal.StatusCancelled)).Inc()
	respondOK(c, withdrawn)
}

func (h *ProposalHandler) Delete(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	if err := h.proposalSvc.DeleteProposal(c.Request.Context(), id, claims.UserID, string(claims.Role), c.ClientIP()); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProposalHandler) Compare(c *gin.Context) {
	claims := claimsFrom(c)
	caseID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	ranked, err := h.proposalSvc.CompareProposals(c.Request.Context(), caseID, claims.UserID, string(claims.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, ranked)
}

type selectProposalRequest struct {
	ProposalID uuid.UUID `json:"proposal_id" binding:"required"`
}

func (h *ProposalHandler) Select(c *gin.Context) {
	claims := claimsFrom(c)
	caseID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req selectProposalRequest
	if !bindJSON(c, &req) {
		return
	}

	accepted, err := h.proposalSvc.SelectProposal(c.Request.Context(), caseID, req.ProposalID, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.ProposalsTotal.WithLabelValues(string(proposal.StatusAccepted)).Inc()
	respondOK(c, accepted)
}

func (h *ProposalHandler) CompleteTreatment(c *gin.Context) {
	claims := claimsFrom(c)
	caseID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	completed, err := h.proposalSvc.CompleteTreatment(c.Request.Context(), caseID, claims.UserID, string(claims.Role), claims.DoctorID, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.ProposalsTotal.WithLabelValues(string(proposal.StatusCompleted)).Inc()
	respondOK(c, completed)
}

func (h *ProposalHandler) List(c *gin.Context) {
	claims := claimsFrom(c)

	q := &proposal.ListProposalsQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}
	if raw := c.Query("case_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid case_id")
			return
		}
		q.CaseID = &id
	}
	if raw := c.Query("status"); raw != "" {
		st := proposal.Status(raw)
		q.Status = &st
	}

	paged, err := h.proposalSvc.ListProposals(c.Request.Context(), q, claims.UserID, string(claims.Role), claims.DoctorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, paged)
}
