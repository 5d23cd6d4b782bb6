package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dentacore/dentaflow/internal/domain/dentalcase"
	"github.com/dentacore/dentaflow/internal/service"
	"github.com/dentacore/dentaflow/pkg/metrics"
)

type CaseHandler struct {
	caseSvc   *service.CaseService
	collector *metrics.Collector
}

func NewCaseHandler(caseSvc *service.CaseService, collector *metrics.Collector) *CaseHandler {
	return &CaseHandler{caseSvc: caseSvc, collector: collector}
}

type createCaseRequest struct {
	PatientID       uuid.UUID `json:"patient_id" binding:"required"`
	Title           string    `json:"title" binding:"required"`
	Description     string    `json:"description"`
	TreatmentNeeded string    `json:"treatment_needed"`
	Urgency         string    `json:"urgency" binding:"required"`
	Images          []string  `json:"images"`
}

func (h *CaseHandler) Create(c *gin.Context) {
	claims := claimsFrom(c)

	var req createCaseRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &dentalcase.CreateCaseCommand{
		PatientID:       req.PatientID,
		Title:           req.Title,
		Description:     req.Description,
		TreatmentNeeded: req.TreatmentNeeded,
		Urgency:         dentalcase.Urgency(req.Urgency),
		Images:          req.Images,
		CreatedBy:       claims.UserID,
	}

	created, err := h.caseSvc.SubmitCase(c.Request.Context(), cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.CasesCreatedTotal.Inc()
	respondCreated(c, created)
}

func (h *CaseHandler) Get(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	found, err := h.caseSvc.GetCase(c.Request.Context(), id, claims.UserID, string(claims.Role), claims.DoctorID, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, found)
}

func (h *CaseHandler) Approve(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	approved, err := h.caseSvc.ApproveCase(c.Request.Context(), id, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, approved)
}

type assignDoctorRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" binding:"required"`
}

func (h *CaseHandler) AssignDoctor(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req assignDoctorRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.caseSvc.AssignDoctor(c.Request.Context(), id, req.DoctorID, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, updated)
}

func (h *CaseHandler) Cancel(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	cancelled, err := h.caseSvc.CancelCase(c.Request.Context(), id, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, cancelled)
}

type updateCaseRequest struct {
	Title           *string   `json:"title"`
	Description     *string   `json:"description"`
	TreatmentNeeded *string   `json:"treatment_needed"`
	Urgency         *string   `json:"urgency"`
	Images          *[]string `json:"images"`
}

func (h *CaseHandler) Update(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req updateCaseRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &dentalcase.UpdateCaseCommand{
		Title:           req.Title,
		Description:     req.Description,
		TreatmentNeeded: req.TreatmentNeeded,
		Images:          req.Images,
		UpdatedBy:       claims.UserID,
	}
	if req.Urgency != nil {
		u := dentalcase.Urgency(*req.Urgency)
		cmd.Urgency = &u
	}

	updated, err := h.caseSvc.UpdateCase(c.Request.Context(), id, cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, updated)
}

func (h *CaseHandler) List(c *gin.Context) {
	claims := claimsFrom(c)

	q := &dentalcase.ListCasesQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}
	if raw := c.Query("status"); raw != "" {
		st := dentalcase.Status(raw)
		q.Status = &st
	}
	if raw := c.Query("urgency"); raw != "" {
		u := dentalcase.Urgency(raw)
		q.Urgency = &u
	}
	if raw := c.Query("payment_status"); raw != "" {
		ps := dentalcase.PaymentStatus(raw)
		q.PaymentStatus = &ps
	}
	if raw := c.Query("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid patient_id")
			return
		}
		q.PatientID = &id
	}

	paged, err := h.caseSvc.ListCases(c.Request.Context(), q, claims.UserID, string(claims.Role), claims.DoctorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, paged)
}
