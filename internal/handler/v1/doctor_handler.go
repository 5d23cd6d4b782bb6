package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dentacore/dentaflow/internal/domain/commission"
	"github.com/dentacore/dentaflow/internal/domain/doctor"
	"github.com/dentacore/dentaflow/internal/service"
)

type DoctorHandler struct {
	doctorSvc *service.DoctorService
}

func NewDoctorHandler(doctorSvc *service.DoctorService) *DoctorHandler {
	return &DoctorHandler{doctorSvc: doctorSvc}
}

type createDoctorRequest struct {
	FirstName       string `json:"first_name" binding:"required"`
	LastName        string `json:"last_name" binding:"required"`
	Specialty       string `json:"specialty"`
	Chamber         string `json:"chamber"`
	ExperienceYears int    `json:"experience_years"`
}

func (h *DoctorHandler) Create(c *gin.Context) {
	claims := claimsFrom(c)

	var req createDoctorRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &doctor.CreateDoctorCommand{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Specialty:       req.Specialty,
		Chamber:         req.Chamber,
		ExperienceYears: req.ExperienceYears,
		CreatedBy:       claims.UserID,
	}

	created, err := h.doctorSvc.CreateDoctor(c.Request.Context(), cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, created)
}

func (h *DoctorHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	found, err := h.doctorSvc.GetDoctor(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, found)
}

type updateDoctorRequest struct {
	FirstName       *string          `json:"first_name"`
	LastName        *string          `json:"last_name"`
	Specialty       *string          `json:"specialty"`
	Chamber         *string          `json:"chamber"`
	Rating          *decimal.Decimal `json:"rating"`
	ExperienceYears *int             `json:"experience_years"`
	CommissionType  *string          `json:"commission_type"`
	CommissionRate  *decimal.Decimal `json:"commission_rate"`
}

func (h *DoctorHandler) Update(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req updateDoctorRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &doctor.UpdateDoctorCommand{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Specialty:       req.Specialty,
		Chamber:         req.Chamber,
		Rating:          req.Rating,
		ExperienceYears: req.ExperienceYears,
		CommissionRate:  req.CommissionRate,
		UpdatedBy:       claims.UserID,
	}
	if req.CommissionType != nil {
		t := commission.Type(*req.CommissionType)
		cmd.CommissionType = &t
	}

	updated, err := h.doctorSvc.UpdateDoctor(c.Request.Context(), id, cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, updated)
}

func (h *DoctorHandler) List(c *gin.Context) {
	page := parseQueryInt(c, "page", 1)
	pageSize := parseQueryInt(c, "page_size", 20)

	doctors, total, err := h.doctorSvc.ListDoctors(c.Request.Context(), page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{
		"doctors":     doctors,
		"total_count": total,
		"page":        page,
		"page_size":   pageSize,
	})
}
