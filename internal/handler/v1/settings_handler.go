package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dentacore/dentaflow/internal/domain/commission"
	"github.com/dentacore/dentaflow/internal/domain/settings"
	"github.com/dentacore/dentaflow/internal/service"
)

type SettingsHandler struct {
	settingsSvc *service.SettingsService
}

func NewSettingsHandler(settingsSvc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsSvc: settingsSvc}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	claims := claimsFrom(c)

	s, err := h.settingsSvc.GetSettings(c.Request.Context(), string(claims.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, s)
}

type updateSettingsRequest struct {
	CommissionType       *string          `json:"commission_type"`
	CommissionRate       *decimal.Decimal `json:"commission_rate"`
	MonthlyFee           *decimal.Decimal `json:"monthly_fee"`
	PremiumVisibilityFee *decimal.Decimal `json:"premium_visibility_fee"`
}

func (h *SettingsHandler) Update(c *gin.Context) {
	claims := claimsFrom(c)

	var req updateSettingsRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &settings.UpdateSettingsCommand{
		CommissionRate:       req.CommissionRate,
		MonthlyFee:           req.MonthlyFee,
		PremiumVisibilityFee: req.PremiumVisibilityFee,
	}
	if req.CommissionType != nil {
		t := commission.Type(*req.CommissionType)
		cmd.CommissionType = &t
	}

	updated, err := h.settingsSvc.UpdateSettings(c.Request.Context(), cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, updated)
}
