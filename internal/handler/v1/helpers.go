package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dentacore/dentaflow/internal/domain/commission"
	"github.com/dentacore/dentaflow/internal/domain/dentalcase"
	"github.com/dentacore/dentaflow/internal/domain/doctor"
	"github.com/dentacore/dentaflow/internal/domain/ledger"
	"github.com/dentacore/dentaflow/internal/domain/proposal"
	"github.com/dentacore/dentaflow/internal/domain/settlement"
	"github.com/dentacore/dentaflow/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

func respondServiceError(c *gin.Context, err error) {
	var validErr *service.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: validErr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, dentalcase.ErrCaseNotFound),
		errors.Is(err, proposal.ErrProposalNotFound),
		errors.Is(err, doctor.ErrDoctorNotFound),
		errors.Is(err, ledger.ErrEntryNotFound),
		errors.Is(err, settlement.ErrSettlementNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case errors.Is(err, proposal.ErrSelectionConflict):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: err.Error(),
			Code:  "SELECTION_CONFLICT",
		})

	case errors.Is(err, proposal.ErrDuplicateProposal),
		errors.Is(err, settlement.ErrAlreadySettled),
		errors.Is(err, settlement.ErrCaptureUnconfirmed),
		errors.Is(err, dentalcase.ErrCaseModified),
		errors.Is(err, ledger.ErrDuplicateKey),
		errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})

	case errors.Is(err, ledger.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{
			Error: err.Error(),
			Code:  "INSUFFICIENT_FUNDS",
		})

	case errors.Is(err, settlement.ErrCaptureFailed):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: err.Error(),
			Code:  "CAPTURE_FAILED",
		})

	case errors.Is(err, dentalcase.ErrInvalidStatusTransition),
		errors.Is(err, dentalcase.ErrInvalidUrgency),
		errors.Is(err, dentalcase.ErrCaseNotOpen),
		errors.Is(err, dentalcase.ErrCaseAlreadyPaid),
		errors.Is(err, dentalcase.ErrDoctorNotAssigned),
		errors.Is(err, proposal.ErrProposalCaseMismatch),
		errors.Is(err, proposal.ErrProposalNotEditable),
		errors.Is(err, proposal.ErrProposalNotPending),
		errors.Is(err, proposal.ErrInvalidCost),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidMethod),
		errors.Is(err, ledger.ErrInvalidEntryType),
		errors.Is(err, commission.ErrInvalidType),
		errors.Is(err, commission.ErrNegativeRate),
		errors.Is(err, commission.ErrRateOverLimit),
		errors.Is(err, doctor.ErrDoctorInactive),
		errors.Is(err, settlement.ErrNotAccepted),
		errors.Is(err, service.ErrPayoutExceedsBalance),
		errors.Is(err, service.ErrRemittanceExceedsDue),
		errors.Is(err, service.ErrNothingToRefund):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})

	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})

	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "account temporarily locked",
			Code:  "ACCOUNT_LOCKED",
		})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})

	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}

	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultVal
}
