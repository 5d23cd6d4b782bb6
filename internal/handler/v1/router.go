package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dentacore/dentaflow/internal/config"
	"github.com/dentacore/dentaflow/internal/domain"
	"github.com/dentacore/dentaflow/pkg/auth"
	"github.com/dentacore/dentaflow/pkg/metrics"
)

type Services struct {
	Auth     *AuthHandler
	Case     *CaseHandler
	Proposal *ProposalHandler
	Wallet   *WalletHandler
	Billing  *BillingHandler
	Doctor   *DoctorHandler
	Settings *SettingsHandler
}

func NewRouter(cfg *config.Config, jwtManager *auth.JWTManager, collector *metrics.Collector, log *zap.Logger, h Services) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(log), Metrics(collector))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": cfg.App.Version})
	})
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/change-password", AuthMiddleware(jwtManager), h.Auth.ChangePassword)
	}

	protected := api.Group("", AuthMiddleware(jwtManager))

	cases := protected.Group("/cases")
	{
		cases.POST("", RequireRoles(domain.RolePatient, domain.RoleAdmin), h.Case.Create)
		cases.GET("", h.Case.List)
		cases.GET("/:id", h.Case.Get)
		cases.PATCH("/:id", h.Case.Update)
		cases.POST("/:id/approve", RequireRoles(domain.RoleAdmin), h.Case.Approve)
		cases.POST("/:id/assign", RequireRoles(domain.RoleAdmin), h.Case.AssignDoctor)
		cases.POST("/:id/cancel", h.Case.Cancel)

		cases.GET("/:id/proposals/compare", h.Proposal.Compare)
		cases.POST("/:id/proposals/select", RequireRoles(domain.RolePatient, domain.RoleAdmin), h.Proposal.Select)
		cases.POST("/:id/complete", RequireRoles(domain.RoleDoctor, domain.RoleAdmin), h.Proposal.CompleteTreatment)

		cases.POST("/:id/settle", RequireRoles(domain.RolePatient, domain.RoleAdmin), h.Billing.Settle)
		cases.POST("/:id/refund", RequireRoles(domain.RoleAdmin), h.Billing.Refund)
	}

	proposals := protected.Group("/proposals")
	{
		proposals.POST("", RequireRoles(domain.RoleDoctor, domain.RoleAdmin), h.Proposal.Submit)
		proposals.GET("", h.Proposal.List)
		proposals.PATCH("/:id", RequireRoles(domain.RoleDoctor, domain.RoleAdmin), h.Proposal.Edit)
		proposals.POST("/:id/withdraw", RequireRoles(domain.RoleDoctor, domain.RoleAdmin), h.Proposal.Withdraw)
		proposals.DELETE("/:id", RequireRoles(domain.RoleAdmin), h.Proposal.Delete)
	}

	wallets := protected.Group("/wallets")
	{
		wallets.POST("/:patientId/deposits", RequireRoles(domain.RolePatient, domain.RoleAdmin), h.Wallet.Deposit)
		wallets.GET("/:patientId/balance", h.Wallet.Balance)
		wallets.GET("/:patientId/statement", h.Wallet.Statement)
	}

	doctors := protected.Group("/doctors")
	{
		doctors.POST("", RequireRoles(domain.RoleAdmin), h.Doctor.Create)
		doctors.GET("", h.Doctor.List)
		doctors.GET("/:id", h.Doctor.Get)
		doctors.PATCH("/:id", RequireRoles(domain.RoleAdmin), h.Doctor.Update)
	}

	billing := protected.Group("/billing")
	{
		billing.GET("/doctors/:doctorId/earnings", h.Billing.DoctorEarnings)
		billing.POST("/doctors/:doctorId/payouts", RequireRoles(domain.RoleAdmin), h.Billing.Payout)
		billing.POST("/doctors/:doctorId/remittances", RequireRoles(domain.RoleAdmin), h.Billing.Remittance)
		billing.POST("/subjects/:subjectId/adjustments", RequireRoles(domain.RoleAdmin), h.Billing.Adjustment)

		billing.GET("/settings", RequireRoles(domain.RoleAdmin), h.Settings.Get)
		billing.PATCH("/settings", RequireRoles(domain.RoleAdmin), h.Settings.Update)
	}

	return r
}
