package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dentacore/dentaflow/internal/config"
	v1 "github.com/dentacore/dentaflow/internal/handler/v1"
	"github.com/dentacore/dentaflow/internal/messaging"
	"github.com/dentacore/dentaflow/internal/payment"
	"github.com/dentacore/dentaflow/internal/repository/postgres"
	"github.com/dentacore/dentaflow/internal/service"
	"github.com/dentacore/dentaflow/pkg/auth"
	"github.com/dentacore/dentaflow/pkg/database"
	"github.com/dentacore/dentaflow/pkg/logger"
	"github.com/dentacore/dentaflow/pkg/metrics"
	"github.com/dentacore/dentaflow/pkg/tracer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting dentaflow-api",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	if err := database.Migrate(db, log); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	collector := metrics.NewCollector("dentaflow")
	jwtManager := auth.NewJWTManager(cfg.JWT)

	caseRepo := postgres.NewCaseRepository(db)
	proposalRepo := postgres.NewProposalRepository(db)
	doctorRepo := postgres.NewDoctorRepository(db)
	ledgerRepo := postgres.NewLedgerRepository(db)
	settingsRepo := postgres.NewSettingsRepository(db)
	settlementRepo := postgres.NewSettlementRepository(db)
	userRepo := postgres.NewUserRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	auditSvc := service.NewAuditService(auditRepo, log)
	defer auditSvc.Shutdown()

	authSvc := service.NewAuthService(userRepo, jwtManager, log)
	caseSvc := service.NewCaseService(caseRepo, doctorRepo, auditSvc, log)
	proposalSvc := service.NewProposalService(proposalRepo, caseRepo, doctorRepo, auditSvc, log, cfg.Settlement.MaxConflictRetries)
	walletSvc := service.NewWalletService(ledgerRepo, auditSvc, log)
	doctorSvc := service.NewDoctorService(doctorRepo, auditSvc, log)
	settingsSvc := service.NewSettingsService(settingsRepo, auditSvc, log)

	settlementSvc := service.NewSettlementService(
		caseRepo, proposalRepo, doctorRepo, settingsRepo, ledgerRepo, settlementRepo,
		walletSvc,
		payment.NewStaticGateway(),
		messaging.NewLogGateway(log),
		auditSvc, collector, log,
		cfg.Settlement.RetryInterval,
	)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go settlementSvc.RunRetryWorker(workerCtx)

	router := v1.NewRouter(cfg, jwtManager, collector, log, v1.Services{
		Auth:     v1.NewAuthHandler(authSvc),
		Case:     v1.NewCaseHandler(caseSvc, collector),
		Proposal: v1.NewProposalHandler(proposalSvc, collector),
		Wallet:   v1.NewWalletHandler(walletSvc),
		Billing:  v1.NewBillingHandler(settlementSvc),
		Doctor:   v1.NewDoctorHandler(doctorSvc),
		Settings: v1.NewSettingsHandler(settingsSvc),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
