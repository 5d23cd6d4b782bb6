package database

import (
	"fmt"
	"time"

	"github.com/dentacore/dentaflow/internal/config"
	"github.com/dentacore/dentaflow/internal/domain"
	"github.com/dentacore/dentaflow/internal/domain/dentalcase"
	"github.com/dentacore/dentaflow/internal/domain/doctor"
	"github.com/dentacore/dentaflow/internal/domain/ledger"
	"github.com/dentacore/dentaflow/internal/domain/proposal"
	"github.com/dentacore/dentaflow/internal/domain/settings"
	"github.com/dentacore/dentaflow/internal/domain/settlement"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: false,
		DisableAutomaticPing:                     false,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DNS(),
		PreferSimpleProtocol: false,
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	schemas := []string{"dental", "billing", "auth", "audit"} // logical namespace
	for _, schema := range schemas {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}

	models := []any{
		&domain.User{},
		&domain.AuditLog{},
		&doctor.Doctor{},
		&dentalcase.Case{},
		&proposal.Proposal{},
		&ledger.Entry{},
		&settings.Settings{},
		&settlement.PendingSettlement{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	if err := seedSettings(db); err != nil {
		return fmt.Errorf("seeding billing settings: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []struct {
		name  string
		query string
	}{
		{
			name:  "idx_cases_open_pool",
			query: `CREATE INDEX IF NOT EXISTS idx_cases_open_pool ON dental.cases (status, urgency, created_at) WHERE deleted_at IS NULL AND status IN ('open', 'assigned')`,
		},
		{
			name:  "idx_cases_patient",
			query: `CREATE INDEX IF NOT EXISTS idx_cases_patient ON dental.cases (patient_id, status) WHERE deleted_at IS NULL`,
		},
		{
			name:  "idx_proposals_case_status",
			query: `CREATE INDEX IF NOT EXISTS idx_proposals_case_status ON dental.proposals (case_id, status, created_at) WHERE deleted_at IS NULL`,
		},
		// One pending proposal per doctor per case, enforced at the database
		// in addition to the service-level check.
		{
			name:  "idx_proposals_one_pending",
			query: `CREATE UNIQUE INDEX IF NOT EXISTS idx_proposals_one_pending ON dental.proposals (case_id, doctor_id) WHERE deleted_at IS NULL AND status = 'pending'`,
		},
		{
			name:  "idx_ledger_subject_recent",
			query: `CREATE INDEX IF NOT EXISTS idx_ledger_subject_recent ON billing.transactions (subject_id, created_at DESC)`,
		},
		{
			name:  "idx_ledger_case",
			query: `CREATE INDEX IF NOT EXISTS idx_ledger_case ON billing.transactions (case_id) WHERE case_id IS NOT NULL`,
		},
		{
			name:  "idx_settlements_incomplete",
			query: `CREATE INDEX IF NOT EXISTS idx_settlements_incomplete ON billing.pending_settlements (status, updated_at) WHERE status <> 'completed'`,
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			_ = err
		}
	}

	return nil
}

// seedSettings inserts the singleton billing settings row if missing so
// commission computation always has a platform default to fall back on.
func seedSettings(db *gorm.DB) error {
	defaults := settings.Defaults()
	return db.Where(settings.Settings{ID: defaults.ID}).
		Attrs(defaults).
		FirstOrCreate(&settings.Settings{}).Error
}
