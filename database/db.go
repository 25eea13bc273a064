package database

import (
	"context"
	"fmt"
	"time"

	"polling-backend/config"
	"polling-backend/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// migrationLockName guards AutoMigrate when several replicas start at once.
const migrationLockName = "polling-backend:migrate"

// Locker runs fn while holding a named lock.
type Locker interface {
	WithLock(ctx context.Context, name string, expiry time.Duration, fn func() error) error
}

// Open connects to the configured database. The returned handle is the only
// storage handle of the process and is passed to every repository.
func Open(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case config.DriverMySQL:
		dialector = mysql.Open(cfg.DatabaseURL)
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DatabaseURL)
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DatabaseURL)
	default:
		return nil, config.ErrBadDriver
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewLogger(log),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.DBDriver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.DBDriver == config.DriverSQLite {
		// sqlite allows one writer; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.WithField("driver", cfg.DBDriver).Info("database connection established")
	return db, nil
}

// NewLogger adapts logrus to gorm's logger interface.
func NewLogger(log *logrus.Logger) logger.Interface {
	level := logger.Warn
	if log.IsLevelEnabled(logrus.DebugLevel) {
		level = logger.Info
	}
	return logger.New(
		log,
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
}

// Migrate creates or updates the schema. When lock is non-nil the migration
// runs under it so concurrent replicas don't race.
func Migrate(ctx context.Context, db *gorm.DB, lock Locker) error {
	migrate := func() error {
		if err := db.WithContext(ctx).AutoMigrate(&models.User{}, &models.Poll{}, &models.Choice{}, &models.Vote{}); err != nil {
			return fmt.Errorf("failed to migrate models: %w", err)
		}
		return nil
	}

	if lock == nil {
		return migrate()
	}
	return lock.WithLock(ctx, migrationLockName, 2*time.Minute, migrate)
}

// Ping checks the connection, used by the health endpoint.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func Close(db *gorm.DB, log *logrus.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Error("failed to get database connection")
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.WithError(err).Error("failed to close database connection")
		return
	}
	log.Info("database connection closed")
}
