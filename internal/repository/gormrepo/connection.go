package gormrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dom/neighbor-group/internal/config"
	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table owned by the site, in migration order.
var Models = []interface{}{
	&domain.User{},
	&domain.UserSession{},
	&domain.Option{},
	&domain.AuthEvent{},
	&domain.PasswordReset{},
	&domain.Group{},
	&domain.GroupMember{},
	&domain.Message{},
}

// NewConnection opens the store selected by cfg and migrates it. The
// returned handle is meant to be created once and shared.
func NewConnection(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	driver, dsn := cfg.DSN()
	if driver == config.DriverSQLite {
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		dsn = withSQLiteParams(dsn)
	}

	db, err := Open(driver, dsn, NewGormLogger(log, logger.Warn))
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Open connects without migrating.
func Open(driver, dsn string, gormLogger logger.Interface) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == config.DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// NewGormLogger routes gorm's output through the process logger.
func NewGormLogger(log *logrus.Logger, level logger.LogLevel) logger.Interface {
	return logger.New(log, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

func NewRepositories(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		User:          NewUserRepository(db),
		AuthLog:       NewAuthLogRepository(db),
		PasswordReset: NewPasswordResetRepository(db),
		Group:         NewGroupRepository(db),
		GroupMember:   NewGroupMemberRepository(db),
		Message:       NewMessageRepository(db),
		Session:       NewSessionRepository(db),
		Option:        NewOptionRepository(db),
	}
}

func ensureDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return nil
}

func withSQLiteParams(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_busy_timeout=5000&_journal_mode=WAL"
}
