package db

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NasaVasa/stockwatch/internal/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type gormZapWriter struct {
	logger *zap.Logger
}

func (w gormZapWriter) Printf(format string, args ...interface{}) {
	w.logger.Sugar().Infof(format, args...)
}

// Open connects to the configured storage and migrates the schema. A sqlite
// file that cannot be opened or migrated is renamed to <dsn>.corrupt-<ts>
// and replaced with a fresh database.
func Open(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := openAndMigrate(cfg, log)
	if err != nil && isSQLiteFile(cfg.StorageDriver, cfg.StorageDSN) {
		moved, qErr := quarantine(cfg.StorageDSN, time.Now())
		if qErr != nil {
			return nil, fmt.Errorf("%w (quarantine failed: %v)", err, qErr)
		}
		log.Error("watchlist storage unreadable, starting empty",
			zap.String("dsn", cfg.StorageDSN),
			zap.String("moved_to", moved),
			zap.Error(err),
		)
		db, err = openAndMigrate(cfg, log)
	}
	if err != nil {
		return nil, err
	}

	log.Info("watchlist storage ready", zap.String("driver", cfg.StorageDriver))
	return db, nil
}

func openAndMigrate(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg.StorageDriver, cfg.StorageDSN)
	if err != nil {
		return nil, err
	}

	gormLogger := logger.New(
		gormZapWriter{logger: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&ruleModel{}, &metaModel{})
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch normalizeDriver(driver) {
	case "sqlite":
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

func normalizeDriver(driver string) string {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		return "sqlite"
	}
	return driver
}

// isSQLiteFile reports whether dsn names an existing plain sqlite file.
func isSQLiteFile(driver, dsn string) bool {
	if normalizeDriver(driver) != "sqlite" || dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return false
	}
	info, err := os.Stat(dsn)
	return err == nil && info.Mode().IsRegular()
}

// quarantine renames the database file and any sqlite sidecar files next to
// it, returning the new path of the main file.
func quarantine(dsn string, now time.Time) (string, error) {
	suffix := ".corrupt-" + now.UTC().Format("20060102T150405Z")
	moved := dsn + suffix
	if err := os.Rename(dsn, moved); err != nil {
		return "", err
	}
	for _, sidecar := range []string{"-journal", "-wal", "-shm"} {
		err := os.Rename(dsn+sidecar, dsn+sidecar+suffix)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return moved, err
		}
	}
	return moved, nil
}
