package db

import (
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens (creating if needed) the SQLite history database at path and
// migrates its tables. An empty path or ":memory:" gives an in-memory store.
func Open(path string) (*gorm.DB, error) {
	dsn := path
	if path == "" || path == ":memory:" {
		dsn = "file::memory:"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create history directory for %s", path)
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open history database %s", path)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		// SQLite has a single writer, and an in-memory store lives on one connection.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := gdb.AutoMigrate(&AnalysisRun{}); err != nil {
		return nil, errors.Wrap(err, "migrate history database")
	}
	return gdb, nil
}
