package utils

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrSyncInProgress      = errors.New("sync already in progress")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrInvalidImportType   = errors.New("invalid import type")
	ErrSourceNotConfigured = errors.New("external source not configured")
	ErrMissingColumn       = errors.New("required column not mapped")
)

// IsDuplicateKeyError reports a unique constraint violation from MySQL (1062)
// or from a gorm dialect that translates errors.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
