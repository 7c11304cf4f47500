package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/cache"
	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	maxImportErrorLines = 10
	previewRows         = 5
)

type ImportDependencies struct {
	DB       *gorm.DB
	Validate *validator.Validate
	Metrics  *MetricsAggregator
	Archiver ImportArchiver
	Cache    cache.Cache
	Logger   logrus.FieldLogger
	MaxBytes int64
	Now      func() time.Time
}

// ImportService loads rides, drivers and targets from uploaded files.
// Imported rows are inserted with origin import; they are not reconciled
// against existing records.
type ImportService struct {
	ImportDependencies
}

func NewImportService(deps ImportDependencies) *ImportService {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.MaxBytes <= 0 {
		deps.MaxBytes = DefaultImportMaxBytes
	}
	if deps.Validate == nil {
		deps.Validate = utils.NewValidator()
	}
	return &ImportService{ImportDependencies: deps}
}

type ImportPreview struct {
	TotalRows       int                 `json:"total_rows"`
	Columns         []string            `json:"columns"`
	SampleData      []map[string]string `json:"sample_data"`
	DetectedMapping ColumnMapping       `json:"detected_mapping"`
	ImportSchema
}

type ImportResult struct {
	Success          bool           `json:"success"`
	ImportLogID      int            `json:"import_log_id"`
	Imported         int            `json:"imported"`
	Errors           int            `json:"errors"`
	ErrorDetails     []string       `json:"error_details"`
	MetricsRecompute *MetricsResult `json:"metrics_recompute,omitempty"`
	ArchiveURL       string         `json:"archive_url,omitempty"`
	Error            string         `json:"error,omitempty"`
}

func (s *ImportService) Preview(path string, importType models.ImportType) (*ImportPreview, error) {
	schema, ok := SchemaFor(importType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", utils.ErrInvalidImportType, importType)
	}
	table, err := readImportFile(path, s.MaxBytes)
	if err != nil {
		return nil, err
	}

	preview := &ImportPreview{
		TotalRows:       len(table.rows),
		Columns:         table.columns,
		SampleData:      []map[string]string{},
		DetectedMapping: DetectColumnMapping(table.columns, schema),
		ImportSchema:    schema,
	}
	for i, row := range table.rows {
		if i == previewRows {
			break
		}
		sample := make(map[string]string, len(table.columns))
		for j, col := range table.columns {
			sample[col] = row.cells[j]
		}
		preview.SampleData = append(preview.SampleData, sample)
	}
	return preview, nil
}

// Import reads path and inserts its rows. filename is the name the user
// uploaded, recorded on the ImportLog. A nil mapping is auto-detected.
//
// The returned error is set only when the file could not be imported at
// all; row errors are reported in the result.
func (s *ImportService) Import(ctx context.Context, path, filename string, importType models.ImportType, mapping ColumnMapping) (*ImportResult, error) {
	schema, ok := SchemaFor(importType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", utils.ErrInvalidImportType, importType)
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	log, err := models.CreateImportLog(ctx, s.DB, filename, size, importType, s.Now())
	if err != nil {
		return nil, fmt.Errorf("create import log: %w", err)
	}
	result := &ImportResult{ImportLogID: log.ID, ErrorDetails: []string{}}
	logger := s.Logger.WithFields(logrus.Fields{"import_log_id": log.ID, "import_type": importType, "filename": filename})

	table, err := readImportFile(path, s.MaxBytes)
	if err == nil && mapping == nil {
		mapping = DetectColumnMapping(table.columns, schema)
	}
	if err == nil {
		if missing := missingRequired(schema, mapping, table.columns); len(missing) > 0 {
			err = fmt.Errorf("%w: %s", utils.ErrMissingColumn, strings.Join(missing, ", "))
		}
	}
	if err != nil {
		return s.failImport(ctx, log, result, err)
	}

	log.TotalRows = len(table.rows)
	index := bindMapping(mapping, table.columns)

	var earliestRide time.Time
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, row := range table.rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := boundRow{index: index, cells: row.cells}
			rideAt, rowErr := s.importRow(ctx, tx, fmt.Sprintf("imp_%d", i), importType, r)
			if rowErr != nil {
				if isFatal(rowErr) {
					return rowErr
				}
				log.ErrorRows++
				if len(result.ErrorDetails) < maxImportErrorLines {
					result.ErrorDetails = append(result.ErrorDetails, fmt.Sprintf("Linha %d: %s", row.line, rowErr))
				}
				continue
			}
			log.SuccessRows++
			if !rideAt.IsZero() && (earliestRide.IsZero() || rideAt.Before(earliestRide)) {
				earliestRide = rideAt
			}
		}
		return nil
	})
	if err != nil {
		log.SuccessRows, log.ErrorRows = 0, 0
		return s.failImport(ctx, log, result, err)
	}

	log.Status = models.ImportStatusCompleted
	if log.ErrorRows > 0 {
		log.Status = models.ImportStatusCompletedWithErrors
	}
	log.ErrorMessage = strings.Join(result.ErrorDetails, "\n")
	if err := models.FinishImportLog(ctx, s.DB, log, s.Now()); err != nil {
		config.LogError(logger, "import", "Import", "finish import log", log.ID, err)
	}

	result.Success = true
	result.Imported = log.SuccessRows
	result.Errors = log.ErrorRows
	logger.WithFields(logrus.Fields{"imported": result.Imported, "errors": result.Errors}).Info("import finished")

	if !earliestRide.IsZero() && s.Metrics != nil {
		metrics, err := s.Metrics.Recompute(ctx, earliestRide)
		if err != nil {
			logger.WithError(err).Warn("metrics not recomputed after import")
		} else {
			result.MetricsRecompute = &metrics
		}
	}
	if result.Imported > 0 && s.Cache != nil {
		if _, err := s.Cache.InvalidatePattern(ctx, cache.KeyPrefix+":*"); err != nil {
			logger.WithError(err).Warn("cache not invalidated after import")
		}
	}
	if s.Archiver != nil {
		url, err := s.Archiver.Archive(ctx, path, importType, filename)
		if err != nil {
			logger.WithError(err).Warn("import file not archived")
		} else {
			result.ArchiveURL = url
		}
	}
	return result, nil
}

// rowError marks a per-row failure; anything else aborts the import.
type rowError struct{ err error }

func (e rowError) Error() string { return e.err.Error() }
func (e rowError) Unwrap() error { return e.err }

func isFatal(err error) bool {
	var re rowError
	return !errors.As(err, &re)
}

// importRow converts, validates and inserts one row under its own savepoint.
// For rides it returns the ride day so metrics can be recomputed from it.
func (s *ImportService) importRow(ctx context.Context, tx *gorm.DB, sp string, importType models.ImportType, r boundRow) (time.Time, error) {
	var (
		record interface{}
		rideAt time.Time
		err    error
	)
	switch importType {
	case models.ImportTypeRides:
		var ride models.RideRecord
		ride, err = rideFromImport(r)
		rideAt = ride.RideAt
		record = &ride
	case models.ImportTypeDrivers:
		var driver models.DriverRecord
		driver, err = driverFromImport(r)
		record = &driver
	case models.ImportTypeTargets:
		var target models.TargetRecord
		target, err = targetFromImport(r)
		record = &target
	default:
		return time.Time{}, fmt.Errorf("%w: %q", utils.ErrInvalidImportType, importType)
	}
	if err != nil {
		return time.Time{}, rowError{err}
	}
	if err := s.Validate.Struct(record); err != nil {
		return time.Time{}, rowError{errors.New(utils.ValidationMessage(err))}
	}

	if err := tx.SavePoint(sp).Error; err != nil {
		return time.Time{}, err
	}
	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		if rbErr := tx.RollbackTo(sp).Error; rbErr != nil {
			return time.Time{}, rbErr
		}
		if utils.IsDuplicateKeyError(err) {
			return time.Time{}, rowError{errors.New("registro já existe")}
		}
		return time.Time{}, rowError{err}
	}
	if err := tx.Exec("RELEASE SAVEPOINT " + sp).Error; err != nil {
		return time.Time{}, err
	}
	return rideAt, nil
}

func (s *ImportService) failImport(ctx context.Context, log *models.ImportLog, result *ImportResult, cause error) (*ImportResult, error) {
	log.Status = models.ImportStatusFailed
	log.ErrorMessage = cause.Error()
	if err := models.FinishImportLog(context.WithoutCancel(ctx), s.DB, log, s.Now()); err != nil {
		config.LogError(s.Logger, "import", "failImport", "finish import log", log.ID, err)
	}
	config.LogError(s.Logger, "import", "Import", log.Filename, log.ID, cause)
	result.Success = false
	result.Error = cause.Error()
	return result, cause
}

func (s *ImportService) History(ctx context.Context, limit int) ([]models.ImportLog, error) {
	return models.ListImportLogs(ctx, s.DB, limit)
}
