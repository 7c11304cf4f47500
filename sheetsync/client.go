// Package sheetsync adapts the operations spreadsheet into typed records for
// the sync workflow and exposes the sync endpoints.
package sheetsync

import (
	"context"
	"fmt"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/daaty/dashboard-mobilidade-urbana-main/workflow"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/sheets/v4"
)

// Tab ranges of the operations spreadsheet.
const (
	RangeCompleted = "Corridas Concluidas!A:F"
	RangeCancelled = "Corridas Canceladas!A:H"
	RangeLost      = "Corridas Perdidas!A:G"
	RangeDrivers   = "Motoristas!A:F"
	RangeTargets   = "Metas!A:H"
)

// valueReader returns the raw cell grid of a range, header row first.
type valueReader interface {
	Values(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
}

type sheetsReader struct {
	svc *sheets.Service
}

func (r *sheetsReader) Values(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := r.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// Source implements workflow.ExternalSource over a spreadsheet.
type Source struct {
	name           string
	reader         valueReader
	spreadsheetID  string
	targetsSheetID string
	phoneRegion    string
	logger         logrus.FieldLogger
	now            func() time.Time
}

var _ workflow.ExternalSource = (*Source)(nil)

func NewSource(svc *sheets.Service, cfg config.SheetsConfig, logger logrus.FieldLogger) *Source {
	targets := cfg.TargetsSheetID
	if targets == "" {
		targets = cfg.SpreadsheetID
	}
	return &Source{
		name:           "google_sheets",
		reader:         &sheetsReader{svc: svc},
		spreadsheetID:  cfg.SpreadsheetID,
		targetsSheetID: targets,
		phoneRegion:    utils.DefaultPhoneRegion,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *Source) Name() string { return s.name }

func (s *Source) readTable(ctx context.Context, spreadsheetID, rng string) (*table, error) {
	values, err := s.reader.Values(ctx, spreadsheetID, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return newTable(values), nil
}

// FetchRides reads the completed, cancelled and lost tabs. The tab a row
// comes from decides its status.
func (s *Source) FetchRides(ctx context.Context) (workflow.Batch[models.RideRecord], error) {
	var batch workflow.Batch[models.RideRecord]
	tabs := []struct {
		rng    string
		status models.RideStatus
	}{
		{RangeCompleted, models.RideStatusCompleted},
		{RangeCancelled, models.RideStatusCancelled},
		{RangeLost, models.RideStatusLost},
	}
	for _, tab := range tabs {
		t, err := s.readTable(ctx, s.spreadsheetID, tab.rng)
		if err != nil {
			return batch, err
		}
		for _, r := range t.rows {
			ride, err := rideFromRow(r, tab.status, s.phoneRegion)
			if err != nil {
				batch.Rejected++
				s.rejected(tab.rng, r.line, err)
				continue
			}
			batch.Records = append(batch.Records, ride)
		}
	}
	return batch, nil
}

func (s *Source) FetchDrivers(ctx context.Context) (workflow.Batch[models.DriverRecord], error) {
	var batch workflow.Batch[models.DriverRecord]
	t, err := s.readTable(ctx, s.spreadsheetID, RangeDrivers)
	if err != nil {
		return batch, err
	}
	for _, r := range t.rows {
		driver, err := driverFromRow(r, s.phoneRegion)
		if err != nil {
			batch.Rejected++
			s.rejected(RangeDrivers, r.line, err)
			continue
		}
		batch.Records = append(batch.Records, driver)
	}
	return batch, nil
}

// FetchTargets expands each city row into one target per "Meta Mês N" column
// of the current year.
func (s *Source) FetchTargets(ctx context.Context) (workflow.Batch[models.TargetRecord], error) {
	var batch workflow.Batch[models.TargetRecord]
	t, err := s.readTable(ctx, s.targetsSheetID, RangeTargets)
	if err != nil {
		return batch, err
	}
	year := s.now().UTC().Year()
	for _, r := range t.rows {
		targets, err := targetsFromRow(r, year)
		if err != nil {
			batch.Rejected++
			s.rejected(RangeTargets, r.line, err)
			continue
		}
		batch.Records = append(batch.Records, targets...)
	}
	return batch, nil
}

func (s *Source) rejected(rng string, line int, err error) {
	s.logger.WithFields(logrus.Fields{
		"range": rng,
		"line":  line,
	}).WithError(err).Warn("sheet row rejected")
}
