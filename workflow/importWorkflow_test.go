package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/cache"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"gorm.io/gorm"
)

type fakeArchiver struct {
	calls []string
}

func (a *fakeArchiver) Archive(_ context.Context, _ string, importType models.ImportType, filename string) (string, error) {
	a.calls = append(a.calls, filename)
	return "gs://bucket/imports/" + string(importType) + "/" + filename, nil
}

func newTestImportService(t *testing.T) (*ImportService, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	logger := quietLogger()
	svc := NewImportService(ImportDependencies{
		DB:      db,
		Metrics: NewMetricsAggregator(db, logger),
		Cache:   cache.NewMemoryCache(time.Minute),
		Logger:  logger,
		Now:     func() time.Time { return time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC) },
	})
	return svc, db
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

const ridesCSV = "Data;Cliente;Motorista;Cidade;Status;Valor;Avaliação\n" +
	"2025-01-10 08:00;João;Carlos;São Paulo;concluída;R$ 25,50;5\n" +
	"2025-01-11 09:00;Maria;Ana;São Paulo;cancelada;;\n" +
	"ontem;Pedro;Ana;Campinas;concluida;10;\n" +
	"2025-01-12;Lia;Ana;;perdida;;\n" +
	"2025-01-12;Rui;Ana;Campinas;concluida;;9\n"

func TestImport_RidesCSV(t *testing.T) {
	svc, db := newTestImportService(t)
	archiver := &fakeArchiver{}
	svc.Archiver = archiver
	ctx := context.Background()
	require.NoError(t, svc.Cache.Set(ctx, "dashboard:metrics:abc", 1, time.Minute))

	path := writeFile(t, "corridas.csv", []byte(ridesCSV))
	result, err := svc.Import(ctx, path, "corridas janeiro.csv", models.ImportTypeRides, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 3, result.Errors)
	require.Len(t, result.ErrorDetails, 3)
	assert.Equal(t, `Linha 4: formato de data inválido: "ontem"`, result.ErrorDetails[0])
	assert.Contains(t, result.ErrorDetails[1], "Linha 5: region")
	assert.Contains(t, result.ErrorDetails[2], "Linha 6: rating")

	var rides []models.RideRecord
	require.NoError(t, db.Order("ride_at").Find(&rides).Error)
	require.Len(t, rides, 2)
	assert.Equal(t, models.OriginImport, rides[0].Origin)
	assert.True(t, rides[0].Fare.Decimal.Equal(decimal.RequireFromString("25.5")))
	assert.Equal(t, models.RideStatusCancelled, rides[1].Status)

	require.NotNil(t, result.MetricsRecompute)
	assert.Equal(t, "2025-01-10", result.MetricsRecompute.From)
	assert.Equal(t, 2, result.MetricsRecompute.MetricsCreated)

	var cached int
	found, err := svc.Cache.Get(ctx, "dashboard:metrics:abc", &cached)
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, []string{"corridas janeiro.csv"}, archiver.calls)
	assert.Equal(t, "gs://bucket/imports/rides/corridas janeiro.csv", result.ArchiveURL)

	logs, err := svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ImportStatusCompletedWithErrors, logs[0].Status)
	assert.Equal(t, 5, logs[0].TotalRows)
	assert.Equal(t, 2, logs[0].SuccessRows)
	assert.Equal(t, "corridas janeiro.csv", logs[0].Filename)
	assert.NotNil(t, logs[0].CompletedAt)
}

func TestImport_RiderPhoneFitsColumn(t *testing.T) {
	svc, db := newTestImportService(t)
	content := "data;usuario;motorista;cidade;status;usuario_telefone\n" +
		"2025-01-10 08:00;João;Carlos;São Paulo;concluida;(11) 94444-4444\n" +
		"2025-01-10 09:00;Maria;Carlos;São Paulo;concluida;ramal 12\n" +
		"2025-01-10 10:00;Pedro;Carlos;São Paulo;concluida;ligar para a central depois das 18h\n"
	path := writeFile(t, "telefones.csv", []byte(content))

	result, err := svc.Import(context.Background(), path, "telefones.csv", models.ImportTypeRides, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Zero(t, result.Errors)

	var rides []models.RideRecord
	require.NoError(t, db.Order("ride_at").Find(&rides).Error)
	require.Len(t, rides, 3)
	require.NotNil(t, rides[0].RiderPhone)
	assert.Equal(t, "+5511944444444", *rides[0].RiderPhone)
	require.NotNil(t, rides[1].RiderPhone)
	assert.Equal(t, "ramal 12", *rides[1].RiderPhone)
	assert.Nil(t, rides[2].RiderPhone)
}

func TestImport_DriversLatin1CSV(t *testing.T) {
	svc, db := newTestImportService(t)

	encoded, err := charmap.ISO8859_1.NewEncoder().String("Nome,Município,Status,Telefone\nJosé,São Paulo,ativo,(11) 94444-4444\n")
	require.NoError(t, err)
	path := writeFile(t, "motoristas.csv", []byte(encoded))

	result, err := svc.Import(context.Background(), path, "", models.ImportTypeDrivers, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Zero(t, result.Errors)
	assert.Nil(t, result.MetricsRecompute)

	var driver models.DriverRecord
	require.NoError(t, db.First(&driver).Error)
	assert.Equal(t, "José", driver.Name)
	assert.Equal(t, "São Paulo", driver.Region)
	require.NotNil(t, driver.Phone)
	assert.Equal(t, "+5511944444444", *driver.Phone)

	logs, err := svc.History(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusCompleted, logs[0].Status)
	assert.Equal(t, "motoristas.csv", logs[0].Filename)
}

func TestImport_TargetsWorkbook(t *testing.T) {
	svc, db := newTestImportService(t)

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Cidade", "Mês", "Meta Corridas", "Meta Receita"},
		{"São Paulo", "2025-03", 200, "15000"},
		{"São Paulo", "03/2025", 210, ""},
		{"Campinas", "março", 10, ""},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "metas.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	result, err := svc.Import(context.Background(), path, "metas.xlsx", models.ImportTypeTargets, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 2, result.Errors)
	assert.Equal(t, "Linha 3: registro já existe", result.ErrorDetails[0])
	assert.Contains(t, result.ErrorDetails[1], "mês inválido")

	var target models.TargetRecord
	require.NoError(t, db.First(&target).Error)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), target.Month.UTC())
	assert.Equal(t, 200, target.TargetRides)
	assert.True(t, target.TargetRevenue.Valid)
}

func TestImport_MissingRequiredColumn(t *testing.T) {
	svc, db := newTestImportService(t)
	path := writeFile(t, "corridas.csv", []byte("Data,Cliente\n2025-01-10,João\n"))

	result, err := svc.Import(context.Background(), path, "corridas.csv", models.ImportTypeRides, nil)
	require.ErrorIs(t, err, utils.ErrMissingColumn)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "motorista_nome, municipio, status")

	var log models.ImportLog
	require.NoError(t, db.First(&log).Error)
	assert.Equal(t, models.ImportStatusFailed, log.Status)
	assert.Contains(t, log.ErrorMessage, "required column not mapped")
}

func TestImport_ExplicitMapping(t *testing.T) {
	svc, _ := newTestImportService(t)
	path := writeFile(t, "x.csv", []byte("quando,quem,com quem,onde,como\n2025-01-10 10:00,Ana,Beto,Recife,perdida\n"))

	mapping := ColumnMapping{
		fieldDate:       "quando",
		fieldRiderName:  "quem",
		fieldDriverName: "com quem",
		fieldRegion:     "onde",
		fieldStatus:     "como",
	}
	result, err := svc.Import(context.Background(), path, "x.csv", models.ImportTypeRides, mapping)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
}

func TestImport_RejectedFiles(t *testing.T) {
	svc, _ := newTestImportService(t)

	_, err := svc.Import(context.Background(), "nope.csv", "nope.csv", models.ImportType("expenses"), nil)
	assert.ErrorIs(t, err, utils.ErrInvalidImportType)

	path := writeFile(t, "old.xls", []byte("binary"))
	result, err := svc.Import(context.Background(), path, "old.xls", models.ImportTypeRides, nil)
	assert.ErrorIs(t, err, utils.ErrUnsupportedFileType)
	assert.False(t, result.Success)
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		size    int64
		wantErr error
	}{
		{"xlsx", "a.xlsx", 100, nil},
		{"csv upper case", "A.CSV", 100, nil},
		{"legacy xls", "a.xls", 100, utils.ErrUnsupportedFileType},
		{"pdf", "a.pdf", 100, utils.ErrUnsupportedFileType},
		{"too large", "a.csv", DefaultImportMaxBytes + 1, utils.ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.file, tt.size, 0)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPreview(t *testing.T) {
	svc, _ := newTestImportService(t)
	path := writeFile(t, "corridas.csv", []byte(ridesCSV+"2025-01-13;A;B;Recife;concluida;;\n\n2025-01-14;C;D;Recife;concluida;;\n"))

	preview, err := svc.Preview(path, models.ImportTypeRides)
	require.NoError(t, err)
	assert.Equal(t, 7, preview.TotalRows)
	assert.Len(t, preview.SampleData, 5)
	assert.Equal(t, "João", preview.SampleData[0]["Cliente"])
	assert.Equal(t, "Cidade", preview.DetectedMapping[fieldRegion])
	assert.Equal(t, "Avaliação", preview.DetectedMapping[fieldRating])
	assert.Contains(t, preview.Required, fieldStatus)
	assert.Contains(t, preview.Optional, fieldFare)
}

func TestParseTargetMonth(t *testing.T) {
	march := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2025-03", "03/2025", "3/2025", "2025-03-17", "17/03/2025"} {
		got, ok := parseTargetMonth(in)
		assert.True(t, ok, in)
		assert.Equal(t, march, got, in)
	}
	_, ok := parseTargetMonth("março")
	assert.False(t, ok)
}
