package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/bootstrap"
	"github.com/daaty/dashboard-mobilidade-urbana-main/cache"
	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models/reports"
	"github.com/daaty/dashboard-mobilidade-urbana-main/sheetsync"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/daaty/dashboard-mobilidade-urbana-main/workflow"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.MigrateTable(db))
	return db
}

// newTestApp wires the services the way bootstrap.Build does, against an
// in-memory store, the in-process cache and the mock sheet.
func newTestApp(t *testing.T) *bootstrap.App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	registry := prometheus.NewRegistry()
	collectors, err := workflow.NewSyncMetrics(registry)
	require.NoError(t, err)

	c := cache.NewMemoryCache(time.Minute)
	priority := workflow.NewPriorityResolver()
	validate := utils.NewValidator()
	aggregator := workflow.NewMetricsAggregator(db, log)
	syncSvc := workflow.NewSyncService(workflow.SyncDependencies{
		DB:         db,
		Source:     sheetsync.NewMockSource(log, nil),
		Reconciler: workflow.NewReconciler(db, priority, validate, log, collectors),
		Metrics:    aggregator,
		Duplicates: workflow.NewDuplicateResolver(db, priority, log),
		Cache:      c,
		Collectors: collectors,
		Logger:     log,
	})

	return &bootstrap.App{
		Config:   &config.Config{Env: "test", Import: config.ImportConfig{UploadDir: t.TempDir()}},
		Logger:   log,
		DB:       db,
		Cache:    c,
		Registry: registry,
		Sync:     syncSvc,
		Imports: workflow.NewImportService(workflow.ImportDependencies{
			DB: db, Validate: validate, Metrics: aggregator, Cache: c, Logger: log,
		}),
		Reports:  reports.NewService(db, c, log),
		Handlers: sheetsync.NewHandlers(syncSvc, log, true),
	}
}

func upload(t *testing.T, r http.Handler, path, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const ridesCSV = "Data;Usuario;Motorista;Cidade;Status;Valor\n" +
	"2025-01-10 08:30;Ana;Carlos;Sinop;concluída;18,50\n" +
	"data ruim;Bia;Davi;Sorriso;concluída;12,00\n"

func TestHealthAndNoRoute(t *testing.T) {
	r := newRouter(newTestApp(t))

	w := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("x-correlation-id"))

	w = do(r, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"route not found"}`, w.Body.String())
}

func TestSyncRoutesAndMetricsEndpoint(t *testing.T) {
	r := newRouter(newTestApp(t))

	w := do(r, http.MethodPost, "/api/sync/execute", `{"force":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dashboard_sync_runs_total")
}

func TestTriggerSyncWithoutPubSub(t *testing.T) {
	r := newRouter(newTestApp(t))
	w := do(r, http.MethodPost, "/api/sync/trigger", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestImportPreviewHandler(t *testing.T) {
	app := newTestApp(t)
	r := newRouter(app)

	w := upload(t, r, "/api/import/preview", "corridas.csv", ridesCSV, map[string]string{"type": "rides"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var preview workflow.ImportPreview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.Equal(t, 2, preview.TotalRows)
	assert.Equal(t, "Cidade", preview.DetectedMapping["municipio"])
	assert.Len(t, preview.SampleData, 2)

	entries, err := os.ReadDir(app.Config.Import.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "uploads are removed after reading")
}

func TestImportPreviewRejectsBadInput(t *testing.T) {
	r := newRouter(newTestApp(t))

	w := upload(t, r, "/api/import/preview", "corridas.csv", ridesCSV, map[string]string{"type": "viagens"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload(t, r, "/api/import/preview", "corridas.xls", ridesCSV, map[string]string{"type": "rides"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), ".xlsx")
}

func TestRunImportHandler(t *testing.T) {
	app := newTestApp(t)
	r := newRouter(app)

	w := upload(t, r, "/api/import/rides", "corridas.csv", ridesCSV, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result workflow.ImportResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorDetails, 1)
	assert.True(t, strings.HasPrefix(result.ErrorDetails[0], "Linha 3:"), result.ErrorDetails[0])

	w = do(r, http.MethodGet, "/api/import/history?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Imports []models.ImportLog `json:"imports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history.Imports, 1)
	assert.Equal(t, "corridas.csv", history.Imports[0].Filename)
}

func TestRunImportWithMapping(t *testing.T) {
	r := newRouter(newTestApp(t))
	csv := "quando,quem,condutor,onde,situacao\n2025-01-10,Ana,Carlos,Sinop,concluída\n"
	mapping := `{"data":"quando","usuario_nome":"quem","motorista_nome":"condutor","municipio":"onde","status":"situacao"}`

	w := upload(t, r, "/api/import/rides", "corridas.csv", csv, map[string]string{"mapping": mapping})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"imported":1`)

	w = upload(t, r, "/api/import/rides", "corridas.csv", csv, map[string]string{"mapping": "not json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload(t, r, "/api/import/rides", "corridas.csv", csv, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "required column not mapped")
}

func seedTodayExpenses(t *testing.T, db *gorm.DB) {
	t.Helper()
	today := time.Now().UTC().Format("2006-01-02")
	invoice := 1
	docs := []models.ExpenseDocument{
		{ID: 1, ExpenseDate: today, Amount: "R$ 100,00", Supplier: "Posto Shell", DocumentType: "Nota Fiscal", Category: "Combustível"},
		{ID: 2, ExpenseDate: today, Amount: "100,00", Supplier: "Posto Shell", DocumentType: "Comprovante de Pagamento", HasLinkedInvoice: true, LinkedDocumentID: &invoice},
		{ID: 3, ExpenseDate: today, Amount: "20,00", Supplier: "Papelaria", DocumentType: "Comprovante de Pagamento", Category: "Escritório"},
	}
	require.NoError(t, db.Create(&docs).Error)
}

func TestFinanceHandlers(t *testing.T) {
	app := newTestApp(t)
	seedTodayExpenses(t, app.DB)
	r := newRouter(app)

	w := do(r, http.MethodGet, "/api/finance/overview?periodo=7", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var overview reports.ExpenseOverviewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &overview))
	assert.True(t, decimal.NewFromInt(120).Equal(overview.Total), overview.Total.String())
	assert.Equal(t, 2, overview.Count)
	assert.Equal(t, 7, overview.PeriodDays)

	w = do(r, http.MethodGet, "/api/finance/suppliers?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ranking reports.SupplierRankingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ranking))
	require.Len(t, ranking.Suppliers, 1)
	assert.Equal(t, "Posto Shell", ranking.Suppliers[0].Supplier)

	w = do(r, http.MethodGet, "/api/finance/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "despesas_30d.xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Despesas")
	require.NoError(t, err)
	assert.Len(t, rows, 4) // header, two entries, total
}

func TestDailyMetricsHandler(t *testing.T) {
	app := newTestApp(t)
	r := newRouter(app)

	w := do(r, http.MethodGet, "/api/metrics/daily?from=31/01/2025", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/api/metrics/daily?from=ontem", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/metrics/daily?from=2025-02-10&to=2025-02-01", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheHandlers(t *testing.T) {
	app := newTestApp(t)
	r := newRouter(app)

	w := do(r, http.MethodGet, "/api/finance/overview", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/cache/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Keys)
	assert.Equal(t, int64(1), stats.Misses)

	w = do(r, http.MethodPost, "/api/cache/invalidate", `{"pattern":"sessions:*"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/cache/invalidate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":1,"pattern":"dashboard:*"}`, w.Body.String())
}
