package reports

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.MigrateTable(db))
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func linkedTo(id int) *int { return &id }

// expenseFixture is an invoice with its receipt, a standalone receipt and a
// toll slip with no supplier.
func expenseFixture() []models.ExpenseDocument {
	return []models.ExpenseDocument{
		{ID: 1, ExpenseDate: "2025-01-10", Amount: "R$ 72,53", Supplier: "Posto Shell", DocumentType: "Nota Fiscal", Category: "Combustível", InvoiceNumber: "NF-889", StorageURL: "gs://docs/1.pdf"},
		{ID: 2, ExpenseDate: "2025-01-10", Amount: "72,53", Supplier: "Posto Shell", DocumentType: "Comprovante de Pagamento", Category: "Combustível", HasLinkedInvoice: true, LinkedDocumentID: linkedTo(1), StorageURL: "gs://docs/2.jpg"},
		{ID: 3, ExpenseDate: "12/01/2025", Amount: "25.00", Supplier: "Papelaria", DocumentType: "Comprovante de Pagamento", Category: "Escritório"},
		{ID: 4, ExpenseDate: "2025-02-03", Amount: "8,40", DocumentType: "Recibo de Pedágio"},
	}
}
