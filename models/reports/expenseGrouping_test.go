package reports

import (
	"testing"

	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupExpenseDocuments(t *testing.T) {
	grouping := GroupExpenseDocuments(expenseFixture())

	require.Len(t, grouping.Entries, 3)
	assert.Empty(t, grouping.Dangling)

	invoice := grouping.Entries[0]
	assert.Equal(t, 1, invoice.ID)
	assert.True(t, invoice.HasInvoice)
	assert.Equal(t, "NF-889", invoice.InvoiceNumber)
	require.Len(t, invoice.Documents, 2)
	assert.Equal(t, AttachedDocument{ID: 1, Type: "Nota Fiscal", URL: "gs://docs/1.pdf"}, invoice.Documents[0])
	assert.Equal(t, AttachedDocument{ID: 2, Type: "Comprovante de Pagamento", URL: "gs://docs/2.jpg"}, invoice.Documents[1])

	receipt := grouping.Entries[1]
	assert.Equal(t, 3, receipt.ID)
	assert.False(t, receipt.HasInvoice)
	assert.Len(t, receipt.Documents, 1)

	other := grouping.Entries[2]
	assert.Equal(t, "Recibo de Pedágio", other.DocumentType)
}

func TestGroupExpenseDocuments_TotalCountsInvoiceOnce(t *testing.T) {
	docs := expenseFixture()[:3]
	grouping := GroupExpenseDocuments(docs)
	assert.True(t, grouping.Total().Equal(decimal.RequireFromString("97.53")), grouping.Total().String())
}

func TestGroupExpenseDocuments_TwoReceiptsOneInvoice(t *testing.T) {
	docs := []models.ExpenseDocument{
		{ID: 7, Amount: "100,00", DocumentType: "Comprovante de Pagamento", HasLinkedInvoice: true, LinkedDocumentID: linkedTo(9)},
		{ID: 8, Amount: "50,00", DocumentType: "Comprovante de Pagamento", HasLinkedInvoice: true, LinkedDocumentID: linkedTo(9)},
		{ID: 9, Amount: "150,00", DocumentType: "Nota Fiscal"},
	}
	grouping := GroupExpenseDocuments(docs)

	require.Len(t, grouping.Entries, 1)
	assert.Len(t, grouping.Entries[0].Documents, 3)
	assert.True(t, grouping.Total().Equal(decimal.NewFromInt(150)))
}

func TestGroupExpenseDocuments_ReceiptRules(t *testing.T) {
	tests := []struct {
		name         string
		doc          models.ExpenseDocument
		wantEntries  int
		wantDangling int
	}{
		{"flag without link stands alone", models.ExpenseDocument{ID: 1, DocumentType: "Comprovante de Pagamento", HasLinkedInvoice: true}, 1, 0},
		{"link without flag stands alone", models.ExpenseDocument{ID: 1, DocumentType: "Comprovante de Pagamento", LinkedDocumentID: linkedTo(5)}, 1, 0},
		{"link to missing invoice dangles", models.ExpenseDocument{ID: 1, DocumentType: "Comprovante de Pagamento", HasLinkedInvoice: true, LinkedDocumentID: linkedTo(5)}, 0, 1},
		{"other type keeps its own flag", models.ExpenseDocument{ID: 1, DocumentType: "Boleto", HasLinkedInvoice: true, LinkedDocumentID: linkedTo(5)}, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grouping := GroupExpenseDocuments([]models.ExpenseDocument{tt.doc})
			assert.Len(t, grouping.Entries, tt.wantEntries)
			assert.Len(t, grouping.Dangling, tt.wantDangling)
		})
	}
}

func TestGroupExpenseDocuments_ReceiptLinkedToNonInvoice(t *testing.T) {
	docs := []models.ExpenseDocument{
		{ID: 1, Amount: "10", DocumentType: "Boleto"},
		{ID: 2, Amount: "10", DocumentType: "Comprovante de Pagamento", HasLinkedInvoice: true, LinkedDocumentID: linkedTo(1)},
	}
	grouping := GroupExpenseDocuments(docs)

	require.Len(t, grouping.Entries, 1)
	assert.Len(t, grouping.Entries[0].Documents, 1)
	require.Len(t, grouping.Dangling, 1)
	assert.Equal(t, 2, grouping.Dangling[0].ID)
}

func TestGroupExpenseDocuments_UnparsedAmountIsZero(t *testing.T) {
	grouping := GroupExpenseDocuments([]models.ExpenseDocument{
		{ID: 1, Amount: "1.234,56", DocumentType: "Nota Fiscal"},
		{ID: 2, Amount: "", DocumentType: ""},
	})
	require.Len(t, grouping.Entries, 2)
	assert.True(t, grouping.Total().IsZero())
	assert.Equal(t, "Outros", grouping.Entries[1].DocumentType)
}
