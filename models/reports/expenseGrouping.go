package reports

import (
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/shopspring/decimal"
)

// AttachedDocument is one artifact shown under a grouped expense entry.
type AttachedDocument struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// GroupedExpense is one logical expense. Amount is the amount of the
// document that opened the entry; attached receipts never add to it.
type GroupedExpense struct {
	ID            int                `json:"id"`
	ExpenseDate   string             `json:"expense_date"`
	Amount        decimal.Decimal    `json:"amount"`
	Description   string             `json:"description"`
	Supplier      string             `json:"supplier"`
	DocumentType  string             `json:"document_type"`
	Category      string             `json:"category"`
	HasInvoice    bool               `json:"has_invoice"`
	InvoiceNumber string             `json:"invoice_number"`
	Documents     []AttachedDocument `json:"documents"`
}

// ExpenseGrouping is the result of GroupExpenseDocuments. Dangling holds the
// linked receipts whose invoice is not part of the input.
type ExpenseGrouping struct {
	Entries  []GroupedExpense         `json:"entries"`
	Dangling []models.ExpenseDocument `json:"dangling"`
}

// Total sums the entry amounts.
func (g ExpenseGrouping) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range g.Entries {
		total = total.Add(e.Amount)
	}
	return total
}

const documentTypeOther = "Outros"

const (
	labelInvoice = "Nota Fiscal"
	labelReceipt = "Comprovante de Pagamento"
)

func documentLabel(doc *models.ExpenseDocument) string {
	if doc.DocumentType == "" {
		return documentTypeOther
	}
	return doc.DocumentType
}

func newGroupedExpense(doc *models.ExpenseDocument, label string, hasInvoice bool) GroupedExpense {
	entry := GroupedExpense{
		ID:           doc.ID,
		ExpenseDate:  doc.ExpenseDate,
		Amount:       utils.AmountOrZero(doc.Amount),
		Description:  doc.Description,
		Supplier:     doc.Supplier,
		DocumentType: label,
		Category:     doc.Category,
		HasInvoice:   hasInvoice,
		Documents:    []AttachedDocument{attachment(doc, label)},
	}
	if hasInvoice {
		entry.InvoiceNumber = doc.InvoiceNumber
	}
	return entry
}

func attachment(doc *models.ExpenseDocument, label string) AttachedDocument {
	return AttachedDocument{ID: doc.ID, Type: label, URL: doc.StorageURL}
}

// GroupExpenseDocuments folds payment receipts linked to an invoice into
// that invoice's entry. Entries keep the order of their opening document.
func GroupExpenseDocuments(docs []models.ExpenseDocument) ExpenseGrouping {
	var (
		entries  []GroupedExpense
		invoices = make(map[int]int) // invoice id -> index in entries
		stashed  []*models.ExpenseDocument
	)

	for i := range docs {
		doc := &docs[i]
		switch doc.Kind() {
		case models.DocumentTypeInvoice:
			invoices[doc.ID] = len(entries)
			entries = append(entries, newGroupedExpense(doc, labelInvoice, true))
		case models.DocumentTypePaymentReceipt:
			if doc.IsLinkedReceipt() {
				stashed = append(stashed, doc)
				continue
			}
			entries = append(entries, newGroupedExpense(doc, labelReceipt, false))
		case models.DocumentTypeOther:
			entries = append(entries, newGroupedExpense(doc, documentLabel(doc), doc.HasLinkedInvoice))
		default:
			entries = append(entries, newGroupedExpense(doc, documentLabel(doc), doc.HasLinkedInvoice))
		}
	}

	grouping := ExpenseGrouping{Entries: entries}
	for _, receipt := range stashed {
		idx, ok := invoices[*receipt.LinkedDocumentID]
		if !ok {
			grouping.Dangling = append(grouping.Dangling, *receipt)
			continue
		}
		grouping.Entries[idx].Documents = append(grouping.Entries[idx].Documents, attachment(receipt, labelReceipt))
	}
	return grouping
}
