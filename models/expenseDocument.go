package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ExpenseDocument is one scanned or recorded expense artifact. Date and amount
// are kept as entered and parsed on read.
type ExpenseDocument struct {
	ID               int       `gorm:"primary_key" json:"id"`
	ExpenseDate      string    `gorm:"size:32" json:"expense_date"`
	Amount           string    `gorm:"size:64" json:"amount"`
	Description      string    `gorm:"type:text" json:"description"`
	Supplier         string    `gorm:"size:255;index" json:"supplier"`
	DocumentType     string    `gorm:"size:100" json:"document_type"`
	Category         string    `gorm:"size:100;index" json:"category"`
	HasLinkedInvoice bool      `gorm:"not null;default:false" json:"has_linked_invoice"`
	LinkedDocumentID *int      `gorm:"index" json:"linked_document_id"`
	StorageURL       string    `gorm:"size:1024" json:"storage_url"`
	InvoiceNumber    string    `gorm:"size:100" json:"invoice_number"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *ExpenseDocument) Kind() DocumentType {
	return ParseDocumentType(d.DocumentType)
}

// IsLinkedReceipt reports whether d is a receipt that belongs to an invoice entry.
func (d *ExpenseDocument) IsLinkedReceipt() bool {
	return d.Kind() == DocumentTypePaymentReceipt && d.HasLinkedInvoice && d.LinkedDocumentID != nil
}

// ListExpenseDocuments returns documents in id order, which is the order the
// grouping relies on.
func ListExpenseDocuments(ctx context.Context, db *gorm.DB) ([]ExpenseDocument, error) {
	var docs []ExpenseDocument
	err := db.WithContext(ctx).Order("id").Find(&docs).Error
	return docs, err
}
