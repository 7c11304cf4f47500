package reports

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	sheetExpenses  = "Despesas"
	sheetDocuments = "Documentos"
	sheetDangling  = "Sem Vinculo"
)

var expenseHeaders = []interface{}{
	"ID", "Data", "Valor", "Descrição", "Fornecedor", "Tipo Documento", "Natureza do Gasto", "Possui NF", "Número NF", "Documentos",
}

var documentHeaders = []interface{}{"Lançamento", "Documento", "Tipo", "URL"}

// ExportGroupedExpenses writes grouping as an xlsx workbook: one row per
// grouped entry, one row per attached document, and the dangling receipts.
func ExportGroupedExpenses(w io.Writer, grouping ExpenseGrouping) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetExpenses); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetDocuments); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeRow(f, sheetExpenses, 1, expenseHeaders); err != nil {
		return err
	}
	if err := writeRow(f, sheetDocuments, 1, documentHeaders); err != nil {
		return err
	}

	docRow := 2
	for i, e := range grouping.Entries {
		ids := make([]string, 0, len(e.Documents))
		for _, d := range e.Documents {
			ids = append(ids, fmt.Sprintf("%s #%d", d.Type, d.ID))
			if err := writeRow(f, sheetDocuments, docRow, []interface{}{e.ID, d.ID, d.Type, d.URL}); err != nil {
				return err
			}
			docRow++
		}
		row := []interface{}{
			e.ID, e.ExpenseDate, e.Amount.InexactFloat64(), e.Description, e.Supplier,
			e.DocumentType, e.Category, yesNo(e.HasInvoice), e.InvoiceNumber, strings.Join(ids, ", "),
		}
		if err := writeRow(f, sheetExpenses, i+2, row); err != nil {
			return err
		}
	}

	totalRow := len(grouping.Entries) + 2
	if err := writeRow(f, sheetExpenses, totalRow, []interface{}{"Total", "", grouping.Total().InexactFloat64()}); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetExpenses, "A1", "J1", bold); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(3, totalRow)
	if err := f.SetCellStyle(sheetExpenses, fmt.Sprintf("A%d", totalRow), last, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetExpenses, "D", "D", 40); err != nil {
		return err
	}

	if len(grouping.Dangling) > 0 {
		if _, err := f.NewSheet(sheetDangling); err != nil {
			return err
		}
		if err := writeRow(f, sheetDangling, 1, []interface{}{"ID", "Data", "Valor", "Fornecedor", "NF Vinculada"}); err != nil {
			return err
		}
		for i, d := range grouping.Dangling {
			row := []interface{}{d.ID, d.ExpenseDate, d.Amount, d.Supplier, *d.LinkedDocumentID}
			if err := writeRow(f, sheetDangling, i+2, row); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func yesNo(b bool) string {
	if b {
		return "Sim"
	}
	return "Não"
}
