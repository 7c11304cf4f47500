package workflow

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

const DefaultImportMaxBytes int64 = 16 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// importRow is one data row of an uploaded file. Line is the 1-based line in
// the file, so the header is line 1 and the first data row line 2.
type importRow struct {
	line  int
	cells []string
}

type importTable struct {
	columns []string
	rows    []importRow
}

// ValidateUpload checks the extension and size of an upload before it is read.
func ValidateUpload(filename string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultImportMaxBytes
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".csv":
	case ".xls":
		return fmt.Errorf("%w: legacy .xls workbooks cannot be read, save the file as .xlsx", utils.ErrUnsupportedFileType)
	default:
		return fmt.Errorf("%w: use .xlsx or .csv", utils.ErrUnsupportedFileType)
	}
	if size > maxBytes {
		return fmt.Errorf("%w: maximum is %d MB", utils.ErrFileTooLarge, maxBytes>>20)
	}
	return nil
}

func readImportFile(path string, maxBytes int64) (*importTable, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateUpload(path, info.Size(), maxBytes); err != nil {
		return nil, err
	}

	var (
		records [][]string
		lines   []int
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		records, err = readWorkbook(path)
	case ".csv":
		records, lines, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	return newImportTable(records, lines)
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// readCSV accepts UTF-8 (with or without BOM) and falls back to ISO-8859-1,
// the encoding spreadsheet exports on Brazilian Windows machines use.
// The delimiter is ';' when the header has more semicolons than commas.
// lines holds the file line each record starts on; the csv reader skips
// empty lines, so record index and line number can differ.
func readCSV(path string) (records [][]string, lines []int, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		raw, err = charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("decode csv: %w", err)
		}
	}

	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	header, _, _ := strings.Cut(string(raw), "\n")
	if strings.Count(header, ";") > strings.Count(header, ",") {
		r.Comma = ';'
	}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records, lines, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse csv: %w", err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
}

// newImportTable takes the first record as the header. Blank rows are
// dropped but keep the numbering of the rows after them. A nil lines means
// record i sits on line i+1.
func newImportTable(records [][]string, lines []int) (*importTable, error) {
	if len(records) == 0 {
		return nil, errors.New("file is empty")
	}
	t := &importTable{}
	for _, c := range records[0] {
		t.columns = append(t.columns, strings.TrimSpace(c))
	}
	for i, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		cells := make([]string, len(t.columns))
		for j := range cells {
			if j < len(rec) {
				cells[j] = strings.TrimSpace(rec[j])
			}
		}
		line := i + 2
		if lines != nil {
			line = lines[i+1]
		}
		t.rows = append(t.rows, importRow{line: line, cells: cells})
	}
	return t, nil
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
