package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"variance-analysis-backend/internal/services/variance"

	"github.com/xuri/excelize/v2"
)

var (
	ErrEmptySheet        = errors.New("worksheet is empty")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Sheet is an uploaded trial balance as raw rows.
type Sheet struct {
	Rows [][]string
	// Format is FormatDecimalComma for semicolon-delimited text, the export
	// format of decimal-comma locales, and FormatAuto otherwise.
	Format variance.NumberFormat
}

// ReadSheet reads every row of an uploaded trial balance. .xlsx files are
// read from their first sheet, everything else is treated as delimited text.
func ReadSheet(r io.Reader, filename string) (*Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		rows, err := readXLSX(data)
		if err != nil {
			return nil, err
		}
		return &Sheet{Rows: rows, Format: variance.FormatAuto}, nil
	case ".xls":
		return nil, fmt.Errorf("%w: legacy .xls, save as .xlsx or .csv", ErrUnsupportedFormat)
	default:
		return readDelimited(data)
	}
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no worksheet found")
	}

	rows, err := file.GetRows(sheetName)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}
	return rows, nil
}

func readDelimited(data []byte) (*Sheet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptySheet
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.Comma = sniffDelimiter(data)

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}

	sheet := &Sheet{Rows: rows, Format: variance.FormatAuto}
	if reader.Comma == ';' {
		sheet.Format = variance.FormatDecimalComma
	}
	return sheet, nil
}

// sniffDelimiter picks the separator used in the header line.
func sniffDelimiter(data []byte) rune {
	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}

	best, bestCount := ',', 0
	for _, d := range []rune{',', '\t', ';'} {
		if n := strings.Count(string(header), string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
