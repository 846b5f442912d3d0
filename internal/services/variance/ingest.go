package variance

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrNotNumeric    = errors.New("not a numeric amount")
)

// SkippedRow explains why an input row did not become a record. Row is the
// 1-based spreadsheet row number, header included.
type SkippedRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// IngestResult holds unclassified records ready for Classify.
type IngestResult struct {
	Records []Record     `json:"records"`
	Skipped []SkippedRow `json:"skipped"`
}

type column int

const (
	colCode column = iota
	colDescription
	colCurrent
	colPrior
)

var headerAliases = map[column][]string{
	colCode:        {"account code", "account no", "account number", "account", "code"},
	colDescription: {"account description", "account name", "description", "name"},
	colCurrent:     {"current year balance", "current year", "current balance", "current", "cy"},
	colPrior:       {"prior year balance", "prior year", "prior balance", "prior", "py"},
}

var requiredColumns = []column{colCode, colCurrent, colPrior}

var columnNames = map[column]string{
	colCode:        "account code",
	colDescription: "account description",
	colCurrent:     "current year balance",
	colPrior:       "prior year balance",
}

// ParseRows turns raw spreadsheet rows into records. The first row must be
// a header. Blank balance cells count as zero; rows with a non-numeric
// balance, a blank account code or a duplicate account code are skipped
// and reported. The decimal separator is inferred from the balances.
func ParseRows(rows [][]string) (IngestResult, error) {
	return ParseRowsFormat(rows, FormatAuto)
}

// ParseRowsFormat is ParseRows with a known number format. FormatAuto
// picks the format shared by the unambiguous balances of the file.
func ParseRowsFormat(rows [][]string, format NumberFormat) (IngestResult, error) {
	result := IngestResult{Records: []Record{}, Skipped: []SkippedRow{}}
	if len(rows) == 0 {
		return result, nil
	}

	idx, err := locateColumns(rows[0])
	if err != nil {
		return result, err
	}
	if format == FormatAuto {
		format = inferFormat(rows[1:], idx)
	}

	seen := make(map[string]int)
	for i, row := range rows[1:] {
		rowNum := i + 2

		if isBlankRow(row) {
			continue
		}

		code := cell(row, idx[colCode])
		if code == "" {
			result.Skipped = append(result.Skipped, SkippedRow{Row: rowNum, Reason: "account code is empty"})
			continue
		}
		if first, dup := seen[code]; dup {
			result.Skipped = append(result.Skipped, SkippedRow{
				Row:    rowNum,
				Reason: fmt.Sprintf("duplicate account code %q (first seen on row %d)", code, first),
			})
			continue
		}

		current, err := ParseAmountFormat(cell(row, idx[colCurrent]), format)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRow{Row: rowNum, Reason: "current year balance: " + err.Error()})
			continue
		}
		prior, err := ParseAmountFormat(cell(row, idx[colPrior]), format)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRow{Row: rowNum, Reason: "prior year balance: " + err.Error()})
			continue
		}

		seen[code] = rowNum
		result.Records = append(result.Records, NewRecord(code, cell(row, idx[colDescription]), current, prior))
	}

	return result, nil
}

func locateColumns(header []string) (map[column]int, error) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalizeHeader(h)
	}

	idx := map[column]int{colCode: -1, colDescription: -1, colCurrent: -1, colPrior: -1}
	for col, aliases := range headerAliases {
	search:
		for _, alias := range aliases {
			for i, h := range normalized {
				if h == alias {
					idx[col] = i
					break search
				}
			}
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if idx[col] < 0 {
			missing = append(missing, columnNames[col])
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return idx, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.NewReplacer("_", " ", "-", " ", ".", "", "#", "").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

// inferFormat votes over the balance cells that read only one way. A file
// with votes for both formats stays FormatAuto and each cell is read on its
// own.
func inferFormat(rows [][]string, idx map[column]int) NumberFormat {
	var point, comma int
	for _, row := range rows {
		for _, col := range []column{colCurrent, colPrior} {
			s, _, blank := cleanAmount(cell(row, idx[col]))
			if blank {
				continue
			}
			switch formatOf(s) {
			case FormatDecimalPoint:
				point++
			case FormatDecimalComma:
				comma++
			}
		}
	}

	switch {
	case comma > 0 && point == 0:
		return FormatDecimalComma
	case point > 0 && comma == 0:
		return FormatDecimalPoint
	}
	return FormatAuto
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
