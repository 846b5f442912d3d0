package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"variance-analysis-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Variance Analysis"

var ExportHeader = []string{
	"Account Code",
	"Account Description",
	"Current Year Balance",
	"Prior Year Balance",
	"Variance",
	"Variance %",
	"Flag",
	"Annotation",
}

// RecordRows lays out records in ExportHeader column order.
func RecordRows(records []models.TrialBalanceRecord) [][]interface{} {
	rows := make([][]interface{}, len(records))
	for i, r := range records {
		rows[i] = []interface{}{
			r.AccountCode,
			r.AccountDescription,
			r.CurrentYearBalance,
			r.PriorYearBalance,
			r.Variance,
			r.VariancePercentage,
			r.Flag,
			r.Annotation,
		}
	}
	return rows
}

func WriteXLSX(w io.Writer, header []string, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return err
	}

	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &headerRow); err != nil {
		return err
	}

	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := setCell(f, cell, v); err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	return f.Write(w)
}

func WriteCSV(w io.Writer, header []string, rows [][]interface{}) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// setCell writes decimals as untyped numeric cells so no digits are lost to
// float64.
func setCell(f *excelize.File, cell string, v interface{}) error {
	if d, ok := v.(decimal.Decimal); ok {
		return f.SetCellDefault(sheetName, cell, d.String())
	}
	return f.SetCellValue(sheetName, cell, v)
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case decimal.Decimal:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
