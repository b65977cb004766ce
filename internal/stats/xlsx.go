package stats

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	detailSheet  = "Detail"
)

// WriteXLSX writes a workbook with a summary sheet and a per-slot detail
// sheet.
func WriteXLSX(w io.Writer, summary []SummaryRow, detail []DetailedRow) error {
	wb := excelize.NewFile()
	defer wb.Close()

	if err := wb.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := wb.NewSheet(detailSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	bold, err := wb.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	summaryRows := [][]any{{"Date", "Project", "Hours", "Notes"}}
	for _, r := range summary {
		summaryRows = append(summaryRows, []any{r.Date, r.Project, r.Hours, r.Notes})
	}
	if err := writeSheet(wb, summarySheet, summaryRows, bold); err != nil {
		return err
	}

	detailRows := [][]any{{"Date", "Project", "Start Time", "End Time", "Note"}}
	for _, r := range detail {
		detailRows = append(detailRows, []any{r.Date, r.Project, r.StartTime, r.EndTime, r.Note})
	}
	if err := writeSheet(wb, detailSheet, detailRows, bold); err != nil {
		return err
	}

	if err := wb.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(wb *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := wb.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) > 0 {
		last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
		if err != nil {
			return err
		}
		if err := wb.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("style %s header: %w", sheet, err)
		}
	}
	if err := wb.SetColWidth(sheet, "A", "B", 16); err != nil {
		return fmt.Errorf("size %s columns: %w", sheet, err)
	}
	return nil
}
