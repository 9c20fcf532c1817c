package sheets

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
)

// WriteXLSX renders a snapshot as a workbook with one Field/Value sheet per
// present section.
func WriteXLSX(snap models.Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	first := true
	for _, name := range models.Sections {
		sec := snap.Section(name)
		if sec == nil {
			continue
		}
		sheet := string(name)
		if first {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, err
			}
			first = false
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}

		if err := writeSection(f, sheet, sec); err != nil {
			return nil, fmt.Errorf("xlsx sheet %s: %w", sheet, err)
		}
	}
	if first {
		return nil, apperr.Validation("no structured data to export")
	}

	if err := f.SetDocProps(&excelize.DocProperties{Created: snap.Timestamp, Title: "Batch record extraction"}); err != nil {
		return nil, fmt.Errorf("xlsx properties: %w", err)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSection(f *excelize.File, sheet string, sec models.Section) error {
	if err := f.SetSheetRow(sheet, "A1", &[]any{"Field", "Value"}); err != nil {
		return err
	}

	keys := make([]string, 0, len(sec))
	for k := range sec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &[]any{k, models.FormatValue(sec[k])}); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 28); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "B", "B", 48)
}
