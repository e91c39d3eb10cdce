package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

type SheetSpec struct {
	Title  string
	Header []string
	Rows   [][]any
	// Money lists zero-based columns formatted as currency amounts.
	Money []int
}

// NewWorkbook writes one sheet per SheetSpec and applies the default formatting to each.
func NewWorkbook(sheets []SheetSpec) (*excelize.File, error) {
	f := excelize.NewFile()
	if len(sheets) == 0 {
		sheets = []SheetSpec{{Title: "Empty"}}
	}
	for i, s := range sheets {
		name := s.Title
		if i == 0 {
			// переименовываем стандартный Sheet1
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet %q: %w", name, err)
		}

		if len(s.Header) > 0 {
			if err := f.SetSheetRow(name, "A1", &s.Header); err != nil {
				return nil, fmt.Errorf("header %q: %w", name, err)
			}
		}
		for r, row := range s.Rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+2)
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return nil, fmt.Errorf("row %s: %w", cell, err)
			}
		}
		money := map[int]bool{}
		for _, c := range s.Money {
			money[c] = true
		}
		if err := formatSheet(f, s, money); err != nil {
			return nil, fmt.Errorf("format %q: %w", name, err)
		}
	}
	return f, nil
}

// Bytes serialises the workbook for an HTTP response or a file write.
func Bytes(f *excelize.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
