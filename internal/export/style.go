package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	minColWidth = 10
	maxColWidth = 60
)

// formatSheet makes the header bold and frozen, puts an autofilter on it and sizes columns
// to their widest value. Columns listed in money get a two-decimal number format.
func formatSheet(f *excelize.File, spec SheetSpec, money map[int]bool) error {
	cols := len(spec.Header)
	for _, r := range spec.Rows {
		cols = max(cols, len(r))
	}
	if cols == 0 {
		return nil
	}
	last, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(spec.Title, "A1", last+"1", bold); err != nil {
		return err
	}
	if err := f.AutoFilter(spec.Title, "A1:"+last+"1", nil); err != nil {
		return err
	}
	if err := f.SetPanes(spec.Title, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return err
	}

	if len(money) > 0 && len(spec.Rows) > 0 {
		numFmt := "#,##0.00"
		cents, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
		if err != nil {
			return err
		}
		for c := range money {
			col, _ := excelize.ColumnNumberToName(c + 1)
			top := fmt.Sprintf("%s2", col)
			bottom := fmt.Sprintf("%s%d", col, len(spec.Rows)+1)
			if err := f.SetCellStyle(spec.Title, top, bottom, cents); err != nil {
				return err
			}
		}
	}

	for c := 0; c < cols; c++ {
		w := float64(minColWidth)
		if c < len(spec.Header) {
			// запас под стрелку фильтра
			w = max(w, cellWidth(spec.Header[c])+2)
		}
		for _, r := range spec.Rows {
			if c < len(r) {
				w = max(w, cellWidth(r[c]))
			}
		}
		col, _ := excelize.ColumnNumberToName(c + 1)
		if err := f.SetColWidth(spec.Title, col, col, min(w, maxColWidth)); err != nil {
			return err
		}
	}
	return nil
}

// cellWidth is a rough column width for v: runes plus a little slack for wide glyphs.
func cellWidth(v any) float64 {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case float64:
		s = fmt.Sprintf("%.2f", x)
	default:
		s = fmt.Sprint(x)
	}
	return float64(utf8.RuneCountInString(s)) * 1.1
}

var invalidFileRe = regexp.MustCompile(`[\\/:*?"<>|]+`)

// BuildEarningsFilename: имя файла выгрузки доходов преподавателя.
func BuildEarningsFilename(teacherName string, at time.Time) string {
	name := strings.Join(strings.Fields(teacherName), " ")
	if name == "" {
		name = "teacher"
	}
	base := fmt.Sprintf("Earnings — %s — %s.xlsx", name, at.Format("2006-01-02"))
	return invalidFileRe.ReplaceAllString(base, "_")
}
