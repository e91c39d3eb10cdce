package export

import (
	"fmt"
	"sort"
	"time"

	"github.com/Spok95/learning-platform/internal/models"
	"github.com/xuri/excelize/v2"
)

var earningsHeader = []string{"Month", "Classes", "Earnings"}

// EarningsWorkbook lays out a teacher's monthly totals, one sheet per year, newest first.
// A trailing row on every sheet carries the year's totals.
func EarningsWorkbook(rows []models.TeacherEarnings) (*excelize.File, error) {
	byYear := map[int][]models.TeacherEarnings{}
	for _, r := range rows {
		byYear[r.Year] = append(byYear[r.Year], r)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	sheets := make([]SheetSpec, 0, len(years))
	for _, y := range years {
		months := byYear[y]
		sort.Slice(months, func(i, j int) bool { return months[i].Month < months[j].Month })

		spec := SheetSpec{Title: fmt.Sprintf("%d", y), Header: earningsHeader, Money: []int{2}}
		var classes int
		var total float64
		for _, m := range months {
			spec.Rows = append(spec.Rows, []any{time.Month(m.Month).String(), m.TotalClasses, m.TotalEarnings})
			classes += m.TotalClasses
			total += m.TotalEarnings
		}
		spec.Rows = append(spec.Rows, []any{"Total", classes, total})
		sheets = append(sheets, spec)
	}
	return NewWorkbook(sheets)
}
