package ingest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"supplier-import-service/internal/models"
)

// catalogSheet builds a sheet with a title block, a header row, n data rows
// and a trailing footer row.
func catalogSheet(dataRows int) [][]string {
	rows := [][]string{
		{"Catalogue fournisseur"},
		{""},
		{"Reference", "Designation", "Prix", "Stock", "EAN"},
	}
	for i := 0; i < dataRows; i++ {
		rows = append(rows, []string{fmt.Sprintf("REF-%03d", i), fmt.Sprintf("Produit %d", i), "10.00", "5", "1234567890123"})
	}
	rows = append(rows, []string{"Total", "", "", "", ""})
	return rows
}

func TestFilteredRows_FooterSkip(t *testing.T) {
	rows := catalogSheet(9)
	headerIdx := DetectHeaderRow(rows)
	assert.Equal(t, 2, headerIdx)

	cfg := models.FilterConfig{SkipRowsBottom: 1}
	filtered := FilteredRows(rows, headerIdx, cfg)
	stats := Stats(rows, headerIdx, cfg)

	assert.Len(t, filtered, 9)
	assert.Equal(t, 10, stats.TotalRows)
	assert.Equal(t, 1, stats.IgnoredRows)
	assert.Equal(t, 9, stats.FilteredRows)
}

func TestFilteredRows_TopAndBottomSkip(t *testing.T) {
	rows := catalogSheet(5)

	filtered := FilteredRows(rows, 2, models.FilterConfig{SkipRowsTop: 2, SkipRowsBottom: 1})

	assert.Len(t, filtered, 3)
	assert.Equal(t, "REF-002", filtered[0][0])
	assert.Equal(t, "REF-004", filtered[2][0])
}

func TestFilteredRows_SkipsExceedingDataAreClamped(t *testing.T) {
	rows := catalogSheet(2)

	filtered := FilteredRows(rows, 2, models.FilterConfig{SkipRowsTop: 10, SkipRowsBottom: 10})

	assert.Empty(t, filtered)
}

func TestFilteredRows_PatternFiltering(t *testing.T) {
	rows := catalogSheet(4)

	filtered := FilteredRows(rows, 2, models.FilterConfig{SkipPatterns: []string{"total*"}})

	assert.Len(t, filtered, 4)
	for _, row := range filtered {
		assert.NotEqual(t, "Total", row[0])
	}
}

func TestFilteredRows_AddingPatternNeverGrowsResult(t *testing.T) {
	rows := catalogSheet(6)
	base := models.FilterConfig{}
	withPattern := models.FilterConfig{SkipPatterns: []string{"*produit 3*"}}

	baseCount := len(FilteredRows(rows, 2, base))
	patternCount := len(FilteredRows(rows, 2, withPattern))

	assert.LessOrEqual(t, patternCount, baseCount)
}

func TestFilteredRows_DoesNotMutateInput(t *testing.T) {
	rows := catalogSheet(3)
	snapshot := make([][]string, len(rows))
	for i, row := range rows {
		snapshot[i] = append([]string(nil), row...)
	}

	FilteredRows(rows, 2, models.FilterConfig{SkipRowsTop: 1, SkipPatterns: []string{"total*"}})

	assert.Equal(t, snapshot, rows)
}

func TestFilteredRows_Idempotent(t *testing.T) {
	rows := catalogSheet(7)
	cfg := models.FilterConfig{SkipRowsBottom: 1, SkipPatterns: []string{"*produit 2*"}}

	first := FilteredRows(rows, 2, cfg)
	second := FilteredRows(rows, 2, cfg)

	assert.Equal(t, first, second)
}

func TestStats_TotalsAddUp(t *testing.T) {
	rows := catalogSheet(8)
	cfg := models.FilterConfig{SkipRowsTop: 1, SkipRowsBottom: 2, SkipPatterns: []string{"*produit 5*"}}

	stats := Stats(rows, 2, cfg)

	assert.Equal(t, stats.TotalRows, stats.IgnoredRows+stats.FilteredRows)
}

func TestCompileSkipPatterns(t *testing.T) {
	patterns := CompileSkipPatterns([]string{"Total*", "", "  "})

	assert.Len(t, patterns, 1)
	assert.True(t, patterns[0].MatchString("total général"))
	assert.True(t, patterns[0].MatchString("TOTAL HT"))
	assert.False(t, patterns[0].MatchString("sous-ensemble"))
}

func TestProjectRows_RaggedRows(t *testing.T) {
	rows := [][]string{
		{"a", "b", "c"},
		{"d"},
	}

	projected := ProjectRows(rows, []int{0, 2})

	assert.Equal(t, [][]string{{"a", "c"}, {"d", ""}}, projected)
}

func TestIncludedColumnIndexes(t *testing.T) {
	headers := []string{"Reference", "Interne", "Prix"}
	cfg := models.FilterConfig{ExcludedColumns: []string{"Interne"}}

	assert.Equal(t, []int{0, 2}, IncludedColumnIndexes(headers, cfg))
	assert.Equal(t, []string{"Reference", "Prix"}, DetectedColumns(headers, cfg))
}
