package ingest

import (
	"regexp"
	"strings"

	"supplier-import-service/internal/models"
)

// FilterStats reports how aggressively a filter config cuts a dataset.
// TotalRows counts rows after the header, before any filtering, so the
// caller can surface "<n>% of rows ignored" to the user.
type FilterStats struct {
	TotalRows    int `json:"totalRows"`
	IgnoredRows  int `json:"ignoredRows"`
	FilteredRows int `json:"filteredRows"`
}

// CompileSkipPatterns turns simple wildcard strings into case-insensitive
// regexes: `*` becomes `.*`, every other character is matched literally.
// Invalid results are skipped rather than failing the whole filter.
func CompileSkipPatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		expr := strings.ReplaceAll(regexp.QuoteMeta(strings.ToLower(pattern)), `\*`, `.*`)
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

// FilteredRows applies the row filter pipeline in order: drop everything up
// to and including the header row, drop SkipRowsTop rows from the front of
// the remainder, SkipRowsBottom from the back, then drop any row whose
// joined lower-cased text matches a skip pattern. The input is never
// mutated; calling twice with the same arguments yields identical output.
func FilteredRows(rows [][]string, headerRowIndex int, cfg models.FilterConfig) [][]string {
	data := dataRows(rows, headerRowIndex, cfg)

	patterns := CompileSkipPatterns(cfg.SkipPatterns)
	if len(patterns) == 0 {
		out := make([][]string, len(data))
		copy(out, data)
		return out
	}

	out := make([][]string, 0, len(data))
	for _, row := range data {
		if matchesAny(row, patterns) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Stats recomputes the filter metrics for the current config. IgnoredRows
// covers the top/bottom skips and pattern hits combined; the header-row cut
// is not counted against the user's filter.
func Stats(rows [][]string, headerRowIndex int, cfg models.FilterConfig) FilterStats {
	total := len(rows) - headerRowIndex - 1
	if total < 0 {
		total = 0
	}
	filtered := len(FilteredRows(rows, headerRowIndex, cfg))
	return FilterStats{
		TotalRows:    total,
		IgnoredRows:  total - filtered,
		FilteredRows: filtered,
	}
}

// DetectedColumns returns the header labels that survive column exclusion,
// preserving source order.
func DetectedColumns(headers []string, cfg models.FilterConfig) []string {
	out := make([]string, 0, len(headers))
	for _, label := range headers {
		if cfg.IsColumnExcluded(label) {
			continue
		}
		out = append(out, label)
	}
	return out
}

// IncludedColumnIndexes returns the source indexes of the non-excluded
// columns.
func IncludedColumnIndexes(headers []string, cfg models.FilterConfig) []int {
	out := make([]int, 0, len(headers))
	for i, label := range headers {
		if cfg.IsColumnExcluded(label) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// ProjectRows projects every row onto the given column indexes, substituting
// "" for cells a ragged row does not have.
func ProjectRows(rows [][]string, indexes []int) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		projected := make([]string, len(indexes))
		for j, idx := range indexes {
			if idx < len(row) {
				projected[j] = row[idx]
			}
		}
		out[i] = projected
	}
	return out
}

func dataRows(rows [][]string, headerRowIndex int, cfg models.FilterConfig) [][]string {
	start := headerRowIndex + 1
	if start < 0 {
		start = 0
	}
	if start > len(rows) {
		return nil
	}
	data := rows[start:]

	top := cfg.SkipRowsTop
	if top < 0 {
		top = 0
	}
	if top > len(data) {
		top = len(data)
	}
	data = data[top:]

	bottom := cfg.SkipRowsBottom
	if bottom < 0 {
		bottom = 0
	}
	if bottom > len(data) {
		bottom = len(data)
	}
	return data[:len(data)-bottom]
}

func matchesAny(row []string, patterns []*regexp.Regexp) bool {
	joined := strings.ToLower(strings.Join(row, " "))
	for _, re := range patterns {
		if re.MatchString(joined) {
			return true
		}
	}
	return false
}
