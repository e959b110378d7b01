package ingest

import "strings"

const (
	// headerScanLimit caps how deep into the file the detector looks.
	headerScanLimit = 20
	// headerMinCells is the minimum non-empty cell count for a row to be
	// considered a header candidate at all.
	headerMinCells = 5
	// headerMinKeywords is the keyword hit count required to accept a row.
	headerMinKeywords = 3
)

// headerKeywords is the vocabulary of column-label words suppliers actually
// use, French first since that is the catalogs' working language.
var headerKeywords = []string{
	"prix", "price",
	"ref", "reference",
	"code",
	"ean", "gencod",
	"produit", "product", "article", "designation", "libelle", "nom",
	"marque", "brand",
	"description",
	"stock",
	"quantite", "quantity", "qte",
	"categorie", "category", "famille",
}

// DetectHeaderRow scans at most the first 20 rows and returns the index of
// the most likely header row. A row qualifies when it has at least 5
// non-empty cells, matches at least 3 vocabulary keywords, and the row
// after it holds data. First qualifying row wins; with no match the header
// defaults to row 0.
func DetectHeaderRow(rows [][]string) int {
	limit := len(rows)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}

	for i := 0; i < limit; i++ {
		if nonEmptyCount(rows[i]) < headerMinCells {
			continue
		}
		if keywordHits(rows[i]) < headerMinKeywords {
			continue
		}
		// A header-looking row at the bottom of a title block is only a
		// header if data follows it.
		if i+1 >= len(rows) || nonEmptyCount(rows[i+1]) == 0 {
			continue
		}
		return i
	}
	return 0
}

// LooksLikeHeader is the secondary heuristic behind the "my file has a
// header row" toggle: does the row contain any typical field-name token?
// Files whose first row fails this check are treated as headerless data.
func LooksLikeHeader(row []string) bool {
	return keywordHits(row) > 0
}

func nonEmptyCount(row []string) int {
	count := 0
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			count++
		}
	}
	return count
}

func keywordHits(row []string) int {
	joined := strings.ToLower(strings.Join(row, " "))
	hits := 0
	for _, keyword := range headerKeywords {
		if strings.Contains(joined, keyword) {
			hits++
		}
	}
	return hits
}
