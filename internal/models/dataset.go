package models

// SourceType represents the file format a catalog was uploaded in
type SourceType string

const (
	SourceTypeCSV  SourceType = "csv"
	SourceTypeXLSX SourceType = "xlsx"
)

// RawDataset is the rectangularized content of an uploaded catalog file.
// Rows may be ragged: a row shorter than the header simply has no value for
// the trailing columns.
type RawDataset struct {
	Rows [][]string `json:"rows"`
}

// CellAt returns the cell at (row, col), or "" when the coordinates fall
// outside the ragged matrix.
func (d *RawDataset) CellAt(row, col int) string {
	if row < 0 || row >= len(d.Rows) {
		return ""
	}
	if col < 0 || col >= len(d.Rows[row]) {
		return ""
	}
	return d.Rows[row][col]
}

// RowCount returns the number of rows in the dataset.
func (d *RawDataset) RowCount() int {
	return len(d.Rows)
}
