// Package ingest implements the tabular ingestion pipeline: loading raw
// catalog files into a ragged cell matrix, locating the header row, mapping
// columns to canonical product fields and filtering noise rows/columns.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"supplier-import-service/internal/models"
)

// DefaultDelimiter is used for delimited text files when the caller does not
// specify one.
const DefaultDelimiter = ';'

// ParseCSV parses delimited text into a ragged cell matrix. Rows keep their
// original length; no padding is applied.
func ParseCSV(r io.Reader, delimiter rune) ([][]string, error) {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", len(rows)+1, err)
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// ParseXLSX parses the first sheet of an Excel workbook into a ragged cell
// matrix.
func ParseXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	for _, row := range rows {
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
	}
	return rows, nil
}

// ParseFile dispatches on the filename extension and returns the parsed
// matrix together with the detected source type.
func ParseFile(filename string, r io.Reader, delimiter rune) ([][]string, models.SourceType, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		rows, err := ParseXLSX(r)
		return rows, models.SourceTypeXLSX, err
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".txt"), strings.HasSuffix(lower, ".tsv"):
		if strings.HasSuffix(lower, ".tsv") && delimiter == 0 {
			delimiter = '\t'
		}
		rows, err := ParseCSV(r, delimiter)
		return rows, models.SourceTypeCSV, err
	default:
		return nil, "", fmt.Errorf("unsupported file format: %s", filename)
	}
}
