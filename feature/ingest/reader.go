package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"card-inventory/core/apperr"

	"github.com/xuri/excelize/v2"
)

// File formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// DetectFormat returns the format of a file from its name.
func DetectFormat(fileName string) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", apperr.Validationf("unsupported file type %q, want .csv or .xlsx", filepath.Ext(fileName))
}

// table is a parsed file: its header and data rows. broken holds the parse
// error of data rows that could not be read, keyed by their index in rows.
type table struct {
	header []string
	rows   [][]string
	broken map[int]string
}

// readHeader returns the first row of the file.
func readHeader(format string, content []byte) ([]string, error) {
	switch format {
	case FormatCSV:
		r := newCSVReader(content)
		header, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("file is empty")
		}
		return header, err
	case FormatXLSX:
		t, err := readXLSX(content)
		if err != nil {
			return nil, err
		}
		return t.header, nil
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// readTable parses the whole file.
func readTable(format string, content []byte) (*table, error) {
	switch format {
	case FormatCSV:
		return readCSV(content)
	case FormatXLSX:
		return readXLSX(content)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// readCSV reads records one at a time so a malformed line only costs that row.
func readCSV(content []byte) (*table, error) {
	r := newCSVReader(content)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("file is empty")
	}
	if err != nil {
		return nil, err
	}

	t := &table{header: header, broken: map[int]string{}}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			t.broken[len(t.rows)] = "malformed row: " + perr.Err.Error()
			t.rows = append(t.rows, nil)
			continue
		}
		if err != nil {
			return nil, err
		}
		t.rows = append(t.rows, record)
	}
	for len(t.rows) > 0 {
		last := len(t.rows) - 1
		if _, ok := t.broken[last]; ok || !blank(t.rows[last]) {
			break
		}
		t.rows = t.rows[:last]
	}
	return t, nil
}

func newCSVReader(content []byte) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r
}

// readXLSX reads the first sheet of a workbook.
func readXLSX(content []byte) (*table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}
	return &table{header: rows[0], rows: dropBlank(rows[1:])}, nil
}

// dropBlank removes trailing rows with no content.
func dropBlank(rows [][]string) [][]string {
	for len(rows) > 0 && blank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
