// Package reader decodes uploaded or stored files into raw tables.
//
// Cells are kept as text exactly as they appear in the file, with empty cells
// turned into nil. Type coercion is left to the normalization stage.
package reader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/ledger-lake/internal/table"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrEmptyFile is returned when a file has no header row.
	ErrEmptyFile = errors.New("file has no header row")

	// ErrUnsupportedFormat is returned for extensions Read cannot decode.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Read decodes data according to the extension of name.
// Supported: .csv and .txt (delimited text), .xlsx and .xlsm (first sheet).
func Read(name string, data []byte) (*table.Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return ReadCSV(data)
	case ".xlsx", ".xlsm":
		return ReadXLSX(data)
	default:
		return nil, fmt.Errorf("Read: %w: %q", ErrUnsupportedFormat, name)
	}
}

// ReadCSV decodes delimited text. UTF-8 is tried first; input that is not
// valid UTF-8 is decoded as Latin-1. The delimiter is ',' unless the header
// line contains more ';' or tab characters.
func ReadCSV(data []byte) (*table.Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("ReadCSV: decoding latin-1: %w", err)
		}
		data = decoded
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("ReadCSV: %w", ErrEmptyFile)
	}
	if err != nil {
		return nil, fmt.Errorf("ReadCSV: reading header: %w", err)
	}

	var rows [][]any
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadCSV: reading records: %w", err)
		}
		rows = append(rows, cells(record))
	}

	return table.New(headerNames(header), rows), nil
}

// ReadXLSX decodes the first worksheet of an Excel workbook. Cell values are
// taken as displayed, so number and date formats of the workbook apply.
func ReadXLSX(data []byte) (*table.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ReadXLSX: opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("ReadXLSX: %w", ErrEmptyFile)
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("ReadXLSX: reading sheet %q: %w", sheets[0], err)
	}

	// leading blank rows are common above the header
	for len(records) > 0 && blank(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ReadXLSX: %w", ErrEmptyFile)
	}

	rows := make([][]any, 0, len(records)-1)
	for _, record := range records[1:] {
		if blank(record) {
			continue
		}
		rows = append(rows, cells(record))
	}

	return table.New(headerNames(records[0]), rows), nil
}

// headerNames trims header cells, names blank ones "Unnamed: i" and suffixes
// repeats with ".1", ".2", ... so every column stays addressable.
func headerNames(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		base := name
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s.%d", base, n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func cells(record []string) []any {
	row := make([]any, len(record))
	for i, v := range record {
		if strings.TrimSpace(v) != "" {
			row[i] = v
		}
	}
	return row
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
