package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kursadbilgin/import-engine/internal/domain"
)

// Option keys read from BatchDataTypeOptions for dsv batches.
const (
	dsvOptionDelimiter   = "delimiter"
	dsvOptionHasHeader   = "hasHeaderRow"
	dsvOptionColumnNames = "columnNames"
)

type dsvOptions struct {
	delimiter   rune
	hasHeader   bool
	columnNames []string
}

func parseDsvOptions(options map[string]any) (dsvOptions, error) {
	opts := dsvOptions{delimiter: ',', hasHeader: true}

	if raw, ok := options[dsvOptionDelimiter]; ok && raw != nil {
		value, ok := raw.(string)
		if !ok {
			return opts, fmt.Errorf("%w: dsv delimiter must be a string", domain.ErrValidation)
		}
		if value == `\t` {
			value = "\t"
		}
		if utf8.RuneCountInString(value) != 1 {
			return opts, fmt.Errorf("%w: dsv delimiter must be a single character", domain.ErrValidation)
		}
		opts.delimiter, _ = utf8.DecodeRuneInString(value)
	}

	if raw, ok := options[dsvOptionHasHeader]; ok && raw != nil {
		value, ok := raw.(bool)
		if !ok {
			return opts, fmt.Errorf("%w: dsv hasHeaderRow must be a boolean", domain.ErrValidation)
		}
		opts.hasHeader = value
	}

	if raw, ok := options[dsvOptionColumnNames]; ok && raw != nil {
		names, ok := toStringSlice(raw)
		if !ok {
			return opts, fmt.Errorf("%w: dsv columnNames must be a list of strings", domain.ErrValidation)
		}
		opts.columnNames = names
	}

	return opts, nil
}

// parseDsvRows splits delimiter-separated data into one field map per data row.
// Column names come from the header row, then columnNames, then column position.
func parseDsvRows(data []byte, options map[string]any) ([]map[string]any, error) {
	opts, err := parseDsvOptions(options)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	reader.Comma = opts.delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var header []string
	rows := make([]map[string]any, 0)
	for line := 0; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed dsv data: %v", domain.ErrValidation, err)
		}

		if line == 0 && opts.hasHeader {
			header = make([]string, len(fields))
			for i, name := range fields {
				header[i] = strings.TrimSpace(name)
			}
			continue
		}
		if isBlankRow(fields) {
			continue
		}

		row := make(map[string]any, len(fields))
		for i, value := range fields {
			row[columnName(i, header, opts.columnNames)] = value
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func columnName(i int, header, configured []string) string {
	if i < len(header) && header[i] != "" {
		return header[i]
	}
	if i < len(configured) && strings.TrimSpace(configured[i]) != "" {
		return strings.TrimSpace(configured[i])
	}
	return fmt.Sprintf("column%d", i+1)
}

func isBlankRow(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func toStringSlice(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
