package service

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kursadbilgin/import-engine/internal/domain"
)

func TestParseDsvRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		options map[string]any
		want    []map[string]any
	}{
		{
			name: "header row with default delimiter",
			data: "mrn,name\n1001,Ada\n1002,Grace\n",
			want: []map[string]any{
				{"mrn": "1001", "name": "Ada"},
				{"mrn": "1002", "name": "Grace"},
			},
		},
		{
			name:    "tab delimiter written as escape",
			data:    "mrn\tname\n1001\tAda\n",
			options: map[string]any{"delimiter": `\t`},
			want:    []map[string]any{{"mrn": "1001", "name": "Ada"}},
		},
		{
			name:    "configured column names without header",
			data:    "1001|Ada|extra\n",
			options: map[string]any{"delimiter": "|", "hasHeaderRow": false, "columnNames": []any{"mrn", "name"}},
			want:    []map[string]any{{"mrn": "1001", "name": "Ada", "column3": "extra"}},
		},
		{
			name: "byte order mark and blank rows",
			data: "\xef\xbb\xbfmrn,name\n1001,Ada\n,\n\n1002,Grace\n",
			want: []map[string]any{
				{"mrn": "1001", "name": "Ada"},
				{"mrn": "1002", "name": "Grace"},
			},
		},
		{
			name: "header only",
			data: "mrn,name\n",
			want: []map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseDsvRows([]byte(tt.data), tt.options)
			if err != nil {
				t.Fatalf("parseDsvRows() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("parseDsvRows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseDsvRowsRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		options map[string]any
	}{
		{name: "multi character delimiter", data: "a,b\n", options: map[string]any{"delimiter": "::"}},
		{name: "non string delimiter", data: "a,b\n", options: map[string]any{"delimiter": 9}},
		{name: "non boolean header flag", data: "a,b\n", options: map[string]any{"hasHeaderRow": "yes"}},
		{name: "bad column names", data: "a,b\n", options: map[string]any{"columnNames": []any{"a", 2}}},
		{name: "unterminated quote", data: "a,b\n\"1,2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseDsvRows([]byte(tt.data), tt.options)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("parseDsvRows() error = %v, want ErrValidation", err)
			}
		})
	}
}
