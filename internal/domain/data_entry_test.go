package domain

import (
	"reflect"
	"testing"
)

func TestMergeDataEntryAppendingFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing map[string]any
		incoming map[string]any
		want     any
	}{
		{
			name:     "strings are joined with a blank line",
			existing: map[string]any{"notes": "A"},
			incoming: map[string]any{"notes": "B"},
			want:     "A\n\nB",
		},
		{
			name:     "lists are unioned without duplicates",
			existing: map[string]any{"notes": []any{"x"}},
			incoming: map[string]any{"notes": []any{"x", "y"}},
			want:     []any{"x", "y"},
		},
		{
			name:     "absent value is prefixed with reporter",
			existing: map[string]any{"notes": nil},
			incoming: map[string]any{"notes": "hello"},
			want:     "[Jane] hello",
		},
		{
			name:     "missing key is prefixed with reporter",
			existing: map[string]any{},
			incoming: map[string]any{"notes": "hello"},
			want:     "[Jane] hello",
		},
		{
			name:     "nil keeps earlier contributions",
			existing: map[string]any{"notes": "[Jane] A\n\nB"},
			incoming: map[string]any{"notes": nil},
			want:     "[Jane] A\n\nB",
		},
		{
			name:     "string lists mix with generic lists",
			existing: map[string]any{"notes": []string{"x"}},
			incoming: map[string]any{"notes": []any{"y", "x"}},
			want:     []any{"x", "y"},
		},
		{
			name:     "mismatched types overwrite",
			existing: map[string]any{"notes": "A"},
			incoming: map[string]any{"notes": []any{"B"}},
			want:     []any{"B"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			merged := MergeDataEntry(tt.existing, tt.incoming, []string{"notes"}, "Jane")
			if !reflect.DeepEqual(merged["notes"], tt.want) {
				t.Fatalf("notes = %#v, want %#v", merged["notes"], tt.want)
			}
		})
	}
}

func TestMergeDataEntryOverwritesOtherFields(t *testing.T) {
	t.Parallel()

	existing := map[string]any{"mrn": "123", "kept": true}
	merged := MergeDataEntry(existing, map[string]any{"mrn": "456"}, []string{"notes"}, "Jane")

	if merged["mrn"] != "456" {
		t.Fatalf("mrn = %v, want 456", merged["mrn"])
	}
	if merged["kept"] != true {
		t.Fatalf("kept = %v, want true", merged["kept"])
	}
	if existing["mrn"] != "123" {
		t.Fatalf("existing map was modified: mrn = %v", existing["mrn"])
	}
}
