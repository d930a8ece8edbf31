package table

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNew_PadsTruncatesAndDropsDuplicateColumns(t *testing.T) {
	tbl := New([]string{"a", "b", "a"}, [][]any{
		{1, "x", 9},
		{2},
		{3, "y", 8, "extra"},
	})

	if diff := cmp.Diff([]string{"a", "b"}, tbl.Columns()); diff != "" {
		t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
	}
	if tbl.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", tbl.Len())
	}
	if diff := cmp.Diff([]any{2, nil}, tbl.Row(1)); diff != "" {
		t.Errorf("Row(1) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{3, "y"}, tbl.Row(2)); diff != "" {
		t.Errorf("Row(2) mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_CopiesInput(t *testing.T) {
	rows := [][]any{{"a"}}
	tbl := New([]string{"c"}, rows)
	rows[0][0] = "mutated"

	if v, _ := tbl.Value(0, "c"); v != "a" {
		t.Errorf("Value = %v, want a (input slice must be copied)", v)
	}
}

func TestRename(t *testing.T) {
	tests := []struct {
		name        string
		columns     []string
		mapping     map[string]string
		wantColumns []string
		wantRow     []any
	}{
		{
			name:        "simple rename keeps position",
			columns:     []string{"Fecha", "Cliente", "extra"},
			mapping:     map[string]string{"Fecha": "date", "Cliente": "partner"},
			wantColumns: []string{"date", "partner", "extra"},
			wantRow:     []any{"v0", "v1", "v2"},
		},
		{
			name:        "identity mapping is a no-op",
			columns:     []string{"date", "partner"},
			mapping:     map[string]string{"date": "date"},
			wantColumns: []string{"date", "partner"},
			wantRow:     []any{"v0", "v1"},
		},
		{
			name:        "renamed column replaces unmapped column with same name",
			columns:     []string{"date", "Fecha"},
			mapping:     map[string]string{"Fecha": "date"},
			wantColumns: []string{"date"},
			wantRow:     []any{"v1"},
		},
		{
			name:        "leftmost wins when two columns map to one name",
			columns:     []string{"A", "B"},
			mapping:     map[string]string{"A": "amount", "B": "amount"},
			wantColumns: []string{"amount"},
			wantRow:     []any{"v0"},
		},
		{
			name:        "mapping for absent column is ignored",
			columns:     []string{"x"},
			mapping:     map[string]string{"missing": "date"},
			wantColumns: []string{"x"},
			wantRow:     []any{"v0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := make([]any, len(tt.columns))
			for i := range row {
				row[i] = "v" + string(rune('0'+i))
			}
			got := New(tt.columns, [][]any{row}).Rename(tt.mapping)

			if diff := cmp.Diff(tt.wantColumns, got.Columns()); diff != "" {
				t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantRow, got.Row(0)); diff != "" {
				t.Errorf("Row(0) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMapColumn_DoesNotMutateReceiver(t *testing.T) {
	orig := New([]string{"n"}, [][]any{{1}, {2}})
	doubled := orig.MapColumn("n", func(v any) any { return v.(int) * 2 })

	if v, _ := orig.Value(1, "n"); v != 2 {
		t.Errorf("original mutated: got %v, want 2", v)
	}
	if v, _ := doubled.Value(1, "n"); v != 4 {
		t.Errorf("mapped value = %v, want 4", v)
	}
	if same := orig.MapColumn("missing", nil); same != orig {
		t.Error("MapColumn on missing column should return the receiver")
	}
}

func TestWithConstant(t *testing.T) {
	tbl := New([]string{"a"}, [][]any{{1}, {2}})

	appended := tbl.WithConstant("src", "f.csv")
	if diff := cmp.Diff([]string{"a", "src"}, appended.Columns()); diff != "" {
		t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
	}
	col, _ := appended.Column("src")
	if diff := cmp.Diff([]any{"f.csv", "f.csv"}, col); diff != "" {
		t.Errorf("src column mismatch (-want +got):\n%s", diff)
	}

	overwritten := appended.WithConstant("a", 0)
	col, _ = overwritten.Column("a")
	if diff := cmp.Diff([]any{0, 0}, col); diff != "" {
		t.Errorf("overwritten column mismatch (-want +got):\n%s", diff)
	}
	if tbl.Has("src") {
		t.Error("WithConstant mutated the receiver")
	}
}

func TestSelectAndConcat(t *testing.T) {
	a := New([]string{"x", "y"}, [][]any{{1, "a"}, {2, "b"}})
	b := New([]string{"y", "z"}, [][]any{{"c", true}})

	got := Concat([]string{"x", "y"}, a, nil, b)

	if got.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", got.Len())
	}
	want := [][]any{{1, "a"}, {2, "b"}, {nil, "c"}}
	for i := range want {
		if diff := cmp.Diff(want[i], got.Row(i)); diff != "" {
			t.Errorf("Row(%d) mismatch (-want +got):\n%s", i, diff)
		}
	}

	empty := Concat([]string{"x", "y"})
	if empty.Len() != 0 || len(empty.Columns()) != 2 {
		t.Errorf("Concat() of nothing = %d rows, %v; want 0 rows with 2 columns", empty.Len(), empty.Columns())
	}
}

func TestValueOutOfRange(t *testing.T) {
	tbl := New([]string{"a"}, [][]any{{1}})
	if _, ok := tbl.Value(5, "a"); ok {
		t.Error("Value(5) should report false")
	}
	if _, ok := tbl.Value(0, "b"); ok {
		t.Error("Value on missing column should report false")
	}
}
