// Package table provides the immutable in-memory table every ingestion stage
// reads and produces.
//
// A Table has an ordered list of unique column names and rows of dynamically
// typed cells. Cells hold nil (missing), string, bool, any Go integer or float
// kind, civil.Date or time.Time. Methods never modify the receiver; anything
// that changes shape or content returns a new Table.
package table

// Table is an ordered, column-named set of rows.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New builds a table from column names and row values. Rows shorter than the
// column list are padded with nil and longer rows are truncated. When a column
// name repeats, the first occurrence wins and later ones are dropped.
// The inputs are copied.
func New(columns []string, rows [][]any) *Table {
	keep := make([]int, 0, len(columns))
	t := &Table{index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if _, dup := t.index[c]; dup {
			continue
		}
		t.index[c] = len(t.columns)
		t.columns = append(t.columns, c)
		keep = append(keep, i)
	}

	t.rows = make([][]any, len(rows))
	for r, src := range rows {
		row := make([]any, len(keep))
		for j, i := range keep {
			if i < len(src) {
				row[j] = src[i]
			}
		}
		t.rows[r] = row
	}
	return t
}

// Empty returns a table with the given columns and no rows.
func Empty(columns ...string) *Table {
	return New(columns, nil)
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Has reports whether the table has a column with the given name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column's values.
func (t *Table) Column(name string) ([]any, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	out := make([]any, len(t.rows))
	for r, row := range t.rows {
		out[r] = row[i]
	}
	return out, true
}

// Value returns the cell at row r in the named column. The second result is
// false when the column does not exist or r is out of range.
func (t *Table) Value(r int, name string) (any, bool) {
	i, ok := t.index[name]
	if !ok || r < 0 || r >= len(t.rows) {
		return nil, false
	}
	return t.rows[r][i], true
}

// Row returns a copy of row r in column order.
func (t *Table) Row(r int) []any {
	out := make([]any, len(t.columns))
	copy(out, t.rows[r])
	return out
}

// Rename returns a table whose columns are renamed through mapping. Columns
// absent from mapping keep their name. If a renamed column lands on a name that
// an unmapped column already uses, the renamed column wins. If several columns
// are renamed to the same name, the leftmost one wins.
func (t *Table) Rename(mapping map[string]string) *Table {
	renamed := make(map[string]bool, len(mapping))
	for _, c := range t.columns {
		if to, ok := mapping[c]; ok {
			renamed[to] = true
		}
	}

	names := make([]string, 0, len(t.columns))
	picks := make([]int, 0, len(t.columns))
	seen := make(map[string]bool, len(t.columns))
	for i, c := range t.columns {
		name, mapped := mapping[c]
		if !mapped {
			name = c
			if renamed[name] {
				continue
			}
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
		picks = append(picks, i)
	}
	return t.project(names, picks)
}

// MapColumn returns a table where every value of the named column has been
// replaced by fn(value). If the column does not exist the table is returned
// unchanged.
func (t *Table) MapColumn(name string, fn func(any) any) *Table {
	i, ok := t.index[name]
	if !ok {
		return t
	}
	out := t.clone()
	for _, row := range out.rows {
		row[i] = fn(row[i])
	}
	return out
}

// WithConstant returns a table with the named column set to v on every row.
// An existing column of that name is overwritten in place; otherwise the
// column is appended.
func (t *Table) WithConstant(name string, v any) *Table {
	if _, ok := t.index[name]; ok {
		return t.MapColumn(name, func(any) any { return v })
	}

	columns := append(t.Columns(), name)
	rows := make([][]any, len(t.rows))
	for r, row := range t.rows {
		next := make([]any, len(row)+1)
		copy(next, row)
		next[len(row)] = v
		rows[r] = next
	}
	return New(columns, rows)
}

// Select returns a table restricted to the given columns in the given order.
// Columns the receiver lacks are created and filled with nil.
func (t *Table) Select(columns ...string) *Table {
	picks := make([]int, len(columns))
	for j, c := range columns {
		if i, ok := t.index[c]; ok {
			picks[j] = i
		} else {
			picks[j] = -1
		}
	}
	return t.project(columns, picks)
}

// Concat stacks the tables vertically after selecting columns from each one.
// Table order and row order are preserved. No deduplication is performed.
func Concat(columns []string, tables ...*Table) *Table {
	var rows [][]any
	for _, t := range tables {
		if t == nil {
			continue
		}
		rows = append(rows, t.Select(columns...).rows...)
	}
	return New(columns, rows)
}

func (t *Table) project(names []string, picks []int) *Table {
	rows := make([][]any, len(t.rows))
	for r, src := range t.rows {
		row := make([]any, len(picks))
		for j, i := range picks {
			if i >= 0 {
				row[j] = src[i]
			}
		}
		rows[r] = row
	}
	return New(names, rows)
}

func (t *Table) clone() *Table {
	rows := make([][]any, len(t.rows))
	for r, row := range t.rows {
		rows[r] = append([]any(nil), row...)
	}
	return New(t.columns, rows)
}
