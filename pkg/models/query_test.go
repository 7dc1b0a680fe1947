package models

import "testing"

func TestQueryResultPreviewKeepsColumnOrder(t *testing.T) {
	r := &QueryResult{
		Columns: []string{"name", "revenue"},
		Rows: []map[string]any{
			{"name": "a", "revenue": 3.0},
			{"name": "b", "revenue": 2.0},
			{"name": "c", "revenue": 1.0},
		},
		RowCount: 3,
	}
	p := r.Preview(2)
	if len(p.Rows) != 2 || p.Omitted != 1 {
		t.Fatalf("Preview(2) rows = %d omitted = %d, want 2 and 1", len(p.Rows), p.Omitted)
	}
	if p.Rows[1][0] != "b" || p.Rows[1][1] != 2.0 {
		t.Fatalf("Preview(2) row 1 = %v, want [b 2]", p.Rows[1])
	}
	if all := r.Preview(-1); len(all.Rows) != 3 || all.Omitted != 0 {
		t.Fatalf("Preview(-1) rows = %d omitted = %d, want 3 and 0", len(all.Rows), all.Omitted)
	}
}

func TestParseChartKind(t *testing.T) {
	tests := []struct {
		in   string
		want ChartKind
		ok   bool
	}{
		{"bar", ChartBar, true},
		{" Line ", ChartLine, true},
		{"polarArea", ChartPolarArea, true},
		{"polar_area", ChartPolarArea, true},
		{"doughnut", ChartDoughnut, true},
		{"treemap", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseChartKind(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Fatalf("ParseChartKind(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestQueryPreviewTable(t *testing.T) {
	r := &QueryResult{
		Columns:   []string{"name", "notes"},
		Rows:      []map[string]any{{"name": "a|b", "notes": nil}, {"name": "c", "notes": "x"}},
		RowCount:  2,
		Truncated: true,
	}
	want := "| name | notes |\n| --- | --- |\n| a\\|b | NULL |\n(2 rows, 1 not shown, truncated at the row limit)"
	if got := r.Preview(1).Table(); got != want {
		t.Fatalf("Table() = %q, want %q", got, want)
	}
}
