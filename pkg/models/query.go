package models

import (
	"fmt"
	"strings"
	"time"
)

// SQLArtifact is one read-only statement proposed by the model.
type SQLArtifact struct {
	Statement string `json:"statement"`
	// TurnIndex is the position of the producing model message in the conversation.
	TurnIndex int `json:"turn_index"`
	// ToolCallID is set when the statement arrived through a native tool call.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// QueryResult is the tabular outcome of executing a SQLArtifact.
// It is never modified after the executor returns it.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
	Statement string           `json:"statement"`
	Duration  time.Duration    `json:"duration_ns"`
}

// QueryPreview is the compact, column-ordered view of a result shown to the model.
type QueryPreview struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
	Omitted   int      `json:"omitted_rows,omitempty"`
}

// Preview returns at most n rows in column order.
func (r *QueryResult) Preview(n int) QueryPreview {
	p := QueryPreview{Columns: r.Columns, RowCount: r.RowCount, Truncated: r.Truncated, Rows: [][]any{}}
	if n < 0 || n > len(r.Rows) {
		n = len(r.Rows)
	}
	for _, row := range r.Rows[:n] {
		vals := make([]any, len(r.Columns))
		for i, col := range r.Columns {
			vals[i] = row[col]
		}
		p.Rows = append(p.Rows, vals)
	}
	p.Omitted = len(r.Rows) - n
	return p
}

// Column returns the values of one column in row order.
func (r *QueryResult) Column(name string) ([]any, bool) {
	if !r.HasColumn(name) {
		return nil, false
	}
	out := make([]any, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row[name]
	}
	return out, true
}

func (r *QueryResult) HasColumn(name string) bool {
	for _, c := range r.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Table renders the preview as a pipe table followed by a row-count note.
func (p QueryPreview) Table() string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(p.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(p.Columns)) + "\n")
	for _, row := range p.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = strings.ReplaceAll(fmt.Sprint(v), "|", "\\|")
			}
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	fmt.Fprintf(&b, "(%d rows", p.RowCount)
	if p.Omitted > 0 {
		fmt.Fprintf(&b, ", %d not shown", p.Omitted)
	}
	if p.Truncated {
		b.WriteString(", truncated at the row limit")
	}
	b.WriteString(")")
	return b.String()
}
