package chart

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/choraleia/analyst/pkg/models"
)

func revenueResult() *models.QueryResult {
	rows := []map[string]any{
		{"product_name": "Chai", "revenue": 12788.1},
		{"product_name": "Côte de Blaye", "revenue": 141396.7},
		{"product_name": "Tofu", "revenue": "7991.5"},
		{"product_name": "Ikura", "revenue": int64(20867)},
		{"product_name": "Konbu", "revenue": nil},
	}
	return &models.QueryResult{Columns: []string{"product_name", "revenue"}, Rows: rows, RowCount: len(rows)}
}

func TestProcess_ColumnReferences(t *testing.T) {
	text := "Here is the chart:\n```chart\n{\"type\":\"bar\",\"title\":\"Top products\",\"label_column\":\"product_name\",\"value_columns\":[\"revenue\"]}\n```"
	spec, err := NewProcessor().Process(text, revenueResult())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if spec.Kind != models.ChartBar || spec.Title != "Top products" || spec.Source != models.ChartSourceModel {
		t.Fatalf("Process() = %+v", spec)
	}
	if len(spec.Labels) != 5 || len(spec.Datasets) != 1 || len(spec.Datasets[0].Data) != 5 {
		t.Fatalf("Process() labels = %v datasets = %v", spec.Labels, spec.Datasets)
	}
	if spec.Datasets[0].Data[2] != 7991.5 || spec.Datasets[0].Data[4] != 0 {
		t.Fatalf("dataset values = %v, want string and NULL values converted", spec.Datasets[0].Data)
	}
	if !spec.MarkersComputed || spec.Primary == nil || *spec.Primary != 1 || spec.Secondary == nil || *spec.Secondary != 3 {
		t.Fatalf("markers = %v/%v computed = %v, want 1/3 computed", spec.Primary, spec.Secondary, spec.MarkersComputed)
	}
}

func TestProcess_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		kind      models.ChartKind
		labels    int
		datasets  int
		title     string
		primary   int
		relevancy string
	}{
		{
			name:     "literal",
			text:     `{"type":"pie","labels":["a","b","c"],"datasets":[{"label":"share","data":[1,5,2]}]}`,
			kind:     models.ChartPie,
			labels:   3,
			datasets: 1,
			primary:  1,
		},
		{
			name:     "chartjs",
			text:     "```json\n{\"type\":\"line\",\"data\":{\"labels\":[1996,1997,1998],\"datasets\":[{\"label\":\"orders\",\"data\":[152,408,270]},{\"label\":\"returns\",\"data\":[1,2,3]}]},\"options\":{\"plugins\":{\"title\":{\"text\":\"Orders per year\"}}}}\n```",
			kind:     models.ChartLine,
			labels:   3,
			datasets: 2,
			title:    "Orders per year",
			primary:  1,
		},
		{
			name:      "wrapped list",
			text:      `[{"relevancy":"secondary","chart_config":{"type":"bar","labels":["x"],"datasets":[{"data":[1]}]}},{"relevancy":"main","user_input":"q","chart_config":{"type":"polarArea","labels":["a","b"],"datasets":[{"data":[3,4]}]}}]`,
			kind:      models.ChartPolarArea,
			labels:    2,
			datasets:  1,
			primary:   1,
			relevancy: "main",
		},
		{
			name:     "datasets_data",
			text:     `<chart>{"chart_type":"doughnut","labels":["a","b"],"datasets_labels":"count","datasets_data":[9,3]}</chart>`,
			kind:     models.ChartDoughnut,
			labels:   2,
			datasets: 1,
			primary:  0,
		},
		{
			name:     "dataset column",
			text:     `{"type":"bar","labels":["Chai","Côte de Blaye","Tofu","Ikura","Konbu"],"datasets":[{"column":"revenue"}]}`,
			kind:     models.ChartBar,
			labels:   5,
			datasets: 1,
			primary:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := NewProcessor().Process(tt.text, revenueResult())
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if spec.Kind != tt.kind {
				t.Fatalf("Kind = %q, want %q", spec.Kind, tt.kind)
			}
			if len(spec.Labels) != tt.labels || len(spec.Datasets) != tt.datasets {
				t.Fatalf("labels = %d datasets = %d, want %d and %d", len(spec.Labels), len(spec.Datasets), tt.labels, tt.datasets)
			}
			if tt.title != "" && spec.Title != tt.title {
				t.Fatalf("Title = %q, want %q", spec.Title, tt.title)
			}
			if spec.Primary == nil || *spec.Primary != tt.primary {
				t.Fatalf("Primary = %v, want %d", spec.Primary, tt.primary)
			}
			if tt.relevancy != "" && spec.Relevancy != tt.relevancy {
				t.Fatalf("Relevancy = %q, want %q", spec.Relevancy, tt.relevancy)
			}
		})
	}
}

func TestProcess_ChartJSNumericLabels(t *testing.T) {
	spec, err := NewProcessor().Process(`{"type":"line","labels":[1996,1997.5],"datasets":[{"data":[1,2]}]}`, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if spec.Labels[0] != "1996" || spec.Labels[1] != "1997.5" {
		t.Fatalf("Labels = %v, want [1996 1997.5]", spec.Labels)
	}
}

func TestProcess_ModelMarkers(t *testing.T) {
	text := `{"type":"bar","labels":["a","b","c"],"datasets":[{"data":[1,5,2]}],"primary":"c","secondary":0}`
	spec, err := NewProcessor().Process(text, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if *spec.Primary != 2 || *spec.Secondary != 0 || spec.MarkersComputed {
		t.Fatalf("markers = %d/%d computed = %v, want 2/0 from the model", *spec.Primary, *spec.Secondary, spec.MarkersComputed)
	}

	spec, err = NewProcessor().Process(`{"type":"bar","labels":["a","b","c"],"datasets":[{"data":[1,5,2]}],"primary":1}`, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if *spec.Primary != 1 || spec.Secondary == nil || *spec.Secondary != 2 || !spec.MarkersComputed {
		t.Fatalf("markers = %v/%v, want primary kept and secondary computed as 2", spec.Primary, spec.Secondary)
	}
}

func TestProcess_NoChart(t *testing.T) {
	for _, text := range []string{"", "The answer is 42.", "```sql\nSELECT 1\n```", "```json\n{\"count\": 1}\n```"} {
		spec, err := NewProcessor().Process(text, revenueResult())
		if spec != nil || err != nil {
			t.Fatalf("Process(%q) = %v, %v, want nil, nil", text, spec, err)
		}
	}
}

func TestProcess_Invalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"unknown kind", `{"type":"treemap","labels":["a"],"datasets":[{"data":[1]}]}`},
		{"missing kind", `{"labels":["a"],"datasets":[{"data":[1]}]}`},
		{"missing label column", `{"type":"bar","label_column":"category","value_columns":["revenue"]}`},
		{"missing value column", `{"type":"bar","label_column":"product_name","value_columns":["profit"]}`},
		{"non numeric column", `{"type":"bar","label_column":"revenue","value_columns":["product_name"]}`},
		{"length mismatch", `{"type":"bar","labels":["a","b"],"datasets":[{"data":[1,2,3]}]}`},
		{"non numeric data", `{"type":"bar","labels":["a"],"datasets":[{"data":["lots"]}]}`},
		{"no datasets", `{"type":"bar","labels":["a"]}`},
		{"no labels", `{"type":"bar","datasets":[{"data":[1]}]}`},
		{"marker out of range", `{"type":"bar","labels":["a","b"],"datasets":[{"data":[1,2]}],"primary":5}`},
		{"unknown marker label", `{"type":"bar","labels":["a","b"],"datasets":[{"data":[1,2]}],"secondary":"z"}`},
		{"same markers", `{"type":"bar","labels":["a","b"],"datasets":[{"data":[1,2]}],"primary":1,"secondary":"b"}`},
		{"unparseable", "```chart\n{\"type\": \"bar\", labels: oops\n```"},
		{"empty list", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := NewProcessor().Process(tt.text, revenueResult())
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Process() error = %v, want *ValidationError", err)
			}
			if spec != nil {
				t.Fatalf("Process() returned a spec alongside the error: %+v", spec)
			}
		})
	}
}

func TestProcess_ColumnsWithoutResult(t *testing.T) {
	_, err := NewProcessor().Process(`{"type":"bar","label_column":"a","value_columns":["b"]}`, nil)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Process() error = %v, want *ValidationError", err)
	}
}

func TestProcess_SalvagesBrokenJSON(t *testing.T) {
	text := "```json\n{\"type\": \"bar\", \"labels\": [\"Q1\", \"Q2\", \"Q3\"], \"datasets\": [{\"label\": \"sales\", \"data\": [10, 30, 20]}],}\n```"
	spec, err := NewProcessor().Process(text, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if spec.Kind != models.ChartBar || len(spec.Labels) != 3 || spec.Datasets[0].Data[1] != 30 {
		t.Fatalf("Process() = %+v", spec)
	}
}

func TestProcess_LengthMismatchNeverPartial(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nLabels := rapid.IntRange(1, 12).Draw(t, "labels")
		lengths := rapid.SliceOfN(rapid.IntRange(0, 12), 1, 4).Draw(t, "lengths")

		labels := make([]string, nLabels)
		for i := range labels {
			labels[i] = fmt.Sprintf("l%d", i)
		}
		mismatch := false
		datasets := make([]map[string]any, len(lengths))
		for i, n := range lengths {
			data := make([]float64, n)
			for j := range data {
				data[j] = float64(j)
			}
			datasets[i] = map[string]any{"label": fmt.Sprintf("d%d", i), "data": data}
			if n != nLabels {
				mismatch = true
			}
		}
		payload, _ := json.Marshal(map[string]any{"type": "bar", "labels": labels, "datasets": datasets})

		spec, err := NewProcessor().Process(string(payload), nil)
		if mismatch {
			var vErr *ValidationError
			if !errors.As(err, &vErr) || spec != nil {
				t.Fatalf("Process() = %v, %v, want nil and *ValidationError", spec, err)
			}
			return
		}
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		for _, ds := range spec.Datasets {
			if len(ds.Data) != len(spec.Labels) {
				t.Fatalf("dataset %q has %d values for %d labels", ds.Label, len(ds.Data), len(spec.Labels))
			}
		}
	})
}
