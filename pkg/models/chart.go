package models

import "strings"

type ChartKind string

const (
	ChartBar       ChartKind = "bar"
	ChartPie       ChartKind = "pie"
	ChartLine      ChartKind = "line"
	ChartScatter   ChartKind = "scatter"
	ChartDoughnut  ChartKind = "doughnut"
	ChartRadar     ChartKind = "radar"
	ChartPolarArea ChartKind = "polar-area"
)

// SupportedChartKinds all valid chart kinds
var SupportedChartKinds = map[ChartKind]struct{}{
	ChartBar:       {},
	ChartPie:       {},
	ChartLine:      {},
	ChartScatter:   {},
	ChartDoughnut:  {},
	ChartRadar:     {},
	ChartPolarArea: {},
}

// ParseChartKind accepts the canonical names plus the Chart.js spellings
// ("polarArea", "polar_area"). The second result is false for unknown kinds.
func ParseChartKind(s string) (ChartKind, bool) {
	k := strings.ToLower(strings.TrimSpace(s))
	k = strings.ReplaceAll(k, "_", "-")
	if k == "polararea" {
		k = string(ChartPolarArea)
	}
	kind := ChartKind(k)
	_, ok := SupportedChartKinds[kind]
	return kind, ok
}

type ChartSource string

const (
	// ChartSourceModel charts were described by the model.
	ChartSourceModel ChartSource = "model"
	// ChartSourceDerived charts were built from a QueryResult without the model.
	ChartSourceDerived ChartSource = "derived"
)

type Dataset struct {
	Label  string    `json:"label"`
	Column string    `json:"column,omitempty"`
	Data   []float64 `json:"data"`
}

// ChartSpec is a validated chart description. Every dataset has one value per label.
type ChartSpec struct {
	Kind     ChartKind `json:"kind"`
	Title    string    `json:"title,omitempty"`
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
	// Primary and Secondary index into Labels.
	Primary         *int        `json:"primary,omitempty"`
	Secondary       *int        `json:"secondary,omitempty"`
	MarkersComputed bool        `json:"markers_computed"`
	Relevancy       string      `json:"relevancy,omitempty"`
	Source          ChartSource `json:"source"`
}
