package chart

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// description is the union of the chart shapes models produce:
// column references, literal labels and datasets, Chart.js configs, the
// datasets_labels/datasets_data pair and the {relevancy, chart_config} wrapper.
type description struct {
	Type         string   `json:"type"`
	ChartType    string   `json:"chart_type"`
	Title        string   `json:"title"`
	LabelColumn  string   `json:"label_column"`
	ValueColumns []string `json:"value_columns"`

	Labels   []any                `json:"labels"`
	Datasets []datasetDescription `json:"datasets"`
	Data     *chartJSData         `json:"data"`

	DatasetsLabel string `json:"datasets_labels"`
	DatasetsData  []any  `json:"datasets_data"`

	Options map[string]any `json:"options"`

	Primary   *marker `json:"primary"`
	Secondary *marker `json:"secondary"`

	Relevancy   string       `json:"relevancy"`
	UserInput   string       `json:"user_input"`
	ChartConfig *description `json:"chart_config"`
}

type chartJSData struct {
	Labels   []any                `json:"labels"`
	Datasets []datasetDescription `json:"datasets"`
}

type datasetDescription struct {
	Label  string `json:"label"`
	Column string `json:"column"`
	Data   []any  `json:"data"`
}

// marker is a label position given either as an index or as the label text.
type marker struct {
	Index *int
	Label *string
}

func (m *marker) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		m.Label = &s
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	i := int(f)
	m.Index = &i
	return nil
}

// kindName returns the declared chart kind, whichever key carried it.
func (d *description) kindName() string {
	if strings.TrimSpace(d.Type) != "" {
		return d.Type
	}
	return d.ChartType
}

func (d *description) title() string {
	if d.Title != "" {
		return d.Title
	}
	plugins, _ := d.Options["plugins"].(map[string]any)
	title, _ := plugins["title"].(map[string]any)
	text, _ := title["text"].(string)
	return text
}

func (d *description) usesColumns() bool {
	return d.LabelColumn != "" || len(d.ValueColumns) > 0
}

func (d *description) literalLabels() []any {
	if len(d.Labels) > 0 {
		return d.Labels
	}
	if d.Data != nil {
		return d.Data.Labels
	}
	return nil
}

func (d *description) literalDatasets() []datasetDescription {
	if len(d.Datasets) > 0 {
		return d.Datasets
	}
	if d.Data != nil && len(d.Data.Datasets) > 0 {
		return d.Data.Datasets
	}
	if len(d.DatasetsData) > 0 {
		return []datasetDescription{{Label: d.DatasetsLabel, Data: d.DatasetsData}}
	}
	return nil
}

// decode reads a chart payload. A JSON array is a list of candidate charts;
// the one marked "main" wins, otherwise the first.
func decode(payload string) (*description, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "[") {
		var list []*description
		if err := json.Unmarshal([]byte(payload), &list); err != nil {
			return nil, err
		}
		var chosen *description
		for _, d := range list {
			if d == nil {
				continue
			}
			if chosen == nil || (strings.EqualFold(d.Relevancy, "main") && !strings.EqualFold(chosen.Relevancy, "main")) {
				chosen = d
			}
		}
		if chosen == nil {
			return nil, invalidf("chart list is empty")
		}
		return unwrap(chosen), nil
	}
	var d description
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, err
	}
	return unwrap(&d), nil
}

func unwrap(d *description) *description {
	if d.ChartConfig == nil {
		return d
	}
	inner := d.ChartConfig
	if inner.Relevancy == "" {
		inner.Relevancy = d.Relevancy
	}
	if inner.Primary == nil {
		inner.Primary = d.Primary
	}
	if inner.Secondary == nil {
		inner.Secondary = d.Secondary
	}
	return inner
}

var (
	brokenTypeRe   = regexp.MustCompile(`"(?:type|chart_type)"\s*:\s*"([A-Za-z_-]+)"`)
	brokenLabelsRe = regexp.MustCompile(`(?s)"labels"\s*:\s*\[(.*?)\]`)
	brokenDataRe   = regexp.MustCompile(`"data"\s*:\s*\[([-\d.,\seE+]+)\]`)
)

// salvage pulls type, labels and one numeric data array out of JSON that
// does not parse. Both arrays must be present and of equal length.
func salvage(payload string) (*description, bool) {
	t := brokenTypeRe.FindStringSubmatch(payload)
	l := brokenLabelsRe.FindStringSubmatch(payload)
	d := brokenDataRe.FindStringSubmatch(payload)
	if t == nil || l == nil || d == nil {
		return nil, false
	}

	var labels []any
	for _, part := range strings.Split(l[1], ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part != "" {
			labels = append(labels, part)
		}
	}
	var data []any
	for _, part := range strings.Split(d[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, false
		}
		data = append(data, f)
	}
	if len(labels) == 0 || len(labels) != len(data) {
		return nil, false
	}
	return &description{
		Type:     t[1],
		Labels:   labels,
		Datasets: []datasetDescription{{Label: "Series 1", Data: data}},
	}, true
}
