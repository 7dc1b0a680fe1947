// Package chart validates model-described charts against query results and
// derives charts from results without the model.
package chart

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/choraleia/analyst/pkg/models"
	"github.com/choraleia/analyst/pkg/parser"
	"github.com/choraleia/analyst/pkg/utils"
)

type Processor struct {
	logger *slog.Logger
}

func NewProcessor() *Processor {
	return &Processor{logger: utils.GetLogger()}
}

// Process finds the chart in text and validates it against result.
// Text without a chart yields (nil, nil). Text may be model prose with a
// ```chart / ```json fence or <chart> tag, or a bare JSON payload such as
// render_chart tool arguments.
func (p *Processor) Process(text string, result *models.QueryResult) (*models.ChartSpec, error) {
	payload, ok := findPayload(text)
	if !ok {
		return nil, nil
	}

	desc, err := decode(payload)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			return nil, vErr
		}
		salvaged, ok := salvage(payload)
		if !ok {
			return nil, invalidf("chart JSON could not be parsed: %v", err)
		}
		p.logger.Debug("Recovered chart from malformed JSON", "kind", salvaged.Type)
		desc = salvaged
	}

	spec, err := build(desc, result)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

func findPayload(text string) (string, bool) {
	if blocks := parser.ChartBlocks(text); len(blocks) > 0 {
		return blocks[0].Body, true
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed, true
	}
	return "", false
}

func build(desc *description, result *models.QueryResult) (*models.ChartSpec, error) {
	name := desc.kindName()
	if strings.TrimSpace(name) == "" {
		return nil, invalidf("chart type is missing")
	}
	kind, ok := models.ParseChartKind(name)
	if !ok {
		return nil, invalidf("unsupported chart type %q", name)
	}

	spec := &models.ChartSpec{
		Kind:      kind,
		Title:     desc.title(),
		Relevancy: strings.ToLower(desc.Relevancy),
		Source:    models.ChartSourceModel,
	}
	if spec.Relevancy == "" {
		spec.Relevancy = "main"
	}

	var err error
	if desc.usesColumns() {
		spec.Labels, spec.Datasets, err = fromColumns(desc.LabelColumn, desc.ValueColumns, result)
	} else {
		spec.Labels, spec.Datasets, err = fromLiterals(desc.literalLabels(), desc.literalDatasets(), result)
	}
	if err != nil {
		return nil, err
	}
	if err := checkShape(spec); err != nil {
		return nil, err
	}
	if err := applyMarkers(spec, desc.Primary, desc.Secondary); err != nil {
		return nil, err
	}
	return spec, nil
}

func fromColumns(labelColumn string, valueColumns []string, result *models.QueryResult) ([]string, []models.Dataset, error) {
	if result == nil {
		return nil, nil, invalidf("chart references columns but there is no query result")
	}
	if labelColumn == "" {
		return nil, nil, invalidf("label_column is required with value_columns")
	}
	labelValues, ok := result.Column(labelColumn)
	if !ok {
		return nil, nil, invalidf("label column %q is not in the result (columns: %s)", labelColumn, strings.Join(result.Columns, ", "))
	}
	if len(valueColumns) == 0 {
		for _, c := range result.Columns {
			if c != labelColumn && columnIsNumeric(result, c) {
				valueColumns = append(valueColumns, c)
			}
		}
		if len(valueColumns) == 0 {
			return nil, nil, invalidf("result has no numeric column to plot against %q", labelColumn)
		}
	}

	labels := make([]string, len(labelValues))
	for i, v := range labelValues {
		labels[i] = formatLabel(v)
	}

	datasets := make([]models.Dataset, 0, len(valueColumns))
	for _, col := range valueColumns {
		values, ok := result.Column(col)
		if !ok {
			return nil, nil, invalidf("value column %q is not in the result (columns: %s)", col, strings.Join(result.Columns, ", "))
		}
		data, err := columnFloats(col, values)
		if err != nil {
			return nil, nil, err
		}
		datasets = append(datasets, models.Dataset{Label: col, Column: col, Data: data})
	}
	return labels, datasets, nil
}

func fromLiterals(rawLabels []any, rawDatasets []datasetDescription, result *models.QueryResult) ([]string, []models.Dataset, error) {
	labels := make([]string, len(rawLabels))
	for i, v := range rawLabels {
		labels[i] = formatLabel(v)
	}

	datasets := make([]models.Dataset, 0, len(rawDatasets))
	for i, raw := range rawDatasets {
		ds := models.Dataset{Label: raw.Label, Column: raw.Column}
		if ds.Label == "" {
			ds.Label = raw.Column
		}
		if ds.Label == "" {
			ds.Label = fmt.Sprintf("Series %d", i+1)
		}
		switch {
		case len(raw.Data) > 0:
			data := make([]float64, len(raw.Data))
			for j, v := range raw.Data {
				f, ok := toFloat(v)
				if !ok {
					return nil, nil, invalidf("dataset %q value %d (%v) is not numeric", ds.Label, j, v)
				}
				data[j] = f
			}
			ds.Data = data
		case raw.Column != "":
			if result == nil {
				return nil, nil, invalidf("dataset %q references column %q but there is no query result", ds.Label, raw.Column)
			}
			values, ok := result.Column(raw.Column)
			if !ok {
				return nil, nil, invalidf("dataset column %q is not in the result", raw.Column)
			}
			data, err := columnFloats(raw.Column, values)
			if err != nil {
				return nil, nil, err
			}
			ds.Data = data
		default:
			return nil, nil, invalidf("dataset %q has no data", ds.Label)
		}
		datasets = append(datasets, ds)
	}
	return labels, datasets, nil
}

func checkShape(spec *models.ChartSpec) error {
	if len(spec.Labels) == 0 {
		return invalidf("chart has no labels")
	}
	if len(spec.Datasets) == 0 {
		return invalidf("chart has no datasets")
	}
	for _, ds := range spec.Datasets {
		if len(ds.Data) != len(spec.Labels) {
			return invalidf("dataset %q has %d values for %d labels", ds.Label, len(ds.Data), len(spec.Labels))
		}
	}
	return nil
}

// columnFloats converts result values; NULL plots as zero.
func columnFloats(column string, values []any) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, invalidf("column %q is not numeric (row %d has %v)", column, i, v)
		}
		out[i] = f
	}
	return out, nil
}

func columnIsNumeric(result *models.QueryResult, column string) bool {
	seen := false
	for _, row := range result.Rows {
		v := row[column]
		if v == nil {
			continue
		}
		if _, ok := toFloat(v); !ok {
			return false
		}
		seen = true
	}
	return seen
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func formatLabel(v any) string {
	switch t := v.(type) {
	case nil:
		return "(null)"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}
