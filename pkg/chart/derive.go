package chart

import (
	"fmt"

	"github.com/choraleia/analyst/pkg/models"
)

// Derive builds a chart from a result without the model: the first
// non-numeric column becomes the labels and every numeric column a dataset.
// When all columns are numeric the first one is used as labels.
func Derive(result *models.QueryResult, kind models.ChartKind) (*models.ChartSpec, error) {
	if result == nil || len(result.Rows) == 0 {
		return nil, invalidf("no rows to chart")
	}
	if _, ok := models.SupportedChartKinds[kind]; !ok {
		return nil, invalidf("unsupported chart type %q", kind)
	}

	labelColumn := ""
	var numeric []string
	for _, c := range result.Columns {
		if columnIsNumeric(result, c) {
			numeric = append(numeric, c)
		} else if labelColumn == "" {
			labelColumn = c
		}
	}
	if labelColumn == "" {
		if len(numeric) < 2 {
			return nil, invalidf("result needs a label column and a numeric column")
		}
		labelColumn, numeric = numeric[0], numeric[1:]
	}
	if len(numeric) == 0 {
		return nil, invalidf("result has no numeric column to plot")
	}

	labels, datasets, err := fromColumns(labelColumn, numeric, result)
	if err != nil {
		return nil, err
	}
	spec := &models.ChartSpec{
		Kind:      kind,
		Title:     fmt.Sprintf("%s by %s", numeric[0], labelColumn),
		Labels:    labels,
		Datasets:  datasets,
		Relevancy: "main",
		Source:    models.ChartSourceDerived,
	}
	spec.Primary, spec.Secondary = ComputeRelevancy(spec.Datasets[0].Data)
	spec.MarkersComputed = true
	return spec, nil
}
