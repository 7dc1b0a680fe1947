package tools

import "github.com/cloudwego/eino/schema"

const (
	ToolRunSQL      ToolID = "run_sql"
	ToolRenderChart ToolID = "render_chart"
)

func init() {
	Register(ToolDefinition{
		ID:       ToolRunSQL,
		Name:     string(ToolRunSQL),
		Category: CategoryDatabase,
		Description: "Execute one read-only SQL statement (SELECT, WITH, EXPLAIN, SHOW, DESCRIBE, PRAGMA, VALUES) " +
			"against the connected database and return the columns and rows. " +
			"Only one statement per call; the result may be truncated to the configured row limit.",
		Params: map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "The SQL statement to run",
				Required: true,
			},
		},
	})

	Register(ToolDefinition{
		ID:       ToolRenderChart,
		Name:     string(ToolRenderChart),
		Category: CategoryVisualization,
		Description: "Describe a chart for the latest query result. Either reference result columns with " +
			"label_column and value_columns, or give literal labels and datasets. " +
			"Every dataset must have exactly one value per label.",
		Params: map[string]*schema.ParameterInfo{
			"type": {
				Type:     schema.String,
				Desc:     "Chart kind",
				Enum:     []string{"bar", "line", "pie", "doughnut", "scatter", "radar", "polar-area"},
				Required: true,
			},
			"title": {
				Type: schema.String,
				Desc: "Chart title",
			},
			"label_column": {
				Type: schema.String,
				Desc: "Result column holding the category labels",
			},
			"value_columns": {
				Type:     schema.Array,
				Desc:     "Result columns plotted as datasets",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
			"labels": {
				Type:     schema.Array,
				Desc:     "Literal labels, used when no label_column is given",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
			"datasets": {
				Type: schema.Array,
				Desc: "Literal datasets, used when no value_columns are given",
				ElemInfo: &schema.ParameterInfo{
					Type: schema.Object,
					SubParams: map[string]*schema.ParameterInfo{
						"label": {Type: schema.String, Desc: "Dataset label"},
						"data": {
							Type:     schema.Array,
							Desc:     "One numeric value per label",
							ElemInfo: &schema.ParameterInfo{Type: schema.Number},
						},
					},
				},
			},
			"primary": {
				Type: schema.Integer,
				Desc: "Index of the most relevant label",
			},
			"secondary": {
				Type: schema.Integer,
				Desc: "Index of the second most relevant label",
			},
		},
	})
}
