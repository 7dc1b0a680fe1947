package agent

import (
	"fmt"
	"strings"

	"github.com/choraleia/analyst/pkg/models"
)

const systemPrompt = `You are an agent designed to interact with a SQL database.
Given an input question, create a syntactically correct %s query to run, look at the results of the query and return a detailed answer.

Unless the user specifies a specific number of examples they wish to obtain, always limit your query to at most %d results.
You can order the results by a relevant column to return the most interesting examples in the database.
Never query for all the columns from a specific table, only ask for the relevant columns given the question.

You MUST double check your query before executing it. If you get an error while executing a query, rewrite the query and try again.
DO NOT make any DML statements (INSERT, UPDATE, DELETE, DROP etc.) to the database.
Do not use special characters in table or column names.

The database has these tables:
%s
`

const nativeToolsConvention = `
Tools:
- Call run_sql with one read-only statement to query the database.
- When the result is worth visualising, call render_chart. Either reference result columns with label_column and value_columns, or give literal labels and datasets. Supported types: %s.
- When you have everything you need, reply with the final answer in plain text and call no tool.
`

const textToolsConvention = `
Output convention:
- To run a query, write exactly one statement in a fenced block:
` + "```sql\nSELECT ...\n```" + `
- To add a chart, write a JSON object in a fenced chart block, referencing result columns:
` + "```chart\n{\"type\": \"bar\", \"title\": \"...\", \"label_column\": \"...\", \"value_columns\": [\"...\"]}\n```" + `
  or with literal "labels" and "datasets" ([{"label": "...", "data": [numbers]}]). Supported types: %s.
- Tool results come back as messages starting with "Tool result".
- When you have everything you need, reply with the final answer in plain text without any sql or chart block.
`

func (o *Orchestrator) systemMessage(req Request, s Settings) string {
	dialect := req.Dialect
	if dialect == "" {
		dialect = "SQL"
	}
	tables := strings.TrimSpace(req.Schema)
	if tables == "" {
		tables = "(schema unavailable; use the dialect's catalog queries to discover tables)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, systemPrompt, dialect, s.TopK, tables)
	if o.native {
		fmt.Fprintf(&b, nativeToolsConvention, chartKindList())
	} else {
		fmt.Fprintf(&b, textToolsConvention, chartKindList())
	}

	if len(req.Examples) > 0 {
		b.WriteString("\nQueries that answered similar questions before:\n")
		for _, ex := range req.Examples {
			fmt.Fprintf(&b, "Question: %s\nSQL: %s\n", ex.Question, ex.SQL)
		}
	}
	if len(req.PreviousContext) > 0 {
		b.WriteString("\nEarlier in this session:\n")
		for i, prior := range req.PreviousContext {
			fmt.Fprintf(&b, "%d. Question: %s\n", i+1, prior.Question)
			if prior.SQL != "" {
				fmt.Fprintf(&b, "   SQL: %s\n", prior.SQL)
			}
			if prior.Summary != "" {
				fmt.Fprintf(&b, "   Findings: %s\n", prior.Summary)
			}
		}
	}
	return b.String()
}

var promptChartKinds = []models.ChartKind{
	models.ChartBar, models.ChartPie, models.ChartLine, models.ChartScatter,
	models.ChartDoughnut, models.ChartRadar, models.ChartPolarArea,
}

func chartKindList() string {
	names := make([]string, len(promptChartKinds))
	for i, k := range promptChartKinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// Tool result texts fed back to the model.
const (
	msgSkippedSQL       = "Error: only one run_sql call is executed per round. This call was skipped; issue it again after reading the previous result."
	msgSkippedChart     = "Error: only one chart is processed per round. This chart was skipped."
	msgChartAccepted    = "Chart accepted: %s chart with %d labels and %d datasets."
	msgChartRetry       = "Chart rejected: %v. Fix the chart and send it again."
	msgChartGiveUp      = "Chart rejected: %v. Proceed without a chart and give your final answer."
	msgMalformed        = "Error: %v. Correct the request and try again."
	msgExecutionFailed  = "Error: %v. Rewrite the query and try again."
	msgResultHeaderText = "Query returned %d rows (columns: %s).\n%s"
)
