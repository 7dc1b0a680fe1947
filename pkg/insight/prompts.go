package insight

import (
	"fmt"
	"strings"

	"github.com/choraleia/analyst/pkg/models"
)

const initialPrompt = `You are a data analyst. Interpret the result of a SQL query that was run to answer a user's question.

Guidelines:
- Answer the question directly in the first sentence.
- Support the answer with specific values from the result.
- Point out notable patterns, outliers or gaps in the data.
- Mention when the result was truncated and the answer may be incomplete.
- Keep it to 1-2 short paragraphs. Do not repeat the table and do not include code.

%s`

const enhancedPrompt = `You are a senior data analyst providing comprehensive insights. Your task is to analyze the data and provide valuable business context, inferences, and actionable insights.

Your analysis should include:
1. Data context and background: what this data represents and why it matters
2. Key insights: what the data reveals about patterns, trends, or performance
3. Industry context: relevant industry knowledge or benchmarks
4. Inferences: what can be inferred from the results using common knowledge
5. Business implications: what this means for decision-making

Guidelines:
- Use bullet points under short headers rather than long paragraphs.
- Use specific data points to support your insights.
- Make meaningful inferences beyond just stating the numbers.
- Relate the findings to the previous analyses when they are relevant.
- Do not include code or chart configurations.

%s

Provide an analysis that goes beyond the raw data to deliver business insight and context.`

func (g *Generator) initialMessage(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", req.Question)
	if req.SQL != "" {
		fmt.Fprintf(&b, "SQL Query Used: %s\n", req.SQL)
	}
	writeResult(&b, req)
	return fmt.Sprintf(initialPrompt, strings.TrimSpace(b.String()))
}

func (g *Generator) enhancedMessage(req Request, initial string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original Question: %s\n", req.Question)

	if len(req.PreviousContext) > 0 {
		b.WriteString("\n=== Previous Context ===\n")
		for i, prior := range req.PreviousContext {
			fmt.Fprintf(&b, "\nPrevious Analysis %d:\n", i+1)
			if prior.Question != "" {
				fmt.Fprintf(&b, "Question: %s\n", prior.Question)
			}
			if prior.Summary != "" {
				fmt.Fprintf(&b, "Findings: %s\n", prior.Summary)
			}
			if prior.SQL != "" {
				fmt.Fprintf(&b, "Query Used: %s\n", prior.SQL)
			}
		}
	}

	b.WriteString("\n=== Current Analysis ===\n")
	fmt.Fprintf(&b, "Current Findings: %s\n", initial)
	if req.SQL != "" {
		fmt.Fprintf(&b, "Current Query: %s\n", req.SQL)
	}
	writeResult(&b, req)
	return fmt.Sprintf(enhancedPrompt, strings.TrimSpace(b.String()))
}

func writeResult(b *strings.Builder, req Request) {
	if req.Result == nil {
		return
	}
	n := req.PreviewRows
	if n <= 0 {
		n = DefaultPreviewRows
	}
	fmt.Fprintf(b, "Query Results:\n%s\n", req.Result.Preview(n).Table())
	if req.Chart != nil {
		fmt.Fprintf(b, "Chart: %s\n", describeChart(req.Chart))
	}
}

func describeChart(c *models.ChartSpec) string {
	s := string(c.Kind) + " chart"
	if c.Title != "" {
		s += fmt.Sprintf(" %q", c.Title)
	}
	s += fmt.Sprintf(" with %d labels", len(c.Labels))
	if c.Primary != nil && *c.Primary < len(c.Labels) {
		s += fmt.Sprintf(", highlighting %q", c.Labels[*c.Primary])
	}
	return s
}
