package parser

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// BlockKind tells which convention a text block used.
type BlockKind int

const (
	BlockSQL BlockKind = iota
	BlockChart
)

// Block is a fenced or tagged region of model text.
type Block struct {
	Kind BlockKind
	Body string
	// Start and End are byte offsets of the whole block, fences included.
	Start, End int
}

var (
	sqlFenceRe       = regexp.MustCompile("(?is)```[ \\t]*sql\\b(.*?)```")
	sqlOpenFenceRe   = regexp.MustCompile("(?i)```[ \\t]*sql\\b")
	sqlTagRe         = regexp.MustCompile(`(?is)<sql>(.*?)</sql>`)
	chartFenceRe     = regexp.MustCompile("(?is)```[ \\t]*(chart|json)\\b(.*?)```")
	chartTagRe       = regexp.MustCompile(`(?is)<chart>(.*?)</chart>`)
	anyFenceRe       = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*.*?```")
	chartKeyRe       = regexp.MustCompile(`"(type|chart_type|chart_config|labels|datasets|label_column|value_columns)"\s*:`)
	chartKeysInParse = []string{"type", "chart_type", "chart_config", "labels", "datasets", "label_column", "value_columns"}
)

// SQLBlocks returns the SQL blocks of text in order of appearance.
func SQLBlocks(text string) []Block {
	var blocks []Block
	for _, m := range sqlFenceRe.FindAllStringSubmatchIndex(text, -1) {
		blocks = append(blocks, Block{Kind: BlockSQL, Body: strings.TrimSpace(text[m[2]:m[3]]), Start: m[0], End: m[1]})
	}
	for _, m := range sqlTagRe.FindAllStringSubmatchIndex(text, -1) {
		blocks = append(blocks, Block{Kind: BlockSQL, Body: strings.TrimSpace(text[m[2]:m[3]]), Start: m[0], End: m[1]})
	}
	sortBlocks(blocks)
	return blocks
}

// ChartBlocks returns chart blocks in order of appearance. ```chart fences and
// <chart> tags always count; ```json fences count when they look like a chart.
func ChartBlocks(text string) []Block {
	var blocks []Block
	for _, m := range chartFenceRe.FindAllStringSubmatchIndex(text, -1) {
		lang := strings.ToLower(text[m[2]:m[3]])
		body := strings.TrimSpace(text[m[4]:m[5]])
		if lang == "json" && !LooksLikeChart(body) {
			continue
		}
		blocks = append(blocks, Block{Kind: BlockChart, Body: body, Start: m[0], End: m[1]})
	}
	for _, m := range chartTagRe.FindAllStringSubmatchIndex(text, -1) {
		blocks = append(blocks, Block{Kind: BlockChart, Body: strings.TrimSpace(text[m[2]:m[3]]), Start: m[0], End: m[1]})
	}
	sortBlocks(blocks)
	return blocks
}

// LooksLikeChart reports whether a JSON body carries chart keys. Bodies that
// fail to parse still count when a chart key is visible, so broken chart JSON
// reaches the chart processor's fallback instead of being ignored.
func LooksLikeChart(body string) bool {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return chartKeyRe.MatchString(body)
	}
	switch t := v.(type) {
	case map[string]any:
		return hasChartKey(t)
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok && hasChartKey(m) {
				return true
			}
		}
	}
	return false
}

// hasChartKey also accepts a Chart.js style "data" object, but not a bare
// "data" key holding anything else.
func hasChartKey(m map[string]any) bool {
	for _, k := range chartKeysInParse {
		if _, ok := m[k]; ok {
			return true
		}
	}
	if data, ok := m["data"].(map[string]any); ok {
		_, labels := data["labels"]
		_, datasets := data["datasets"]
		return labels || datasets
	}
	return false
}

// StripBlocks removes SQL and chart blocks and any remaining code fences,
// leaving the model's prose.
func StripBlocks(text string) string {
	out := sqlFenceRe.ReplaceAllString(text, "")
	out = sqlTagRe.ReplaceAllString(out, "")
	out = chartTagRe.ReplaceAllString(out, "")
	out = anyFenceRe.ReplaceAllString(out, "")
	return strings.TrimSpace(collapseBlankLines(out))
}

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(s string) string {
	return blankLinesRe.ReplaceAllString(s, "\n\n")
}

func sortBlocks(blocks []Block) {
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Start < blocks[j].Start })
}

// hasUnterminatedSQLFence reports an opening ```sql fence with no closing fence.
func hasUnterminatedSQLFence(text string) bool {
	return len(sqlOpenFenceRe.FindAllStringIndex(text, -1)) > len(sqlFenceRe.FindAllStringIndex(text, -1))
}
