// Package parser turns one model message into a tagged Output: either a
// direct answer, a list of tool requests, or a malformed request that needs
// a corrective turn.
package parser

import (
	"fmt"
	"strings"

	"github.com/choraleia/analyst/pkg/tools"
	"github.com/cloudwego/eino/schema"
)

type Kind int

const (
	// NoArtifact is a final natural-language answer.
	NoArtifact Kind = iota
	// Artifact carries one or more usable tool requests.
	Artifact
	// Malformed carries at least one request that could not be used.
	Malformed
)

func (k Kind) String() string {
	switch k {
	case NoArtifact:
		return "no_artifact"
	case Artifact:
		return "artifact"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type RequestType string

const (
	RequestSQL     RequestType = "sql"
	RequestChart   RequestType = "chart"
	RequestUnknown RequestType = "unknown"
)

// Request is one tool intent in the order the model issued it.
type Request struct {
	Type RequestType
	// ToolCallID and ToolName are set for native tool calls and empty for text blocks.
	ToolCallID string
	ToolName   string
	// Statement is the validated SQL of a RequestSQL.
	Statement string
	// ChartPayload is the raw chart JSON handed to the chart processor.
	ChartPayload string
	// Err is a *MalformedArtifactError when the request cannot be used.
	Err error
}

// Native reports whether the request came from a tool call.
func (r Request) Native() bool { return r.ToolCallID != "" }

// Name is the tool name used in result turns.
func (r Request) Name() string {
	if r.ToolName != "" {
		return r.ToolName
	}
	switch r.Type {
	case RequestSQL:
		return string(tools.ToolRunSQL)
	case RequestChart:
		return string(tools.ToolRenderChart)
	}
	return string(r.Type)
}

// Output is the parsed form of one model message.
type Output struct {
	Kind     Kind
	Requests []Request
	// Text is the prose with tool blocks removed.
	Text string
}

// Parse inspects a model message once. Native tool calls take precedence over
// text blocks; in text mode the last SQL block and the first chart block win.
func Parse(msg *schema.Message) *Output {
	out := &Output{}
	if msg == nil {
		return out
	}
	out.Text = StripBlocks(msg.Content)

	if len(msg.ToolCalls) > 0 {
		for i, tc := range msg.ToolCalls {
			out.Requests = append(out.Requests, parseToolCall(tc, i))
		}
	} else {
		out.Requests = parseText(msg.Content)
	}

	out.Kind = NoArtifact
	for _, r := range out.Requests {
		if r.Err != nil {
			out.Kind = Malformed
			break
		}
		out.Kind = Artifact
	}
	return out
}

// parseToolCall reads the i-th tool call of a message. Calls without an ID
// get one derived from their position so result turns stay distinct.
func parseToolCall(tc schema.ToolCall, i int) Request {
	req := Request{ToolCallID: tc.ID, ToolName: tc.Function.Name}
	if req.ToolCallID == "" {
		req.ToolCallID = fmt.Sprintf("call_%d_%s", i, tc.Function.Name)
	}
	switch tools.ToolID(tc.Function.Name) {
	case tools.ToolRunSQL:
		req.Type = RequestSQL
		art, err := ExtractToolSQL(tc.Function.Arguments)
		if err != nil {
			req.Err = err
			return req
		}
		req.Statement = art.Statement
	case tools.ToolRenderChart:
		req.Type = RequestChart
		req.ChartPayload = strings.TrimSpace(tc.Function.Arguments)
		if req.ChartPayload == "" {
			req.Err = malformed("render_chart arguments are empty", tc.Function.Arguments, nil)
		}
	default:
		req.Type = RequestUnknown
		req.Err = malformed(fmt.Sprintf("unknown tool %q", tc.Function.Name), tc.Function.Arguments, nil)
	}
	return req
}

func parseText(content string) []Request {
	type positioned struct {
		pos int
		req Request
	}
	var found []positioned

	if hasUnterminatedSQLFence(content) {
		found = append(found, positioned{
			pos: sqlOpenFenceRe.FindAllStringIndex(content, -1)[0][0],
			req: Request{Type: RequestSQL, Err: malformed("sql block is not closed", content, nil)},
		})
	} else if blocks := SQLBlocks(content); len(blocks) > 0 {
		last := blocks[len(blocks)-1]
		req := Request{Type: RequestSQL}
		if stmt, err := NormalizeStatement(last.Body); err != nil {
			req.Err = malformed("invalid sql block", last.Body, err)
		} else {
			req.Statement = stmt
		}
		found = append(found, positioned{pos: last.Start, req: req})
	}

	if blocks := ChartBlocks(content); len(blocks) > 0 {
		found = append(found, positioned{
			pos: blocks[0].Start,
			req: Request{Type: RequestChart, ChartPayload: blocks[0].Body},
		})
	}

	if len(found) == 2 && found[1].pos < found[0].pos {
		found[0], found[1] = found[1], found[0]
	}
	reqs := make([]Request, 0, len(found))
	for _, f := range found {
		reqs = append(reqs, f.req)
	}
	return reqs
}
