// Package insight turns a query result into a narrative in two passes: an
// initial interpretation and an optional business-context enhancement.
package insight

import (
	"context"
	"errors"
	"log/slog"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/choraleia/analyst/pkg/models"
	"github.com/choraleia/analyst/pkg/utils"
)

// DefaultPreviewRows is the number of result rows shown to the model.
const DefaultPreviewRows = 20

var errEmptyResponse = errors.New("model returned an empty response")

// ChatModel is the part of an eino chat model the generator needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error)
}

type Request struct {
	Question        string
	SQL             string
	Result          *models.QueryResult
	Chart           *models.ChartSpec
	GenerateSummary bool
	PreviousContext []models.PriorAnalysis
	PreviewRows     int
}

type Generator struct {
	model  ChatModel
	logger *slog.Logger
}

func NewGenerator(model ChatModel) *Generator {
	return &Generator{model: model, logger: utils.GetLogger()}
}

// Summarize runs Stage 1 and, when req.GenerateSummary is set, Stage 2.
// A Stage 1 failure is returned as *GenerationError. A Stage 2 failure marks
// the insight degraded unless ctx is done, in which case it is returned.
func (g *Generator) Summarize(ctx context.Context, req Request) (*models.Insight, error) {
	initial, err := g.generate(ctx, g.initialMessage(req))
	if err != nil {
		g.logger.Warn("Initial insight failed", "error", err)
		return nil, &GenerationError{Stage: 1, Err: err}
	}

	ins := &models.Insight{
		Initial: initial,
		Result:  req.Result,
		Chart:   req.Chart,
	}
	if !req.GenerateSummary {
		return ins, nil
	}

	enhanced, err := g.generate(ctx, g.enhancedMessage(req, initial))
	if err != nil {
		if ctx.Err() != nil {
			return nil, &GenerationError{Stage: 2, Err: err}
		}
		g.logger.Warn("Enhanced insight failed, keeping initial insight", "error", err)
		ins.Degraded = true
		ins.EnhancementError = err.Error()
		return ins, nil
	}
	ins.Enhanced = enhanced
	return ins, nil
}

// Enhance runs Stage 2 alone on an existing initial insight. Failures are
// returned as *GenerationError.
func (g *Generator) Enhance(ctx context.Context, req Request, initial string) (string, error) {
	enhanced, err := g.generate(ctx, g.enhancedMessage(req, initial))
	if err != nil {
		return "", &GenerationError{Stage: 2, Err: err}
	}
	return enhanced, nil
}

func (g *Generator) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.Generate(ctx, []*schema.Message{
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errEmptyResponse
	}
	text := CleanDescription(resp.Content)
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}
