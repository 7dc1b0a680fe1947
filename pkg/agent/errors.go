package agent

import (
	"context"
	"errors"

	"github.com/choraleia/analyst/pkg/chart"
	"github.com/choraleia/analyst/pkg/insight"
	"github.com/choraleia/analyst/pkg/models"
	"github.com/choraleia/analyst/pkg/parser"
	"github.com/choraleia/analyst/pkg/tools/database"
)

// ErrorKind maps an error from any pipeline stage onto the kind reported
// in AgentRun.ErrorKind. Unknown errors are attributed to the model.
func ErrorKind(err error) string {
	var (
		malformedErr *parser.MalformedArtifactError
		execErr      *database.ExecutionError
		connErr      *database.ConnectionError
		genErr       *insight.GenerationError
		chartErr     *chart.ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &connErr):
		return models.ErrorKindConnection
	case errors.As(err, &execErr):
		return models.ErrorKindExecution
	case errors.As(err, &malformedErr), errors.As(err, &chartErr):
		return models.ErrorKindMalformedArtifact
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.ErrorKindCancelled
	case errors.As(err, &genErr):
		return models.ErrorKindGeneration
	default:
		return models.ErrorKindModel
	}
}
