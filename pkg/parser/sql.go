package parser

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/choraleia/analyst/pkg/models"
)

// ExtractSQL returns the statement of the last SQL block in text.
// No block yields (nil, nil): the model answered directly.
func ExtractSQL(text string) (*models.SQLArtifact, error) {
	if hasUnterminatedSQLFence(text) {
		return nil, malformed("sql block is not closed", text, nil)
	}
	blocks := SQLBlocks(text)
	if len(blocks) == 0 {
		return nil, nil
	}
	last := blocks[len(blocks)-1]
	stmt, err := NormalizeStatement(last.Body)
	if err != nil {
		return nil, malformed("invalid sql block", last.Body, err)
	}
	return &models.SQLArtifact{Statement: stmt}, nil
}

type runSQLArgs struct {
	Query string `json:"query"`
	// some models use "sql" instead of "query"
	SQL string `json:"sql"`
}

// ExtractToolSQL reads the statement from run_sql tool call arguments.
func ExtractToolSQL(arguments string) (*models.SQLArtifact, error) {
	var args runSQLArgs
	if err := json.Unmarshal([]byte(strings.TrimSpace(arguments)), &args); err != nil {
		return nil, malformed("run_sql arguments are not valid JSON", arguments, err)
	}
	query := args.Query
	if strings.TrimSpace(query) == "" {
		query = args.SQL
	}
	if strings.TrimSpace(query) == "" {
		return nil, malformed("run_sql arguments have no query", arguments, errors.New(`missing "query"`))
	}
	stmt, err := NormalizeStatement(query)
	if err != nil {
		return nil, malformed("invalid run_sql query", query, err)
	}
	return &models.SQLArtifact{Statement: stmt}, nil
}
