package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/choraleia/analyst/pkg/agent"
	"github.com/choraleia/analyst/pkg/utils"
)

const examplesCollectionPrefix = "examples-"

// ExampleMemory remembers questions that were answered with SQL and returns
// the most similar ones as few-shot hints. There is one collection per
// database source.
type ExampleMemory struct {
	db     *chromem.DB
	embed  chromem.EmbeddingFunc
	logger *slog.Logger
}

// NewExampleMemory opens the store at path, or keeps it in memory when path
// is empty.
func NewExampleMemory(path string, embed chromem.EmbeddingFunc) (*ExampleMemory, error) {
	if embed == nil {
		return nil, fmt.Errorf("example memory needs an embedding function")
	}
	var (
		vectorDB *chromem.DB
		err      error
	)
	if path != "" {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create example store directory: %w", err)
		}
		vectorDB, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open example store: %w", err)
		}
	} else {
		vectorDB = chromem.NewDB()
	}
	return &ExampleMemory{db: vectorDB, embed: embed, logger: utils.GetLogger()}, nil
}

func (m *ExampleMemory) collection(source string) (*chromem.Collection, error) {
	return m.db.GetOrCreateCollection(examplesCollectionPrefix+source, nil, m.embed)
}

// Remember stores a question with the SQL that answered it. Asking the same
// question again replaces the stored SQL.
func (m *ExampleMemory) Remember(ctx context.Context, source, question, sql string) error {
	question = strings.TrimSpace(question)
	if question == "" || strings.TrimSpace(sql) == "" {
		return nil
	}
	col, err := m.collection(source)
	if err != nil {
		return fmt.Errorf("failed to get collection: %w", err)
	}
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(source+"\x00"+question)).String()
	err = col.AddDocument(ctx, chromem.Document{
		ID:       id,
		Content:  question,
		Metadata: map[string]string{"sql": sql},
	})
	if err != nil {
		return fmt.Errorf("failed to store example: %w", err)
	}
	return nil
}

// Similar returns up to k stored examples closest to question.
func (m *ExampleMemory) Similar(ctx context.Context, source, question string, k int) ([]agent.Example, error) {
	if k <= 0 || strings.TrimSpace(question) == "" {
		return nil, nil
	}
	col, err := m.collection(source)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	if n := col.Count(); n < k {
		k = n
	}
	if k == 0 {
		return nil, nil
	}

	results, err := col.Query(ctx, question, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("example search failed: %w", err)
	}
	examples := make([]agent.Example, 0, len(results))
	for _, r := range results {
		examples = append(examples, agent.Example{Question: r.Content, SQL: r.Metadata["sql"]})
	}
	return examples, nil
}
