// Package history keeps an append-only ledger of one-off code submissions.
// Unlike the pattern store it never deduplicates, votes, or evolves; entries
// are added, used, summarized, and eventually pruned below a coherency floor.
package history

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/codekeep/codekeep/internal/coherency"
	"github.com/codekeep/codekeep/internal/model"
)

// AddInput describes a submission to record.
type AddInput struct {
	Description string
	Code        string
	Language    string
	Tags        []string
}

// Filters narrows GetAll results.
type Filters struct {
	Language string
	Limit    int
}

// Summary aggregates the ledger.
type Summary struct {
	Count        int            `json:"count"`
	AvgCoherency float64        `json:"avg_coherency"`
	Languages    map[string]int `json:"languages"`
}

// History is the ledger contract shared by both backends.
type History interface {
	Add(ctx context.Context, in AddInput) (*model.Submission, error)
	Get(ctx context.Context, id string) (*model.Submission, error)
	// GetAll returns submissions newest first.
	GetAll(ctx context.Context, f Filters) ([]model.Submission, error)
	RecordUsage(ctx context.Context, id string, succeeded bool) error
	// Prune deletes submissions whose coherency falls below the floor and
	// returns how many were removed.
	Prune(ctx context.Context, minCoherency float64) (int, error)
	Summarize(ctx context.Context) (*Summary, error)
	Close() error
}

// buildSubmission validates and scores an AddInput.
func buildSubmission(in AddInput, id string, now time.Time) (*model.Submission, error) {
	if strings.TrimSpace(in.Code) == "" {
		return nil, eris.Wrap(model.ErrValidation, "history: submission code is required")
	}
	if strings.TrimSpace(in.Language) == "" {
		return nil, eris.Wrap(model.ErrValidation, "history: submission language is required")
	}

	score := coherency.Evaluate(coherency.Input{Code: in.Code, Language: in.Language})

	return &model.Submission{
		ID:          id,
		Description: in.Description,
		Code:        in.Code,
		Language:    in.Language,
		Tags:        in.Tags,
		Coherency:   score.Total,
		CreatedAt:   now,
	}, nil
}

func matchesFilters(s *model.Submission, f Filters) bool {
	if f.Language != "" && model.Fold(s.Language) != model.Fold(f.Language) {
		return false
	}
	return true
}

func summarize(subs []model.Submission) *Summary {
	sum := &Summary{Languages: map[string]int{}}
	total := 0.0
	for i := range subs {
		sum.Count++
		total += subs[i].Coherency
		sum.Languages[model.Fold(subs[i].Language)]++
	}
	if sum.Count > 0 {
		sum.AvgCoherency = total / float64(sum.Count)
	}
	return sum
}
