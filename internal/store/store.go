// Package store persists patterns, candidates, votes, and the audit log
// behind a single Store contract with two interchangeable backends: an
// embedded SQLite database and a flat JSON-file fallback.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/codekeep/codekeep/internal/coherency"
	"github.com/codekeep/codekeep/internal/config"
	"github.com/codekeep/codekeep/internal/model"
)

// Filters narrows GetAll results.
type Filters struct {
	Language     string
	Tag          string
	MinCoherency float64
	Limit        int
}

// CandidateFilters narrows GetAllCandidates results. Promoted candidates are
// never returned.
type CandidateFilters struct {
	Language     string
	MinCoherency float64
}

// AuditFilters narrows AuditLog results.
type AuditFilters struct {
	Table    string
	TargetID string
	Action   string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// RetireResult reports the outcome of a retire sweep.
type RetireResult struct {
	Retired   int `json:"retired"`
	Remaining int `json:"remaining"`
}

// RegisterInput describes a pattern to register. Coherency is scored by the
// store; the id is content-derived.
type RegisterInput struct {
	Name        string
	Code        string
	Language    string
	PatternType string
	Description string
	Tags        []string
	Tier        model.ComplexityTier // derived from code when empty
	TestsPassed *bool
	Requires    []string
	ComposedOf  []string
	ParentID    string // set when registering an evolved pattern
}

// CandidateInput describes a draft to add to the candidate pool.
type CandidateInput struct {
	Name             string
	Code             string
	Language         string
	PatternType      string
	Description      string
	Tags             []string
	ParentPattern    string
	GenerationMethod model.GenerationMethod
}

// ReliabilityFunc derives a pattern's reliability for the retire sweep. The
// decision engine supplies its composite reliability; a nil func falls back
// to the bare usage success rate.
type ReliabilityFunc func(p *model.Pattern) float64

// Store is the persistence contract shared by both backends. The same
// operation sequence against either backend produces equivalent observable
// state; the flat-file backend additionally assumes a single owning process.
type Store interface {
	// Register scores and inserts a pattern, applying the dedup rule: on a
	// (name, language) conflict the higher-coherency version replaces in
	// place preserving id and usage counters; a lower-or-equal challenger is
	// a no-op returning the stored record.
	Register(ctx context.Context, in RegisterInput) (*model.Pattern, error)

	Get(ctx context.Context, id string) (*model.Pattern, error)
	GetByName(ctx context.Context, name, language string) (*model.Pattern, error)
	GetAll(ctx context.Context, f Filters) ([]model.Pattern, error)

	// Update is a compare-and-swap write: it fails with
	// model.ErrConcurrentModification unless the stored version equals
	// expectedVersion, and increments the version on success.
	Update(ctx context.Context, id string, expectedVersion int, up model.PatternUpdate) (*model.Pattern, error)

	RecordUsage(ctx context.Context, id string, succeeded bool) error
	ReportBug(ctx context.Context, id, description string) error

	// Vote enforces one live vote per (pattern, voter). An identical repeat
	// vote fails with model.ErrDuplicateVote; a direction change moves the
	// up/down counters atomically.
	Vote(ctx context.Context, patternID, voterID string, direction int) (*model.Pattern, error)

	// UpdateVoterReputation nudges each voter on the pattern after a
	// ground-truth usage outcome: up when their direction agreed, down when
	// it disagreed, clamped to the reputation bounds.
	UpdateVoterReputation(ctx context.Context, patternID string, succeeded bool) error

	// Retire deletes every pattern scoring coherency*0.6 + reliability*0.4
	// below minScore.
	Retire(ctx context.Context, minScore float64, reliability ReliabilityFunc) (RetireResult, error)

	AddCandidate(ctx context.Context, in CandidateInput) (*model.Candidate, error)
	GetAllCandidates(ctx context.Context, f CandidateFilters) ([]model.Candidate, error)
	// PromoteCandidate sets PromotedAt; promotion is one-way and permanently
	// exempts the candidate from pruning.
	PromoteCandidate(ctx context.Context, id string) (*model.Candidate, error)
	// PruneCandidates deletes unpromoted candidates below minCoherency and
	// returns how many were removed.
	PruneCandidates(ctx context.Context, minCoherency float64) (int, error)

	// LinkEvolution records the parent/child evolution edges on both
	// patterns in one transaction window.
	LinkEvolution(ctx context.Context, parentID, childID string) error

	// AuditLog returns append-only entries, newest first.
	AuditLog(ctx context.Context, f AuditFilters) ([]model.AuditEntry, error)

	Close() error
}

// Options carries cross-backend construction settings.
type Options struct {
	Tiers config.TierConfig
	Actor string
}

func (o Options) actor() string {
	if o.Actor == "" {
		return "local"
	}
	return o.Actor
}

// buildPattern validates and scores a RegisterInput into a fresh Pattern.
func buildPattern(in RegisterInput, tiers config.TierConfig, now time.Time) (*model.Pattern, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, eris.Wrap(model.ErrValidation, "store: pattern name is required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, eris.Wrap(model.ErrValidation, "store: pattern code is required")
	}
	if strings.TrimSpace(in.Language) == "" {
		return nil, eris.Wrap(model.ErrValidation, "store: pattern language is required")
	}

	score := coherency.Evaluate(coherency.Input{
		Code:        in.Code,
		Language:    in.Language,
		TestsPassed: in.TestsPassed,
	})

	tier := in.Tier
	if tier == "" {
		tier = deriveTier(in.Code, tiers)
	}

	p := &model.Pattern{
		ID:              model.PatternID(in.Name, in.Language, in.Code),
		Name:            in.Name,
		Code:            in.Code,
		Language:        in.Language,
		PatternType:     in.PatternType,
		Tier:            tier,
		Description:     in.Description,
		Tags:            in.Tags,
		Coherency:       score.Total,
		CoherencyDetail: score.Breakdown,
		Requires:        in.Requires,
		ComposedOf:      in.ComposedOf,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.ParentID != "" {
		p.Evolution = []model.EvolutionLink{{ParentID: in.ParentID}}
	}
	return p, nil
}

// buildCandidate validates and scores a CandidateInput.
func buildCandidate(in CandidateInput, id string, now time.Time) (*model.Candidate, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, eris.Wrap(model.ErrValidation, "store: candidate name is required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, eris.Wrap(model.ErrValidation, "store: candidate code is required")
	}

	score := coherency.Evaluate(coherency.Input{Code: in.Code, Language: in.Language})

	method := in.GenerationMethod
	if method == "" {
		method = model.GeneratedManual
	}

	return &model.Candidate{
		ID:               id,
		Name:             in.Name,
		Code:             in.Code,
		Language:         in.Language,
		PatternType:      in.PatternType,
		Description:      in.Description,
		Tags:             in.Tags,
		Coherency:        score.Total,
		CoherencyDetail:  score.Breakdown,
		ParentPattern:    in.ParentPattern,
		GenerationMethod: method,
		CreatedAt:        now,
	}, nil
}

func deriveTier(code string, tiers config.TierConfig) model.ComplexityTier {
	lines, nesting := coherency.Measure(code)
	switch {
	case lines <= tiers.AtomicMaxLines && nesting <= tiers.AtomicMaxNesting:
		return model.TierAtomic
	case lines <= tiers.CompositeMaxLines && nesting <= tiers.CompositeMaxNesting:
		return model.TierComposite
	default:
		return model.TierArchitectural
	}
}

// applyUpdate copies non-nil update fields onto p and bumps version/UpdatedAt.
func applyUpdate(p *model.Pattern, up model.PatternUpdate, now time.Time) {
	if up.Code != nil {
		p.Code = *up.Code
	}
	if up.Description != nil {
		p.Description = *up.Description
	}
	if up.PatternType != nil {
		p.PatternType = *up.PatternType
	}
	if up.Tags != nil {
		p.Tags = *up.Tags
	}
	if up.Tier != nil {
		p.Tier = *up.Tier
	}
	p.Version++
	p.UpdatedAt = now
}

// replaceInPlace applies the dedup winner's fields onto the stored record,
// preserving id, counters, votes, and evolution history.
func replaceInPlace(stored, challenger *model.Pattern, now time.Time) {
	stored.Code = challenger.Code
	stored.Description = challenger.Description
	stored.Tags = challenger.Tags
	stored.PatternType = challenger.PatternType
	stored.Tier = challenger.Tier
	stored.Coherency = challenger.Coherency
	stored.CoherencyDetail = challenger.CoherencyDetail
	stored.Version++
	stored.UpdatedAt = now
}

// retireScore is the fixed blend used by the retire sweep.
func retireScore(p *model.Pattern, reliability ReliabilityFunc) float64 {
	rel := p.SuccessRate(0.5)
	if reliability != nil {
		rel = reliability(p)
	}
	return p.Coherency*0.6 + rel*0.4
}

func matchesFilters(p *model.Pattern, f Filters) bool {
	if f.Language != "" && model.Fold(p.Language) != model.Fold(f.Language) {
		return false
	}
	if f.MinCoherency > 0 && p.Coherency < f.MinCoherency {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range p.Tags {
			if model.Fold(t) == model.Fold(f.Tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func matchesAuditFilters(e *model.AuditEntry, f AuditFilters) bool {
	if f.Table != "" && e.Table != f.Table {
		return false
	}
	if f.TargetID != "" && e.TargetID != f.TargetID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}
