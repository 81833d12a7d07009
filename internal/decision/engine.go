// Package decision turns a free-text request into a reuse decision: pull an
// existing pattern, evolve one, or generate from scratch. The engine only
// reads the store; its result may be stale relative to an in-flight writer.
package decision

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/codekeep/codekeep/internal/config"
	"github.com/codekeep/codekeep/internal/model"
	"github.com/codekeep/codekeep/internal/relevance"
	"github.com/codekeep/codekeep/internal/store"
)

// Outcome is the closed set of decisions.
type Outcome string

const (
	OutcomePull     Outcome = "pull"
	OutcomeEvolve   Outcome = "evolve"
	OutcomeGenerate Outcome = "generate"
)

// Request describes what the caller needs.
type Request struct {
	Description  string   `json:"description"`
	Tags         []string `json:"tags,omitempty"`
	Language     string   `json:"language,omitempty"`
	MinCoherency float64  `json:"min_coherency,omitempty"`
}

// Alternative is a runner-up match.
type Alternative struct {
	Pattern   model.Pattern `json:"pattern"`
	Composite float64       `json:"composite"`
}

// Result is the engine's decision with supporting evidence.
type Result struct {
	Decision     Outcome        `json:"decision"`
	Pattern      *model.Pattern `json:"pattern,omitempty"`
	Confidence   float64        `json:"confidence"`
	Reasoning    []string       `json:"reasoning"`
	Alternatives []Alternative  `json:"alternatives,omitempty"`
}

// Engine scores stored patterns against requests.
type Engine struct {
	st  store.Store
	cfg config.EngineConfig
	now func() time.Time
}

// New creates an Engine over st.
func New(st store.Store, cfg config.EngineConfig) *Engine {
	return &Engine{st: st, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

const scoreConcurrency = 8

type scored struct {
	pattern   model.Pattern
	composite float64
	relevance float64
}

// Decide composite-scores every stored pattern against req and applies the
// pull/evolve thresholds. An empty or fully filtered-out store yields
// GENERATE with confidence 1.0, never an error.
func (e *Engine) Decide(ctx context.Context, req Request) (*Result, error) {
	patterns, err := e.st.GetAll(ctx, store.Filters{MinCoherency: req.MinCoherency})
	if err != nil {
		return nil, eris.Wrap(err, "decision: load patterns")
	}
	if len(patterns) == 0 {
		return &Result{
			Decision:   OutcomeGenerate,
			Confidence: 1.0,
			Reasoning:  []string{"no stored patterns match the request"},
		}, nil
	}

	// Exact-language pre-filter; fall back to the whole pool rather than
	// returning an artificially empty scoring pass.
	pool := patterns
	if req.Language != "" {
		var filtered []model.Pattern
		for _, p := range patterns {
			if model.Fold(p.Language) == model.Fold(req.Language) {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) > 0 {
			pool = filtered
		}
	}

	results := make([]scored, len(pool))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(scoreConcurrency)
	for i := range pool {
		g.Go(func() error {
			results[i] = e.score(req, pool[i])
			return nil
		})
	}
	// Scoring is pure and never fails.
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].composite > results[j].composite
	})

	best := results[0]
	var alternatives []Alternative
	for _, r := range results[1:] {
		if len(alternatives) == 3 {
			break
		}
		alternatives = append(alternatives, Alternative{Pattern: r.pattern, Composite: round2(r.composite)})
	}

	evolveGate := math.Min(e.cfg.PullThreshold, e.cfg.EvolveThreshold)
	switch {
	case best.composite >= e.cfg.PullThreshold && best.relevance >= e.cfg.PullRelevanceGate:
		return &Result{
			Decision:   OutcomePull,
			Pattern:    &best.pattern,
			Confidence: round2(clamp01(best.composite)),
			Reasoning: []string{
				fmt.Sprintf("best match %q scored %.2f composite (relevance %.2f)", best.pattern.Name, best.composite, best.relevance),
				fmt.Sprintf("composite meets pull threshold %.2f", e.cfg.PullThreshold),
			},
			Alternatives: alternatives,
		}, nil
	case best.composite >= evolveGate && best.relevance >= e.cfg.EvolveRelevanceGate:
		return &Result{
			Decision:   OutcomeEvolve,
			Pattern:    &best.pattern,
			Confidence: round2(clamp01(best.composite)),
			Reasoning: []string{
				fmt.Sprintf("best match %q scored %.2f composite (relevance %.2f)", best.pattern.Name, best.composite, best.relevance),
				fmt.Sprintf("composite below pull threshold %.2f but meets evolve threshold %.2f", e.cfg.PullThreshold, evolveGate),
			},
			Alternatives: alternatives,
		}, nil
	default:
		return &Result{
			Decision:   OutcomeGenerate,
			Confidence: round2(clamp01(1 - best.composite)),
			Reasoning: []string{
				fmt.Sprintf("best match %q scored only %.2f composite (relevance %.2f)", best.pattern.Name, best.composite, best.relevance),
				"nothing suitable to pull or evolve",
			},
			Alternatives: alternatives,
		}, nil
	}
}

// score computes the composite score for one pattern.
func (e *Engine) score(req Request, p model.Pattern) scored {
	rel := relevance.Rank(
		relevance.Query{Description: req.Description, Tags: req.Tags, Language: req.Language},
		relevance.Target{
			Name:        p.Name,
			Description: p.Description,
			Tags:        p.Tags,
			Language:    p.Language,
			Code:        p.Code,
			Coherency:   p.Coherency,
		},
	)

	composite := rel.Relevance*e.cfg.RelevanceWeight +
		p.Coherency*e.cfg.CoherencyWeight +
		Reliability(e.cfg, &p)*e.cfg.ReliabilityWeight

	composite += e.nameBonus(req, &p)
	composite += e.focusBonus(&p)
	composite -= e.evolutionPenalty(&p)

	return scored{pattern: p, composite: composite, relevance: rel.Relevance}
}

// Reliability blends usage success rate, bug penalty, and a bounded
// vote boost, capped at the configured ceiling.
func Reliability(cfg config.EngineConfig, p *model.Pattern) float64 {
	rate := p.SuccessRate(cfg.DefaultSuccessRate)
	bugPenalty := math.Max(0, 1-cfg.BugPenaltyPerReport*float64(p.BugReports))
	boost := p.WeightedVoteScore * cfg.VoteBoostScale
	if boost > cfg.VoteBoostCap {
		boost = cfg.VoteBoostCap
	}
	if boost < cfg.VoteBoostFloor {
		boost = cfg.VoteBoostFloor
	}
	rel := rate*bugPenalty + boost
	return math.Min(cfg.ReliabilityCeiling, math.Max(0, rel))
}

// ReliabilityFunc adapts Reliability for the store's retire sweep.
func ReliabilityFunc(cfg config.EngineConfig) store.ReliabilityFunc {
	return func(p *model.Pattern) float64 {
		return Reliability(cfg, p)
	}
}

func (e *Engine) nameBonus(req Request, p *model.Pattern) float64 {
	name := model.Fold(strings.TrimSpace(p.Name))
	if name == "" {
		return 0
	}
	desc := model.Fold(req.Description)
	if strings.Contains(desc, name) {
		return e.cfg.NameBonus
	}
	return 0
}

func (e *Engine) focusBonus(p *model.Pattern) float64 {
	switch p.Tier {
	case model.TierAtomic:
		return e.cfg.AtomicFocusBonus
	case model.TierComposite:
		return e.cfg.CompositeFocusBonus
	default:
		return 0
	}
}

// evolutionPenalty combines staleness (linear ramp once unused past the
// configured window, capped) and over-evolution (too many children).
func (e *Engine) evolutionPenalty(p *model.Pattern) float64 {
	penalty := 0.0

	days := e.now().Sub(p.UpdatedAt).Hours() / 24
	after, full := float64(e.cfg.StalenessAfterDays), float64(e.cfg.StalenessFullDays)
	if days > after && full > after {
		ramp := (days - after) / (full - after)
		penalty += e.cfg.StalenessCap * math.Min(ramp, 1.0)
	}

	if children := p.ChildCount(); children >= e.cfg.OverEvolutionChildren {
		over := e.cfg.OverEvolutionStep * float64(children-e.cfg.OverEvolutionChildren+1)
		penalty += math.Min(over, e.cfg.OverEvolutionCap)
	}

	return penalty
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
