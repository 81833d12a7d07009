package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"golang.org/x/text/cases"
)

// ComplexityTier classifies a pattern by structural size.
type ComplexityTier string

const (
	TierAtomic        ComplexityTier = "atomic"
	TierComposite     ComplexityTier = "composite"
	TierArchitectural ComplexityTier = "architectural"
)

// CoherencyBreakdown holds the per-dimension coherency scores, each in [0,1].
type CoherencyBreakdown struct {
	SyntaxValid  float64 `json:"syntax_valid"`
	Completeness float64 `json:"completeness"`
	Consistency  float64 `json:"consistency"`
	TestProof    float64 `json:"test_proof"`
}

// EvolutionLink records one edge of the evolution tree. A pattern carries at
// most one parent link and any number of child links.
type EvolutionLink struct {
	ParentID  string     `json:"parent_id,omitempty"`
	ChildID   string     `json:"child_id,omitempty"`
	EvolvedAt *time.Time `json:"evolved_at,omitempty"`
}

// Pattern is a registered, reusable code fragment.
type Pattern struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Code            string             `json:"code"`
	Language        string             `json:"language"`
	PatternType     string             `json:"pattern_type,omitempty"`
	Tier            ComplexityTier     `json:"tier"`
	Description     string             `json:"description,omitempty"`
	Tags            []string           `json:"tags,omitempty"`
	Coherency       float64            `json:"coherency"`
	CoherencyDetail CoherencyBreakdown `json:"coherency_detail"`

	UsageCount   int `json:"usage_count"`
	SuccessCount int `json:"success_count"`
	BugReports   int `json:"bug_reports"`

	Upvotes           int     `json:"upvotes"`
	Downvotes         int     `json:"downvotes"`
	WeightedVoteScore float64 `json:"weighted_vote_score"`

	Evolution  []EvolutionLink `json:"evolution,omitempty"`
	Requires   []string        `json:"requires,omitempty"`
	ComposedOf []string        `json:"composed_of,omitempty"`

	// Version is the optimistic-concurrency counter; writers must present
	// the version they read, and a successful update increments it.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChildCount returns how many evolution children this pattern has spawned.
func (p *Pattern) ChildCount() int {
	n := 0
	for _, l := range p.Evolution {
		if l.ChildID != "" {
			n++
		}
	}
	return n
}

// HasChild reports whether an evolution edge to childID already exists.
func (p *Pattern) HasChild(childID string) bool {
	for _, l := range p.Evolution {
		if l.ChildID == childID {
			return true
		}
	}
	return false
}

// ParentID returns the id of the pattern this one was evolved from, or "".
func (p *Pattern) ParentID() string {
	for _, l := range p.Evolution {
		if l.ParentID != "" {
			return l.ParentID
		}
	}
	return ""
}

// SuccessRate returns successCount/usageCount, or fallback when unused.
func (p *Pattern) SuccessRate(fallback float64) float64 {
	if p.UsageCount == 0 {
		return fallback
	}
	return float64(p.SuccessCount) / float64(p.UsageCount)
}

// PatternUpdate names the fields a caller may change through Update. Nil
// fields are left untouched.
type PatternUpdate struct {
	Code        *string         `json:"code,omitempty"`
	Description *string         `json:"description,omitempty"`
	PatternType *string         `json:"pattern_type,omitempty"`
	Tags        *[]string       `json:"tags,omitempty"`
	Tier        *ComplexityTier `json:"tier,omitempty"`
}

var foldCaser = cases.Fold()

// Fold lowercases s for case-insensitive comparison.
func Fold(s string) string {
	return foldCaser.String(s)
}

// DedupKey is the case-insensitive (name, language) identity of a pattern.
func DedupKey(name, language string) string {
	return Fold(name) + "\x00" + Fold(language)
}

// PatternID derives the content-hash id for a pattern: sha256 over the
// dedup key and code, truncated to 16 hex chars.
func PatternID(name, language, code string) string {
	h := sha256.Sum256([]byte(DedupKey(name, language) + "\x00" + code))
	return hex.EncodeToString(h[:8])
}
