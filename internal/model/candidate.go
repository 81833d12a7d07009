package model

import "time"

// GenerationMethod describes how a candidate came to exist.
type GenerationMethod string

const (
	GeneratedFresh   GenerationMethod = "generated"
	GeneratedEvolved GenerationMethod = "evolved"
	GeneratedManual  GenerationMethod = "manual"
)

// Candidate is a coherency-passing but test-unproven draft pattern. It leaves
// the candidate pool either by promotion (one-way, PromotedAt set) or by
// pruning; a promoted candidate is never pruned.
type Candidate struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Code            string             `json:"code"`
	Language        string             `json:"language"`
	PatternType     string             `json:"pattern_type,omitempty"`
	Description     string             `json:"description,omitempty"`
	Tags            []string           `json:"tags,omitempty"`
	Coherency       float64            `json:"coherency"`
	CoherencyDetail CoherencyBreakdown `json:"coherency_detail"`

	ParentPattern    string           `json:"parent_pattern,omitempty"`
	GenerationMethod GenerationMethod `json:"generation_method"`

	PromotedAt *time.Time `json:"promoted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Promoted reports whether the candidate has been promoted.
func (c *Candidate) Promoted() bool {
	return c.PromotedAt != nil
}
