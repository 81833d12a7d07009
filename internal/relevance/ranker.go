// Package relevance ranks stored records against free-text queries. Ranking
// is deterministic and side-effect free.
package relevance

import (
	"math"
	"strings"

	"github.com/codekeep/codekeep/internal/model"
)

// Blend weights for the relevance score.
const (
	weightText      = 0.50
	weightTags      = 0.25
	weightLanguage  = 0.15
	weightCoherency = 0.10

	minTokenLen = 3
)

// Query is what the caller is looking for.
type Query struct {
	Description string
	Tags        []string
	Language    string
}

// Target is the stored record being ranked.
type Target struct {
	Name        string
	Description string
	Tags        []string
	Language    string
	Code        string
	Coherency   float64
}

// Breakdown exposes the components of a relevance score.
type Breakdown struct {
	Text             float64 `json:"text"`
	TagOverlap       float64 `json:"tag_overlap"`
	LanguageMatch    float64 `json:"language_match"`
	Coherency        float64 `json:"coherency"`
	SubstancePenalty float64 `json:"substance_penalty"`
	NamePenalty      float64 `json:"name_penalty"`
}

// Result is a scored match.
type Result struct {
	Relevance float64   `json:"relevance"`
	Breakdown Breakdown `json:"breakdown"`
}

// Rank scores how well target answers query, in [0,1].
func Rank(query Query, target Target) Result {
	b := Breakdown{
		Text:             cosine(termFreq(Tokenize(query.Description)), termFreq(Tokenize(target.Description+" "+target.Name))),
		TagOverlap:       jaccard(query.Tags, target.Tags),
		Coherency:        clamp01(target.Coherency),
		SubstancePenalty: 1.0,
		NamePenalty:      1.0,
	}
	if query.Language != "" && model.Fold(query.Language) == model.Fold(target.Language) {
		b.LanguageMatch = 1.0
	}

	// Trivially short code bodies rank down; an empty code field (metadata-only
	// match) is not penalized.
	if n := len(strings.TrimSpace(target.Code)); n > 0 {
		if n < 10 {
			b.SubstancePenalty = 0.6
		} else if n < 40 {
			b.SubstancePenalty = 0.85
		}
	}
	if len(strings.TrimSpace(target.Name)) < 3 {
		b.NamePenalty = 0.9
	}

	score := b.Text*weightText +
		b.TagOverlap*weightTags +
		b.LanguageMatch*weightLanguage +
		b.Coherency*weightCoherency
	score *= b.SubstancePenalty * b.NamePenalty

	return Result{Relevance: round2(clamp01(score)), Breakdown: b}
}

// Tokenize lowercases, strips non-alphanumerics, and drops short tokens.
func Tokenize(s string) []string {
	folded := model.Fold(s)
	raw := strings.FieldsFunc(folded, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	var out []string
	for _, t := range raw {
		if len(t) >= minTokenLen {
			out = append(out, t)
		}
	}
	return out
}

func termFreq(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for t, v := range a {
		na += v * v
		if w, ok := b[t]; ok {
			dot += v * w
		}
	}
	for _, w := range b {
		nb += w * w
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[model.Fold(t)] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		f := model.Fold(t)
		if seen[f] {
			continue
		}
		seen[f] = true
		if set[f] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
