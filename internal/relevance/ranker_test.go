package relevance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lifoTarget() Target {
	return Target{
		Name:        "stack",
		Description: "LIFO stack with push and pop operations",
		Tags:        []string{"data-structure", "lifo"},
		Language:    "go",
		Code:        "type Stack struct {\n\titems []int\n}\n\nfunc (s *Stack) Push(v int) {\n\ts.items = append(s.items, v)\n}",
		Coherency:   0.82,
	}
}

// --- Rank ---

func TestRank_StrongMatch(t *testing.T) {
	r := Rank(Query{
		Description: "stack with push and pop",
		Tags:        []string{"data-structure"},
		Language:    "go",
	}, lifoTarget())

	assert.Greater(t, r.Relevance, 0.5)
	assert.Greater(t, r.Breakdown.Text, 0.5)
	assert.Greater(t, r.Breakdown.TagOverlap, 0.0)
	assert.InDelta(t, 1.0, r.Breakdown.LanguageMatch, 0.001)
}

func TestRank_UnrelatedQueryScoresLow(t *testing.T) {
	r := Rank(Query{
		Description: "quantum error correction compiler",
		Language:    "rust",
	}, lifoTarget())

	assert.Zero(t, r.Breakdown.Text)
	assert.Zero(t, r.Breakdown.LanguageMatch)
	// Only the coherency component survives.
	assert.Less(t, r.Relevance, 0.15)
}

func TestRank_Deterministic(t *testing.T) {
	q := Query{Description: "stack push pop", Tags: []string{"lifo"}, Language: "go"}
	assert.Equal(t, Rank(q, lifoTarget()), Rank(q, lifoTarget()))
}

func TestRank_LanguageMismatchDropsComponent(t *testing.T) {
	q := Query{Description: "stack with push and pop", Language: "python"}
	match := Rank(Query{Description: "stack with push and pop", Language: "go"}, lifoTarget())
	miss := Rank(q, lifoTarget())

	assert.Zero(t, miss.Breakdown.LanguageMatch)
	assert.Greater(t, match.Relevance, miss.Relevance)
}

func TestRank_LanguageMatchIsCaseInsensitive(t *testing.T) {
	r := Rank(Query{Description: "stack", Language: "Go"}, lifoTarget())
	assert.InDelta(t, 1.0, r.Breakdown.LanguageMatch, 0.001)
}

func TestRank_SubstancePenalty(t *testing.T) {
	tiny := lifoTarget()
	tiny.Code = "x := 1"
	short := lifoTarget()
	short.Code = "func pop() int { return 0 }"
	empty := lifoTarget()
	empty.Code = ""

	q := Query{Description: "stack with push and pop", Language: "go"}
	assert.InDelta(t, 0.6, Rank(q, tiny).Breakdown.SubstancePenalty, 0.001)
	assert.InDelta(t, 0.85, Rank(q, short).Breakdown.SubstancePenalty, 0.001)
	assert.InDelta(t, 1.0, Rank(q, empty).Breakdown.SubstancePenalty, 0.001)
	assert.InDelta(t, 1.0, Rank(q, lifoTarget()).Breakdown.SubstancePenalty, 0.001)
}

func TestRank_NamePenalty(t *testing.T) {
	anon := lifoTarget()
	anon.Name = "s"
	q := Query{Description: "stack with push and pop"}

	assert.InDelta(t, 0.9, Rank(q, anon).Breakdown.NamePenalty, 0.001)
	assert.InDelta(t, 1.0, Rank(q, lifoTarget()).Breakdown.NamePenalty, 0.001)
}

func TestRank_TagOverlapIsCaseInsensitive(t *testing.T) {
	r := Rank(Query{Description: "stack", Tags: []string{"LIFO", "Data-Structure"}}, lifoTarget())
	assert.InDelta(t, 1.0, r.Breakdown.TagOverlap, 0.001)
}

func TestRank_Bounds(t *testing.T) {
	queries := []Query{
		{},
		{Description: "stack stack stack stack", Tags: []string{"lifo", "lifo"}, Language: "go"},
		{Description: string(make([]byte, 1024))},
	}
	for _, q := range queries {
		r := Rank(q, lifoTarget())
		assert.GreaterOrEqual(t, r.Relevance, 0.0)
		assert.LessOrEqual(t, r.Relevance, 1.0)
	}
}

// --- Tokenize ---

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Thread-safe LRU cache, v2!")
	assert.Equal(t, []string{"thread", "safe", "lru", "cache"}, tokens)

	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("a b c"))
}

// --- Internals ---

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, jaccard([]string{"a1b", "c2d"}, []string{"c2d", "a1b"}), 0.001)
	assert.InDelta(t, 1.0/3.0, jaccard([]string{"aaa", "bbb"}, []string{"bbb", "ccc"}), 0.001)
	assert.Zero(t, jaccard(nil, []string{"aaa"}))
	assert.Zero(t, jaccard([]string{"aaa"}, []string{"bbb"}))
}

func TestCosine_IdenticalVectors(t *testing.T) {
	tf := termFreq([]string{"stack", "push", "pop"})
	assert.InDelta(t, 1.0, cosine(tf, tf), 0.001)
}
