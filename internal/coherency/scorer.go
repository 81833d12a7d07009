// Package coherency scores code fragments for structural quality. Scoring is
// deterministic and side-effect free; malformed input degrades to a low
// score rather than an error.
package coherency

import (
	"math"
	"strings"

	"github.com/codekeep/codekeep/internal/model"
)

// Dimension weights. Test proof carries the largest single weight: a passing
// test materially raises the total, and an explicit failure lowers it below
// the untested baseline.
const (
	weightSyntax       = 0.25
	weightCompleteness = 0.25
	weightConsistency  = 0.20
	weightTestProof    = 0.30
)

// Input describes one fragment to score. Language is an optional hint;
// TestsPassed is an externally supplied test outcome (nil means untested);
// ReliabilitySeed optionally biases the test-proof dimension for fragments
// with known history.
type Input struct {
	Code            string
	Language        string
	TestsPassed     *bool
	ReliabilitySeed float64
}

// Score is the scoring result. Total and every breakdown dimension are
// normalized to [0,1].
type Score struct {
	Total     float64                  `json:"total"`
	Breakdown model.CoherencyBreakdown `json:"breakdown"`
	Language  string                   `json:"language"`
}

// Evaluate scores a code fragment. Safe to call from any number of
// concurrent readers.
func Evaluate(in Input) Score {
	lang := in.Language
	if lang == "" {
		lang = detectLanguage(in.Code)
	}

	b := model.CoherencyBreakdown{
		SyntaxValid:  scoreSyntax(in.Code, lang),
		Completeness: scoreCompleteness(in.Code),
		Consistency:  scoreConsistency(in.Code),
		TestProof:    scoreTestProof(in.TestsPassed, in.ReliabilitySeed),
	}

	total := b.SyntaxValid*weightSyntax +
		b.Completeness*weightCompleteness +
		b.Consistency*weightConsistency +
		b.TestProof*weightTestProof

	return Score{
		Total:     round2(clamp01(total)),
		Breakdown: b,
		Language:  lang,
	}
}

// detectLanguage guesses the language from shape when no hint is given.
func detectLanguage(code string) string {
	switch {
	case strings.Contains(code, "package ") && strings.Contains(code, "func "):
		return "go"
	case strings.Contains(code, "func ") && strings.Contains(code, ":="):
		return "go"
	case strings.Contains(code, "def ") && strings.Contains(code, ":"):
		return "python"
	case strings.Contains(code, "fn ") && strings.Contains(code, "->"):
		return "rust"
	case strings.Contains(code, "function ") || strings.Contains(code, "=>"):
		return "javascript"
	case strings.Contains(code, "public ") && strings.Contains(code, "class "):
		return "java"
	default:
		return ""
	}
}

// scoreSyntax applies cheap balance heuristics. Unbalanced delimiters cost
// points; they never raise an error.
func scoreSyntax(code, lang string) float64 {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return 0
	}

	score := 1.0
	pairs := [][2]rune{{'{', '}'}, {'(', ')'}, {'[', ']'}}
	for _, p := range pairs {
		open, close := strings.Count(code, string(p[0])), strings.Count(code, string(p[1]))
		if open != close {
			score -= 0.25 + 0.05*math.Min(math.Abs(float64(open-close)), 3)
		}
	}

	// Odd quote counts suggest an unterminated literal.
	if strings.Count(code, `"`)%2 != 0 {
		score -= 0.15
	}
	if strings.Count(code, "`")%2 != 0 {
		score -= 0.1
	}

	// Language shape check: a fragment claiming a language should look like it.
	if lang != "" && !matchesShape(code, lang) {
		score -= 0.2
	}

	return clamp01(score)
}

func matchesShape(code, lang string) bool {
	switch model.Fold(lang) {
	case "go":
		return strings.Contains(code, "func ") || strings.Contains(code, "type ") ||
			strings.Contains(code, "var ") || strings.Contains(code, "package ")
	case "python":
		return strings.Contains(code, "def ") || strings.Contains(code, "class ") ||
			strings.Contains(code, "import ") || strings.Contains(code, "lambda ")
	case "javascript", "typescript":
		return strings.Contains(code, "function") || strings.Contains(code, "=>") ||
			strings.Contains(code, "const ") || strings.Contains(code, "let ") ||
			strings.Contains(code, "class ")
	case "rust":
		return strings.Contains(code, "fn ") || strings.Contains(code, "let ") ||
			strings.Contains(code, "impl ") || strings.Contains(code, "struct ")
	case "java":
		return strings.Contains(code, "class ") || strings.Contains(code, "void ") ||
			strings.Contains(code, "public ")
	default:
		// Unknown language: no shape opinion.
		return true
	}
}

// scoreCompleteness estimates whether the fragment is a whole unit of code
// rather than a stub or a truncated snippet.
func scoreCompleteness(code string) float64 {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return 0
	}

	score := 0.5

	lines := nonEmptyLines(code)
	score += 0.1 * math.Min(float64(len(lines))/5.0, 1.0)

	// A body of some kind.
	if strings.Contains(code, "{") || hasIndentedBlock(lines) {
		score += 0.2
	}
	// Produces or binds a value.
	if strings.Contains(code, "return") || strings.Contains(code, "=") {
		score += 0.1
	}

	// Stub markers.
	lower := strings.ToLower(code)
	for _, marker := range []string{"todo", "fixme", "not implemented", "unimplemented"} {
		if strings.Contains(lower, marker) {
			score -= 0.2
			break
		}
	}
	if strings.HasSuffix(trimmed, "...") || strings.HasSuffix(trimmed, ",") {
		score -= 0.25
	}

	return clamp01(score)
}

// scoreConsistency checks indentation and identifier style uniformity.
func scoreConsistency(code string) float64 {
	lines := nonEmptyLines(code)
	if len(lines) == 0 {
		return 0
	}

	score := 1.0

	tabs, spaces := 0, 0
	for _, l := range lines {
		if strings.HasPrefix(l, "\t") {
			tabs++
		} else if strings.HasPrefix(l, " ") {
			spaces++
		}
	}
	if tabs > 0 && spaces > 0 {
		score -= 0.25
	}

	// Mixed snake_case and camelCase identifiers.
	snake, camel := 0, 0
	for _, tok := range strings.FieldsFunc(code, func(r rune) bool {
		return !isWordRune(r)
	}) {
		if strings.Contains(tok, "_") && tok == strings.ToLower(tok) {
			snake++
		} else if tok != strings.ToLower(tok) && tok != strings.ToUpper(tok) &&
			!strings.Contains(tok, "_") {
			camel++
		}
	}
	if snake >= 2 && camel >= 2 {
		score -= 0.2
	}

	// Very long lines suggest generated or mangled code.
	long := 0
	for _, l := range lines {
		if len(l) > 160 {
			long++
		}
	}
	if long > len(lines)/4 {
		score -= 0.15
	}

	return clamp01(score)
}

// scoreTestProof maps the external test outcome onto [0,1]. Untested sits at
// a neutral baseline, optionally nudged by a historical reliability seed.
func scoreTestProof(passed *bool, seed float64) float64 {
	if passed != nil {
		if *passed {
			return 1.0
		}
		return 0.15
	}
	base := 0.5
	if seed > 0 {
		base = 0.8*base + 0.2*clamp01(seed)
	}
	return round2(base)
}

// --- helpers ---

func nonEmptyLines(code string) []string {
	var out []string
	for _, l := range strings.Split(code, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func hasIndentedBlock(lines []string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, "    ") || strings.HasPrefix(l, "\t") {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
