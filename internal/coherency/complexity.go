package coherency

import "strings"

// Measure returns the non-empty line count and maximum brace/indent nesting
// depth of a fragment. Used to derive a pattern's complexity tier.
func Measure(code string) (lines, nesting int) {
	lines = len(nonEmptyLines(code))

	depth, maxDepth := 0, 0
	for _, r := range code {
		switch r {
		case '{', '(', '[':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case '}', ')', ']':
			if depth > 0 {
				depth--
			}
		}
	}

	// Indentation-based languages: fall back to indent depth.
	if maxDepth == 0 {
		for _, l := range strings.Split(code, "\n") {
			indent := 0
			for _, r := range l {
				if r == '\t' {
					indent++
				} else if r == ' ' {
					indent++ // four spaces counted below
				} else {
					break
				}
			}
			if strings.HasPrefix(l, " ") {
				indent = indent / 4
			}
			if indent > maxDepth {
				maxDepth = indent
			}
		}
	}

	return lines, maxDepth
}
