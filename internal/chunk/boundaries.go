package chunk

import "regexp"

// Boundary detection is regex-based on purpose: it must be cheap, deterministic,
// and language-agnostic enough to cover the common cases without parsing.
// A missed boundary only degrades where a chunk is cut, never correctness.
var boundaryPatterns = []*regexp.Regexp{
	// Python
	regexp.MustCompile(`^\s*(async\s+)?def\s+\w+\s*\(`),
	regexp.MustCompile(`^\s*class\s+\w+\s*(\(|:)`),

	// JavaScript / TypeScript
	regexp.MustCompile(`^\s*(export\s+)?(async\s+)?function\s+\w+\s*\(`),
	regexp.MustCompile(`^\s*(export\s+)?(const|let|var)\s+\w+\s*=\s*(async\s*)?\(.*\)\s*=>`),
	regexp.MustCompile(`^\s*(export\s+)?class\s+\w+`),

	// Go
	regexp.MustCompile(`^func\s+(\(\s*\w+\s+\*?\w+\s*\)\s*)?\w+\s*\(`),
	regexp.MustCompile(`^type\s+\w+\s+(struct|interface)\b`),

	// Rust
	regexp.MustCompile(`^\s*(pub\s+)?fn\s+\w+`),
	regexp.MustCompile(`^\s*(pub\s+)?(struct|enum|trait|impl)\b`),

	// Java / C# / C++ method-like: visibility modifier then ident(
	regexp.MustCompile(`^\s*(public|private|protected|static)\s+[\w<>\[\]]+\s+\w+\s*\(`),
}

// IsBoundary reports whether line looks like a function or class definition.
// This is a soft signal used to prefer cut points; the token budget always wins.
func IsBoundary(line string) bool {
	for _, pat := range boundaryPatterns {
		if pat.MatchString(line) {
			return true
		}
	}
	return false
}
