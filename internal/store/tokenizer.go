package store

import (
	"regexp"
	"strings"
	"unicode"
)

var identRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// CodeStopWords are programming keywords and throwaway identifier names
// dropped from the term space. Left in, their document frequency crowds
// the capped vocabulary without carrying retrieval signal.
var CodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

var codeStopWordSet = buildStopWordSet(CodeStopWords)

func buildStopWordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// TokenizeCode splits text with code-aware rules: punctuation-stripped,
// camelCase/PascalCase/snake_case split, lowercased, single characters
// and code stop words dropped. The lexical index applies this to chunk
// text and query text alike so both live in the same term space.
func TokenizeCode(text string) []string {
	var tokens []string
	for _, word := range identRegex.FindAllString(text, -1) {
		for _, t := range SplitCodeToken(word) {
			lower := strings.ToLower(t)
			if len(lower) < 2 {
				continue
			}
			if _, stop := codeStopWordSet[lower]; stop {
				continue
			}
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// SplitCodeToken splits snake_case, then camelCase within each part.
func SplitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, SplitCamelCase(part)...)
			}
		}
		return result
	}
	return SplitCamelCase(token)
}

// SplitCamelCase splits camelCase and PascalCase identifiers, keeping
// acronym runs together:
//
//	"getUserById"      -> ["get", "User", "By", "Id"]
//	"parseHTTPRequest" -> ["parse", "HTTP", "Request"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}
