package llm

import (
	"encoding/json"
	"strings"

	"turbo-umbrella/internal/domain"
)

// ExtractJSON pulls the first well-formed JSON object out of a chat reply.
// Models wrap output in markdown fences or prose despite instructions, so the
// scanner balances braces while respecting string literals and escapes.
func ExtractJSON(reply string) (string, error) {
	s := stripFences(reply)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", domain.ErrLLMParse
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if !json.Valid([]byte(candidate)) {
					return "", domain.ErrLLMParse
				}
				return candidate, nil
			}
		}
	}
	return "", domain.ErrLLMParse
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
