package gemini

import (
	"errors"
	"strings"
)

// ExtractJSON returns the first balanced top-level JSON object embedded in
// free-form model output. Models wrap their JSON in prose or markdown fences
// often enough that strict unmarshalling of the whole response is useless.
func ExtractJSON(s string) ([]byte, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, errors.New("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return []byte(s[start : i+1]), nil
			}
		}
	}
	return nil, errors.New("unbalanced JSON object in response")
}
