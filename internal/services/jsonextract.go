package services

import (
	"encoding/json"
	"strings"
)

// parseJSONObject parses text as a single JSON object.
func parseJSONObject(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}

// extractBalancedJSON returns the first balanced {...} substring, for
// oracle output that wraps JSON in prose or code fences. Braces inside
// string literals are ignored.
func extractBalancedJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
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
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// parseLooseJSONObject tries a strict parse first, then the balanced
// substring, stopping at the first success.
func parseLooseJSONObject(text string) (map[string]any, bool) {
	if obj, ok := parseJSONObject(text); ok {
		return obj, true
	}
	sub, ok := extractBalancedJSON(text)
	if !ok {
		return nil, false
	}
	return parseJSONObject(sub)
}

func hasRequiredKeys(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}
