package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/researchgpt/evidence-service/internal/domain"
)

// ExtractJSON recovers a JSON object from a completion. It first tries the
// whole string (after trimming markdown code fences), then scans for the
// first balanced top-level {...} object. Models often wrap JSON in prose;
// this salvages those responses. Returns domain.ErrUnparsableResponse when
// no object can be recovered.
func ExtractJSON(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return json.RawMessage(trimmed), nil
	}

	if obj := firstJSONObject(trimmed); obj != "" {
		return json.RawMessage(obj), nil
	}

	return nil, fmt.Errorf("no JSON object in completion: %w", domain.ErrUnparsableResponse)
}

// firstJSONObject returns the first balanced, valid top-level JSON object
// in s, or an empty string. Braces inside JSON strings are skipped.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate
				}
				return ""
			}
		}
	}
	return ""
}

// DecodeInto extracts a JSON object from a completion and unmarshals it.
func DecodeInto(raw string, out interface{}) error {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(obj, out); err != nil {
		return fmt.Errorf("decoding completion JSON: %w: %w", err, domain.ErrUnparsableResponse)
	}
	return nil
}
