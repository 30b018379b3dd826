package llm

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Decoded is the result of decoding a completion into a structured value.
// The fallback path is a first-class branch: when the raw text cannot be
// parsed or fails schema validation, Value holds the caller's fallback and
// FallbackUsed is true. Decoding never returns an error to the caller.
type Decoded[T any] struct {
	Value        T
	FallbackUsed bool
	Err          error
}

// Decode extracts the first JSON object from raw, validates it against
// schema (a JSON Schema document; empty string skips validation) and
// unmarshals it into T. On any failure the fallback value is returned
// with FallbackUsed set.
func Decode[T any](raw, schema string, fallback T) Decoded[T] {
	text := ExtractJSON(raw)
	if text == "" {
		return Decoded[T]{Value: fallback, FallbackUsed: true}
	}

	if schema != "" {
		result, err := gojsonschema.Validate(
			gojsonschema.NewStringLoader(schema),
			gojsonschema.NewStringLoader(text),
		)
		if err != nil {
			return Decoded[T]{Value: fallback, FallbackUsed: true, Err: err}
		}
		if !result.Valid() {
			return Decoded[T]{Value: fallback, FallbackUsed: true}
		}
	}

	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Decoded[T]{Value: fallback, FallbackUsed: true, Err: err}
	}
	return Decoded[T]{Value: v}
}

// ExtractJSON returns the first balanced JSON object in s, tolerating
// markdown code fences and surrounding prose. Empty string when none.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = rest[:j]
		} else {
			s = rest
		}
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
