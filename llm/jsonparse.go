package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ParseStage names the layer of ExtractJSON that produced the decoded value
type ParseStage string

const (
	StageDirect   ParseStage = "direct"
	StageFenced   ParseStage = "fenced"
	StageBraces   ParseStage = "brace_span"
	StageRepaired ParseStage = "trailing_comma_repair"
	StageFailed   ParseStage = "failed"
)

var (
	ErrNoJSON = errors.New("no JSON object found in model output")
	// ErrUndecodable is returned when a valid object was found but could not be decoded into v
	ErrUndecodable = errors.New("JSON object could not be decoded")
)

var (
	fencePattern         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON decodes the first JSON object it can recover from free model text into v.
// The layers are tried in a fixed order: the whole text, a fenced code block, the
// outermost brace span, then the brace span with trailing commas removed.
// A field whose JSON type does not match v is left at its zero value and the rest
// of the object is kept.
func ExtractJSON(raw string, v interface{}) (ParseStage, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return StageFailed, ErrNoJSON
	}

	var decodeErr error
	try := func(candidate string) bool {
		ok, err := decodeObject(candidate, v)
		if err != nil && decodeErr == nil {
			decodeErr = err
		}
		return ok
	}

	if try(text) {
		return StageDirect, nil
	}

	if match := fencePattern.FindStringSubmatch(text); match != nil {
		if try(strings.TrimSpace(match[1])) {
			return StageFenced, nil
		}
	}

	if span, ok := braceSpan(text); ok {
		if try(span) {
			return StageBraces, nil
		}
		if try(trailingCommaPattern.ReplaceAllString(span, "$1")) {
			return StageRepaired, nil
		}
	}

	if decodeErr != nil {
		return StageFailed, fmt.Errorf("%w: %v", ErrUndecodable, decodeErr)
	}
	return StageFailed, ErrNoJSON
}

// braceSpan returns the text between the first '{' and the last '}'
func braceSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// decodeObject only touches v when the candidate is a syntactically valid object.
// Type mismatches on single fields are tolerated since Unmarshal still fills the rest.
func decodeObject(candidate string, v interface{}) (bool, error) {
	if !strings.HasPrefix(candidate, "{") || !json.Valid([]byte(candidate)) {
		return false, nil
	}
	err := json.Unmarshal([]byte(candidate), v)
	if err == nil {
		return true, nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return true, nil
	}
	return false, err
}
