package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// parseTaskAnswer reads the {"answer": ..., "confidence": ...} object a task
// returns. Non-string answers are rendered with %v; a missing confidence
// parses as zero.
func parseTaskAnswer(text string) (string, float64, error) {
	cleaned := cleanJSON(text)

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return "", 0, eris.Wrap(err, "extract: parse task answer")
	}

	var answer string
	switch v := raw["answer"].(type) {
	case nil:
		return "", 0, eris.New("extract: task answer missing \"answer\" key")
	case string:
		answer = v
	default:
		answer = fmt.Sprintf("%v", v)
	}

	conf, _ := toFloat64(raw["confidence"])
	return strings.TrimSpace(answer), conf, nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
