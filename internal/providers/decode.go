package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"promoreel/internal/domain"
)

// DecodeStrict parses a model reply into out, rejecting unknown fields and
// trailing data. Markdown code fences around the JSON are tolerated.
func DecodeStrict(raw string, out any) error {
	fragment := extractJSONFragment(raw)
	if fragment == "" {
		return fmt.Errorf("%w: empty payload", domain.ErrInvalidResponse)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(fragment)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidResponse, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after json document", domain.ErrInvalidResponse)
	}
	return nil
}

func extractJSONFragment(raw string) string {
	text := trimCodeFence(strings.TrimSpace(raw))
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
