package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// cleanJSONResponse removes markdown code fences from an LLM response.
func cleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}

// decodeJSON parses the first JSON object in an LLM response into out.
// Models sometimes wrap the object in prose despite instructions, so the
// parse falls back to the outermost brace span before giving up.
func decodeJSON(resp string, out any) error {
	cleaned := cleanJSONResponse(resp)
	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("response contains no JSON object")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}
