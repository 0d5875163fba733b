package strategies

import "encoding/json"

// parseJSONObjectOrEmpty parses raw as a JSON object, returning an empty map
// on any parse error or empty input, used throughout the config/header
// parsing path.
func parseJSONObjectOrEmpty(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	if out == nil {
		return map[string]any{}
	}
	return out
}
