package backend

import (
	"encoding/json"
	"strings"
)

// errorBody covers the error shapes the service is known to emit:
// {"detail": "..."} from HTTPException, {"detail": [{"msg": ...}]} from
// request validation, and {"message": "..."} for a missing upload.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

type validationItem struct {
	Msg string `json:"msg"`
}

// ParseErrorDetail extracts a human-readable detail from an error body.
// It reports false when the body has none of the known shapes.
func ParseErrorDetail(body []byte) (string, bool) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return "", false
	}

	if len(eb.Detail) > 0 {
		var s string
		if err := json.Unmarshal(eb.Detail, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}

		var items []validationItem
		if err := json.Unmarshal(eb.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if m := strings.TrimSpace(it.Msg); m != "" {
					msgs = append(msgs, m)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; "), true
			}
		}
	}

	if m := strings.TrimSpace(eb.Message); m != "" {
		return m, true
	}
	return "", false
}
