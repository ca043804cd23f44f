// internal/apierror/normalize.go
package apierror

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Normalize turns an error response body into an ErrorInfo. The API puts
// the description in a "detail" field that is either a string, an object or
// a list of validation entries; anything unrecognized falls back to the
// status text.
func Normalize(statusCode int, body []byte) ErrorInfo {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ErrorInfo{Message: fallback(statusCode)}
	}
	if msg := detailMessage(envelope.Detail); msg != "" {
		return ErrorInfo{Message: msg}
	}
	return ErrorInfo{Message: fallback(statusCode)}
}

func detailMessage(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)

	case '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return ""
		}
		msgs := make([]string, 0, len(entries))
		for _, entry := range entries {
			if msg := detailMessage(entry); msg != "" {
				msgs = append(msgs, msg)
			}
		}
		return strings.Join(msgs, "; ")

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ""
		}
		for _, key := range []string{"msg", "message", "detail", "error"} {
			if v, ok := obj[key]; ok {
				if msg := detailMessage(v); msg != "" {
					return withLocation(msg, obj["loc"])
				}
			}
		}
		return compact(raw)

	default:
		return compact(raw)
	}
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// withLocation prefixes a validation message with the offending field, as
// in {"loc": ["body", "planned_return_date"], "msg": "..."}.
func withLocation(msg string, loc json.RawMessage) string {
	if len(loc) == 0 {
		return msg
	}
	var parts []any
	if err := json.Unmarshal(loc, &parts); err != nil || len(parts) == 0 {
		return msg
	}
	field := fmt.Sprint(parts[len(parts)-1])
	if field == "body" || field == "" {
		return msg
	}
	return field + ": " + msg
}

func fallback(statusCode int) string {
	if text := http.StatusText(statusCode); text != "" {
		return text
	}
	return fmt.Sprintf("unexpected status code: %d", statusCode)
}
