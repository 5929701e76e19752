package apierr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// payloadKeys are tried in order on an object payload.
var payloadKeys = []string{"detail", "message", "error"}

// entryKeys are tried in order on each element of a field-level error list.
var entryKeys = []string{"msg", "message", "detail", "error"}

const maxPlainTextLen = 300

// FromResponse builds an *Error from a non-2xx HTTP response.
func FromResponse(status int, body []byte) *Error {
	msg := MessageFromPayload(body)
	if msg == "" {
		msg = fmt.Sprintf("Error %d: %s", status, http.StatusText(status))
	}

	kind := KindServer
	switch {
	case status == http.StatusUnauthorized:
		kind = KindAuth
	case IsAntiForgery(status, msg):
		kind = KindAntiForgery
	}

	return &Error{Kind: kind, Status: status, Message: msg}
}

// IsAntiForgery reports whether a response is a CSRF rejection rather than
// a plain permission failure.
func IsAntiForgery(status int, msg string) bool {
	return status == http.StatusForbidden && strings.Contains(strings.ToUpper(msg), "CSRF")
}

// MessageFromPayload extracts one display string from an error body.
// Supported shapes: a JSON string, an object whose detail/message/error field
// is a string, an object or a list of field errors ({"msg": ...}), a bare
// list, or short plain text. List entries are joined with ", ". Returns ""
// when nothing usable is found.
func MessageFromPayload(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		if strings.HasPrefix(trimmed, "<") || len(trimmed) > maxPlainTextLen {
			return ""
		}
		return trimmed
	}

	if m, ok := v.(map[string]any); ok {
		for _, k := range payloadKeys {
			if s := extract(m[k]); s != "" {
				return s
			}
		}
		return ""
	}
	return extract(v)
}

func extract(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			if s := extract(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		for _, k := range entryKeys {
			if s := extract(value[k]); s != "" {
				return s
			}
		}
	}
	return ""
}
