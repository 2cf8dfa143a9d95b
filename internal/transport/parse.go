package transport

import (
	"encoding/json"
	"strings"
)

// Candidate field names consulted in order when extracting a human-readable
// string from a webhook response body. The first present non-empty string
// wins.
var (
	replyFields = []string{"output", "text", "answer", "reply", "response", "message"}
	errorFields = []string{"errorMessage", "error", "message", "hint"}
)

// parseResponse normalizes a webhook response into a single reply string or
// a remote error. Malformed JSON is an expected response shape: plain-text
// responders degrade gracefully to the raw body, and an empty body is a
// valid empty reply.
func parseResponse(statusCode int, statusText string, body []byte) (string, *Error) {
	if statusCode < 200 || statusCode >= 300 {
		msg := statusText
		if m, ok := extractField(body, errorFields); ok {
			msg = m
		}
		return "", &Error{Kind: KindRemote, Message: msg}
	}

	if m, ok := extractField(body, replyFields); ok {
		return m, nil
	}

	// Bare JSON string responses are used directly.
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s, nil
	}

	// A JSON object with no recognizable reply field keeps its compact form.
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		if compact, err := json.Marshal(obj); err == nil {
			return string(compact), nil
		}
	}

	return strings.TrimSpace(string(body)), nil
}

// extractField parses body as a JSON object and returns the first candidate
// field holding a non-empty string.
func extractField(body []byte, candidates []string) (string, bool) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", false
	}
	for _, name := range candidates {
		if v, ok := obj[name]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}
