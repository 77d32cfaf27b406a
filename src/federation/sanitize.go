package federation

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/deepgram/wsh/src/session"
)

// Sanitization of responses received from remote backends. Proxied data is
// untrusted: structure is validated and size bounded before anything is
// forwarded to a client.

var sanitizeJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// maxProxiedSessions bounds a proxied session list.
const maxProxiedSessions = 1000

// MaxProxyResponseBytes bounds any proxied JSON body.
const MaxProxyResponseBytes = 4 * 1024 * 1024

// allowedSessionFields is the allow-list of fields kept on proxied session
// objects.
var allowedSessionFields = []string{
	"name", "pid", "command", "rows", "cols", "clients", "tags", "server",
	"last_activity_ms",
}

// SanitizeSessionList validates and strips a session-list response from a
// remote backend: it must be a JSON array of at most 1000 objects, each
// with a valid name; unknown fields are dropped.
func SanitizeSessionList(raw []byte) ([]byte, error) {
	var arr []map[string]any
	if err := sanitizeJSON.Unmarshal(raw, &arr); err != nil {
		return nil, fmt.Errorf("session list must be an array of objects: %w", err)
	}
	if len(arr) > maxProxiedSessions {
		return nil, fmt.Errorf("session list exceeds maximum of %d entries (got %d)",
			maxProxiedSessions, len(arr))
	}

	sanitized := make([]map[string]any, 0, len(arr))
	for i, obj := range arr {
		name, ok := obj["name"].(string)
		if !ok {
			return nil, fmt.Errorf("session list entry %d missing 'name' string field", i)
		}
		if !session.ValidName(name) {
			display := name
			if len(display) > 50 {
				display = display[:50]
			}
			return nil, fmt.Errorf("session list entry %d has invalid name: '%s'", i, display)
		}
		clean := make(map[string]any, len(allowedSessionFields))
		for _, field := range allowedSessionFields {
			if v, present := obj[field]; present {
				clean[field] = v
			}
		}
		sanitized = append(sanitized, clean)
	}
	return sanitizeJSON.Marshal(sanitized)
}

// SanitizeProxyResponse validates a generic proxied JSON body: the root
// must be an object or array and the serialized size must stay within
// maxSize bytes. Returns the body unchanged when valid.
func SanitizeProxyResponse(raw []byte, maxSize int) ([]byte, error) {
	if len(raw) > maxSize {
		return nil, fmt.Errorf("proxy response exceeds maximum size of %d bytes (got %d)",
			maxSize, len(raw))
	}
	var value any
	if err := sanitizeJSON.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("proxy response is not valid JSON: %w", err)
	}
	switch value.(type) {
	case map[string]any, []any:
		return raw, nil
	}
	return nil, fmt.Errorf("proxy response must be an object or array")
}
