package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeName converts a stage or step name to NFC.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// marshalSuppressed converts suppressed fault messages to JSON TEXT.
// A nil slice is stored as "[]" so the column is never NULL.
func marshalSuppressed(msgs []string) (string, error) {
	if len(msgs) == 0 {
		return "[]", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // fault text is shown verbatim
	if err := enc.Encode(msgs); err != nil {
		return "", fmt.Errorf("marshal suppressed: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalSuppressed parses JSON TEXT written by marshalSuppressed.
// Returns an empty slice (not nil) when nothing was suppressed.
func unmarshalSuppressed(data string) ([]string, error) {
	msgs := []string{}
	if data == "" || data == "[]" {
		return msgs, nil
	}
	if err := json.Unmarshal([]byte(data), &msgs); err != nil {
		return nil, fmt.Errorf("unmarshal suppressed: %w", err)
	}
	return msgs, nil
}
