package sse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SSE field prefixes per the W3C specification.
const (
	fieldEvent = "event:"
	fieldData  = "data:"
)

// FormatFrame formats a single SSE frame with an event type and a JSON
// data payload. Multiline payloads are split into repeated data: fields.
func FormatFrame(eventType string, data any) (string, error) {
	if strings.ContainsAny(eventType, "\r\n") {
		return "", fmt.Errorf("sse: invalid event type %q", eventType)
	}

	payload, err := encodeData(data)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if eventType != "" {
		sb.WriteString(fieldEvent)
		sb.WriteByte(' ')
		sb.WriteString(eventType)
		sb.WriteByte('\n')
	}
	for _, line := range strings.Split(payload, "\n") {
		sb.WriteString(fieldData)
		sb.WriteByte(' ')
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	return sb.String(), nil
}

// encodeData converts a frame payload to its wire string. Strings and raw
// bytes pass through; everything else is JSON encoded.
func encodeData(data any) (string, error) {
	switch v := data.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("sse: marshal event data: %w", err)
		}
		return string(b), nil
	}
}
