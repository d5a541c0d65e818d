// Package sse provides Server-Sent Events fan-out for the API server.
// Frames follow the W3C event-stream format: "event: <type>\ndata: <json>\n\n".
package sse

import (
	"errors"
	"time"
)

// ContentTypeEventStream is the MIME type for SSE responses.
const ContentTypeEventStream = "text/event-stream"

// DefaultHeartbeatInterval is used when no interval is configured.
const DefaultHeartbeatInterval = 30 * time.Second

// Well-known frame types emitted by the manager itself.
const (
	// EventConnected is sent once when a connection is registered.
	EventConnected = "connected"
	// EventHeartbeat is sent at the configured interval on every connection.
	EventHeartbeat = "heartbeat"
)

// Errors.
var (
	// ErrStreamingUnsupported indicates the response writer cannot flush.
	ErrStreamingUnsupported = errors.New("sse: streaming not supported")

	// ErrConnectionClosed indicates a write to a closed connection.
	ErrConnectionClosed = errors.New("sse: connection closed")
)
