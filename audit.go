package hackauth

import (
	"io"

	"github.com/sirupsen/logrus"

	internalaudit "github.com/hackforge/hackauth/internal/audit"
)

// AuditEvent is one security-relevant occurrence emitted by the Engine.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine. Emit must not
// block for long; a slow sink fills the buffer and events are dropped when
// Config.Audit.DropIfFull is set.
type AuditSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// MultiSink fans events out to several sinks in order.
type MultiSink = internalaudit.MultiSink

// NewChannelSink returns a sink that writes events into a buffered channel.
func NewChannelSink(buffer int) *internalaudit.ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *internalaudit.JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogrusSink returns a sink that logs each event as a structured entry.
func NewLogrusSink(logger logrus.FieldLogger) *internalaudit.LogrusSink {
	return internalaudit.NewLogrusSink(logger)
}
