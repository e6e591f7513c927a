// Package analytics is the narrow interface the core emits named events with
// property maps through. Delivery mechanics belong to the host.
package analytics

import "go.uber.org/zap"

// Tracker receives named analytics events. Implementations must not block;
// the core calls Track from event-handling paths.
type Tracker interface {
	Track(event string, props map[string]interface{})
}

// Nop discards every event.
type Nop struct{}

func (Nop) Track(string, map[string]interface{}) {}

// Logger is a Tracker that writes events to a zap logger.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a log-backed tracker.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

func (l *Logger) Track(event string, props map[string]interface{}) {
	l.logger.Info("analytics event", zap.String("event", event), zap.Any("props", props))
}
