// Package session carries the identifiers shared read-only between managers:
// which broadcast a manager is working on and which participant it acts for.
package session

import "time"

// BroadcastContext identifies one broadcast/match. Immutable once constructed.
type BroadcastContext struct {
	BroadcastID string
	ChannelID   string
	StartTime   *time.Time
	EndTime     *time.Time
}

// NewBroadcastContext creates a context for a broadcast id.
func NewBroadcastContext(broadcastID string) BroadcastContext {
	return BroadcastContext{BroadcastID: broadcastID}
}

// Equal reports context equality. Only BroadcastID participates; the legacy
// alias fields (channel, times) must not affect equality.
func (b BroadcastContext) Equal(other BroadcastContext) bool {
	return b.BroadcastID == other.BroadcastID
}

// SessionContext is the per-device participant identity for one broadcast.
type SessionContext struct {
	Broadcast BroadcastContext
	UserID    string
}

// NewSessionContext binds a participant identity to a broadcast. An empty
// userID falls back to the process-wide anonymous identity.
func NewSessionContext(broadcast BroadcastContext, userID string) SessionContext {
	if userID == "" {
		userID = AnonymousID()
	}
	return SessionContext{Broadcast: broadcast, UserID: userID}
}
