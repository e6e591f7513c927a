package engagement

import (
	"sync"
	"time"

	"github.com/violive/liveshow-go/internal/models"
)

// VideoSync holds the single process-wide video playback position (pushed by
// the external player feed) and per-broadcast start-time anchors, and decides
// whether polls/contests are inside their activation window.
type VideoSync struct {
	mu       sync.RWMutex
	position *float64 // last pushed global value, playback seconds
	override *float64 // explicit override, wins over the pushed value
	anchors  map[string]time.Time
}

// NewVideoSync creates an empty video sync tracker.
func NewVideoSync() *VideoSync {
	return &VideoSync{anchors: make(map[string]time.Time)}
}

// UpdatePosition records the player's current playback position.
func (v *VideoSync) UpdatePosition(pos float64) {
	v.mu.Lock()
	v.position = &pos
	v.mu.Unlock()
}

// SetOverride pins the position to an explicit value until ClearOverride.
func (v *VideoSync) SetOverride(pos float64) {
	v.mu.Lock()
	v.override = &pos
	v.mu.Unlock()
}

// ClearOverride removes the explicit position override.
func (v *VideoSync) ClearOverride() {
	v.mu.Lock()
	v.override = nil
	v.mu.Unlock()
}

// SetStartAnchor records when a broadcast's playback clock started. Kept for
// mapping playback offsets to wall-clock time; the window check itself does
// not fall back to wall clock.
func (v *VideoSync) SetStartAnchor(broadcastID string, t time.Time) {
	v.mu.Lock()
	v.anchors[broadcastID] = t
	v.mu.Unlock()
}

// StartAnchor returns the recorded start anchor for a broadcast, if any.
func (v *VideoSync) StartAnchor(broadcastID string) (time.Time, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	t, ok := v.anchors[broadcastID]
	return t, ok
}

// Position returns the effective playback position: the override when set,
// otherwise the last pushed value. ok is false when neither is known.
func (v *VideoSync) Position() (pos float64, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.override != nil {
		return *v.override, true
	}
	if v.position != nil {
		return *v.position, true
	}
	return 0, false
}

// IsPollActive reports whether a poll is currently eligible for display:
// the server kill switch must be on, and when a video window is declared the
// current position must fall within it, bounds inclusive. A declared window
// with no known position is inactive (fail safe).
func (v *VideoSync) IsPollActive(p *models.Poll) bool {
	if p == nil || !p.IsActive {
		return false
	}
	return v.inWindow(p.VideoStartTime, p.VideoEndTime)
}

// IsContestActive applies the same activation rule to a contest.
func (v *VideoSync) IsContestActive(c *models.Contest) bool {
	if c == nil || !c.IsActive {
		return false
	}
	return v.inWindow(c.VideoStartTime, c.VideoEndTime)
}

func (v *VideoSync) inWindow(start, end *float64) bool {
	if start == nil && end == nil {
		return true
	}
	pos, ok := v.Position()
	if !ok {
		return false
	}
	if start != nil && pos < *start {
		return false
	}
	if end != nil && pos > *end {
		return false
	}
	return true
}
