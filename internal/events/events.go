// Package events defines the closed set of server event kinds carried by the
// real-time transport and decodes wire frames into typed domain events.
package events

import (
	"time"

	"github.com/violive/liveshow-go/internal/models"
)

// Kind enumerates the server-defined event taxonomy.
type Kind string

const (
	KindStreamStarted        Kind = "stream_started"
	KindStreamEnded          Kind = "stream_ended"
	KindStreamStatusChanged  Kind = "stream_status_changed"
	KindChatMessage          Kind = "chat_message"
	KindViewerCountChanged   Kind = "viewer_count_changed"
	KindProductHighlighted   Kind = "product_highlighted"
	KindComponentActivated   Kind = "component_activated"
	KindComponentDeactivated Kind = "component_deactivated"
	KindRawChatPost          Kind = "raw_chat_post"
	KindDeletePinnedMessage  Kind = "delete_pinned_message"
)

// StreamStatusChange is the payload of stream_status_changed. Optional fields
// are pointers so a count/flag-only update is distinguishable from a URL change.
type StreamStatusChange struct {
	VideoURL       string `json:"video_url"`
	ViewerCount    *int   `json:"viewer_count,omitempty"`
	IsBroadcasting *bool  `json:"is_broadcasting,omitempty"`
}

// ViewerCountChange is the payload of viewer_count_changed.
type ViewerCountChange struct {
	Count int `json:"count"`
}

// ProductHighlight is the payload of product_highlighted.
type ProductHighlight struct {
	Product models.FeaturedProduct `json:"product"`
}

// ComponentChange is the payload of component_activated/component_deactivated:
// the server toggling a poll or contest window remotely.
type ComponentChange struct {
	ComponentType string `json:"component_type"` // "poll" or "contest"
	ComponentID   string `json:"component_id"`
	BroadcastID   string `json:"broadcast_id,omitempty"`
}

// RawChatPost is the payload of raw_chat_post: a serialized outbound chat
// message echoed back by the transport before chat-backend admission.
type RawChatPost struct {
	ChannelID string `json:"channel_id"`
	Body      string `json:"body"`
}

// DeletePinnedMessage is the payload of delete_pinned_message. The protocol
// carries no message id; correlation is by user id plus timestamp.
type DeletePinnedMessage struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is one decoded server event. Kind selects which payload pointer is
// non-nil; all other payload fields are nil.
type Event struct {
	Kind      Kind
	StreamID  int64
	Timestamp time.Time

	Stream       *models.LiveStream
	StatusChange *StreamStatusChange
	Chat         *models.LiveChatMessage
	ViewerCount  *ViewerCountChange
	Product      *ProductHighlight
	Component    *ComponentChange
	RawChat      *RawChatPost
	DeletePinned *DeletePinnedMessage
}
