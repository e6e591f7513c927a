package models

import "time"

// ChatTailLimit caps the per-stream chat excerpt; oldest messages are evicted first.
const ChatTailLimit = 100

// Streamer describes the broadcaster of a live stream.
type Streamer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Verified  bool   `json:"verified"`
}

// FeaturedProduct is a product pinned to a live stream for purchase.
type FeaturedProduct struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	ImageURL    string  `json:"image_url,omitempty"`
	ProductURL  string  `json:"product_url,omitempty"`
	Highlighted bool    `json:"highlighted"`
}

// LiveStream is one broadcast's live-show state. ViewerCount is
// server-authoritative and overwritten wholesale on every update.
type LiveStream struct {
	ID               int64             `json:"id"`
	ChannelID        string            `json:"channel_id,omitempty"`
	Title            string            `json:"title"`
	Streamer         Streamer          `json:"streamer"`
	VideoURL         string            `json:"video_url"`
	ThumbnailURL     string            `json:"thumbnail_url,omitempty"`
	ViewerCount      int               `json:"viewer_count"`
	IsLive           bool              `json:"is_live"`
	StartTime        time.Time         `json:"start_time"`
	EndTime          *time.Time        `json:"end_time,omitempty"`
	ChatMessages     []LiveChatMessage `json:"chat_messages,omitempty"`
	FeaturedProducts []FeaturedProduct `json:"featured_products,omitempty"`
}

// AppendChatMessage appends to the bounded chat tail, evicting the oldest
// message once the tail exceeds ChatTailLimit.
func (s *LiveStream) AppendChatMessage(msg LiveChatMessage) {
	s.ChatMessages = append(s.ChatMessages, msg)
	if len(s.ChatMessages) > ChatTailLimit {
		s.ChatMessages = s.ChatMessages[len(s.ChatMessages)-ChatTailLimit:]
	}
}
