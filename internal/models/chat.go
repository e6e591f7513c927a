package models

import "time"

// ChatUser identifies the author of a chat message.
type ChatUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty"`
	Verified    bool   `json:"verified"`
	Moderator   bool   `json:"moderator"`
}

// LiveChatMessage is one message in a broadcast's chat channel.
type LiveChatMessage struct {
	ID                string         `json:"id"`
	User              ChatUser       `json:"user"`
	Message           string         `json:"message"`
	Timestamp         time.Time      `json:"timestamp"`
	IsStreamerMessage bool           `json:"is_streamer_message"`
	IsPinned          bool           `json:"is_pinned"`
	ReplyTo           string         `json:"reply_to,omitempty"`
	Reactions         map[string]int `json:"reactions,omitempty"`
}
