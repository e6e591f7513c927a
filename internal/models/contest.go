package models

import "time"

// ContestType is the closed set of contest kinds.
type ContestType string

const (
	ContestTypeQuiz     ContestType = "quiz"
	ContestTypeGiveaway ContestType = "giveaway"
)

// Contest is a quiz or giveaway attached to a broadcast. Same activation
// semantics as Poll but without options.
type Contest struct {
	ID             string      `json:"id"`
	BroadcastID    string      `json:"broadcast_id"`
	Title          string      `json:"title"`
	Description    string      `json:"description,omitempty"`
	Prize          string      `json:"prize,omitempty"`
	ContestType    ContestType `json:"contest_type"`
	StartTime      *time.Time  `json:"start_time,omitempty"`
	EndTime        *time.Time  `json:"end_time,omitempty"`
	VideoStartTime *float64    `json:"video_start_time,omitempty"`
	VideoEndTime   *float64    `json:"video_end_time,omitempty"`
	IsActive       bool        `json:"is_active"`
}
