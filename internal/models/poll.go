package models

import "time"

// PollOption is one selectable answer in a poll. Percentage is derived from
// VoteCount and the poll's TotalVotes, never stored independently.
type PollOption struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	VoteCount  int     `json:"vote_count"`
	Percentage float64 `json:"percentage"`
}

// Poll is a multiple-choice poll attached to a broadcast. The video window
// (VideoStartTime/VideoEndTime, playback seconds) and the wall-clock window
// are both optional; IsActive is a server-set kill switch independent of
// either window.
type Poll struct {
	ID             string       `json:"id"`
	BroadcastID    string       `json:"broadcast_id"`
	Question       string       `json:"question"`
	Options        []PollOption `json:"options"`
	StartTime      *time.Time   `json:"start_time,omitempty"`
	EndTime        *time.Time   `json:"end_time,omitempty"`
	VideoStartTime *float64     `json:"video_start_time,omitempty"`
	VideoEndTime   *float64     `json:"video_end_time,omitempty"`
	IsActive       bool         `json:"is_active"`
	TotalVotes     int          `json:"total_votes"`
}

// OptionResult is the per-option tally within PollResults.
type OptionResult struct {
	OptionID   string  `json:"option_id"`
	VoteCount  int     `json:"vote_count"`
	Percentage float64 `json:"percentage"`
}

// PollResults is the derived tally for one poll.
type PollResults struct {
	PollID     string         `json:"poll_id"`
	TotalVotes int            `json:"total_votes"`
	Options    []OptionResult `json:"options"`
}

// Recompute rederives every option percentage from the vote counts.
// With zero total votes all percentages are zero.
func (r *PollResults) Recompute() {
	for i := range r.Options {
		if r.TotalVotes > 0 {
			r.Options[i].Percentage = float64(r.Options[i].VoteCount) / float64(r.TotalVotes) * 100
		} else {
			r.Options[i].Percentage = 0
		}
	}
}

// ResultsFromPoll seeds PollResults from a poll's embedded option counts.
func ResultsFromPoll(p *Poll) *PollResults {
	r := &PollResults{PollID: p.ID, TotalVotes: p.TotalVotes}
	for _, opt := range p.Options {
		r.Options = append(r.Options, OptionResult{OptionID: opt.ID, VoteCount: opt.VoteCount})
	}
	r.Recompute()
	return r
}
