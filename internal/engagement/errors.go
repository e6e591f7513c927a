package engagement

import "errors"

// Caller-actionable outcomes. Not-found, closed and already-voted are raised
// synchronously from local checks; VoteFailed/ParticipationFailed only wrap a
// backend call that itself failed.
var (
	ErrPollNotFound        = errors.New("engagement: poll not found")
	ErrPollClosed          = errors.New("engagement: poll closed")
	ErrAlreadyVoted        = errors.New("engagement: already voted")
	ErrContestNotFound     = errors.New("engagement: contest not found")
	ErrVoteFailed          = errors.New("engagement: vote failed")
	ErrParticipationFailed = errors.New("engagement: participation failed")
)
