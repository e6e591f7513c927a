package api

import (
	"context"
	"sync"

	"github.com/violive/liveshow-go/internal/models"
)

// DemoEngagement is the offline engagement backend used in the demo
// environment: fixture polls/contests, votes accepted and tallied in memory.
type DemoEngagement struct {
	mu       sync.Mutex
	polls    map[string][]models.Poll
	contests map[string][]models.Contest
	votes    map[string]map[string]string // pollID -> userID -> optionID
}

// NewDemoEngagement creates the fixture backend.
func NewDemoEngagement() *DemoEngagement {
	return &DemoEngagement{
		polls:    make(map[string][]models.Poll),
		contests: make(map[string][]models.Contest),
		votes:    make(map[string]map[string]string),
	}
}

// Seed installs fixtures for a broadcast, replacing any previous ones.
func (d *DemoEngagement) Seed(broadcastID string, polls []models.Poll, contests []models.Contest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.polls[broadcastID] = polls
	d.contests[broadcastID] = contests
}

// Polls returns the fixture polls for a broadcast.
func (d *DemoEngagement) Polls(_ context.Context, broadcastID string) ([]models.Poll, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Poll, len(d.polls[broadcastID]))
	copy(out, d.polls[broadcastID])
	return out, nil
}

// Contests returns the fixture contests for a broadcast.
func (d *DemoEngagement) Contests(_ context.Context, broadcastID string) ([]models.Contest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Contest, len(d.contests[broadcastID]))
	copy(out, d.contests[broadcastID])
	return out, nil
}

// Vote records a vote, enforcing one vote per user per poll like the live API.
func (d *DemoEngagement) Vote(_ context.Context, pollID, optionID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.votes[pollID] == nil {
		d.votes[pollID] = make(map[string]string)
	}
	if _, voted := d.votes[pollID][userID]; voted {
		return ErrAlreadyVoted
	}
	d.votes[pollID][userID] = optionID
	return nil
}

// Participate accepts every contest participation.
func (d *DemoEngagement) Participate(_ context.Context, _, _ string, _ map[string]string) error {
	return nil
}
