// Package engagement tracks polls and contests per broadcast, computes which
// are currently active against the video position, and applies optimistic
// vote/participation updates before the backend round trip resolves.
package engagement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/violive/liveshow-go/internal/events"
	"github.com/violive/liveshow-go/internal/models"
	"github.com/violive/liveshow-go/internal/participation"
	"github.com/violive/liveshow-go/internal/session"
	"github.com/violive/liveshow-go/pkg/analytics"
)

// Backend is the engagement API surface the manager calls. The live HTTP
// client and the offline demo backend both satisfy it.
type Backend interface {
	Polls(ctx context.Context, broadcastID string) ([]models.Poll, error)
	Contests(ctx context.Context, broadcastID string) ([]models.Contest, error)
	Vote(ctx context.Context, pollID, optionID, userID string) error
	Participate(ctx context.Context, contestID, userID string, answers map[string]string) error
}

// pendingVote is the reconciliation record for an optimistic vote. The
// original product behavior never rolls an optimistic vote back; the record
// exists so a future reconciler can confirm or revert.
type pendingVote struct {
	PollID    string
	OptionID  string
	AppliedAt time.Time
	Confirmed bool
}

// Manager owns per-broadcast polls/contests and the participation record.
type Manager struct {
	logger    *zap.Logger
	videoSync *VideoSync
	record    *participation.Record
	tracker   analytics.Tracker

	selectBackend func() Backend
	backendOnce   sync.Once
	backend       Backend

	mu           sync.RWMutex
	polls        map[string]map[string]*models.Poll    // broadcastID -> pollID
	contests     map[string]map[string]*models.Contest // broadcastID -> contestID
	results      map[string]*models.PollResults        // pollID
	pendingVotes map[string]pendingVote                // pollID
}

// NewManager creates an engagement manager. selectBackend runs once, lazily,
// on first load, so environment selection happens when engagement is first
// needed rather than at construction.
func NewManager(selectBackend func() Backend, videoSync *VideoSync, record *participation.Record, tracker analytics.Tracker, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	return &Manager{
		logger:        logger,
		videoSync:     videoSync,
		record:        record,
		tracker:       tracker,
		selectBackend: selectBackend,
		polls:         make(map[string]map[string]*models.Poll),
		contests:      make(map[string]map[string]*models.Contest),
		results:       make(map[string]*models.PollResults),
		pendingVotes:  make(map[string]pendingVote),
	}
}

// VideoSync exposes the activity computation for read-only consumers.
func (m *Manager) VideoSync() *VideoSync {
	return m.videoSync
}

func (m *Manager) backendFor() Backend {
	m.backendOnce.Do(func() {
		m.backend = m.selectBackend()
	})
	return m.backend
}

// LoadEngagement fetches polls and contests for the broadcast and stores them
// keyed by broadcast id. Poll results are seeded from the embedded option
// counts so display never has an unknown gap. A fetch failure leaves prior
// state intact.
func (m *Manager) LoadEngagement(ctx context.Context, sctx session.SessionContext) error {
	broadcastID := sctx.Broadcast.BroadcastID
	backend := m.backendFor()

	polls, err := backend.Polls(ctx, broadcastID)
	if err != nil {
		m.logger.Warn("poll fetch failed", zap.String("broadcast_id", broadcastID), zap.Error(err))
		return fmt.Errorf("load polls: %w", err)
	}
	contests, err := backend.Contests(ctx, broadcastID)
	if err != nil {
		m.logger.Warn("contest fetch failed", zap.String("broadcast_id", broadcastID), zap.Error(err))
		return fmt.Errorf("load contests: %w", err)
	}

	m.mu.Lock()
	pollsByID := make(map[string]*models.Poll, len(polls))
	for i := range polls {
		p := polls[i]
		if p.BroadcastID == "" {
			p.BroadcastID = broadcastID
		}
		pollsByID[p.ID] = &p
		m.results[p.ID] = models.ResultsFromPoll(&p)
	}
	contestsByID := make(map[string]*models.Contest, len(contests))
	for i := range contests {
		c := contests[i]
		if c.BroadcastID == "" {
			c.BroadcastID = broadcastID
		}
		contestsByID[c.ID] = &c
	}
	m.polls[broadcastID] = pollsByID
	m.contests[broadcastID] = contestsByID
	m.mu.Unlock()

	m.logger.Info("engagement loaded",
		zap.String("broadcast_id", broadcastID),
		zap.Int("polls", len(polls)),
		zap.Int("contests", len(contests)))
	return nil
}

// Polls returns a snapshot of the loaded polls for a broadcast. Copies, not
// the manager-owned entries: votes and component toggles mutate those under
// the lock.
func (m *Manager) Polls(broadcastID string) []models.Poll {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Poll, 0, len(m.polls[broadcastID]))
	for _, p := range m.polls[broadcastID] {
		cp := *p
		cp.Options = append([]models.PollOption(nil), p.Options...)
		out = append(out, cp)
	}
	return out
}

// Contests returns a snapshot of the loaded contests for a broadcast.
func (m *Manager) Contests(broadcastID string) []models.Contest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Contest, 0, len(m.contests[broadcastID]))
	for _, c := range m.contests[broadcastID] {
		out = append(out, *c)
	}
	return out
}

// ActivePolls returns the polls currently eligible for display.
func (m *Manager) ActivePolls(broadcastID string) []models.Poll {
	var out []models.Poll
	for _, p := range m.Polls(broadcastID) {
		if m.videoSync.IsPollActive(&p) {
			out = append(out, p)
		}
	}
	return out
}

// ActiveContests returns the contests currently eligible for display.
func (m *Manager) ActiveContests(broadcastID string) []models.Contest {
	var out []models.Contest
	for _, c := range m.Contests(broadcastID) {
		if m.videoSync.IsContestActive(&c) {
			out = append(out, c)
		}
	}
	return out
}

// Results returns a snapshot of the derived tally for a poll, if loaded.
func (m *Manager) Results(pollID string) (models.PollResults, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[pollID]
	if !ok {
		return models.PollResults{}, false
	}
	cp := *r
	cp.Options = append([]models.OptionResult(nil), r.Options...)
	return cp, true
}

// HasVotedInPoll is a pure read against the participation record.
func (m *Manager) HasVotedInPoll(pollID string) bool {
	return m.record.HasVoted(pollID)
}

// HasParticipatedInContest is a pure read against the participation record.
func (m *Manager) HasParticipatedInContest(contestID string) bool {
	return m.record.HasParticipated(contestID)
}

// VoteInPoll validates locally, records participation synchronously, applies
// the optimistic result update and then notifies the backend detached from
// the caller. A backend failure is logged and does not roll back the
// optimistic state.
func (m *Manager) VoteInPoll(ctx context.Context, pollID, optionID string, sctx session.SessionContext) error {
	broadcastID := sctx.Broadcast.BroadcastID

	m.mu.Lock()
	poll, ok := m.polls[broadcastID][pollID]
	if !ok {
		m.mu.Unlock()
		return ErrPollNotFound
	}
	if !m.videoSync.IsPollActive(poll) {
		m.mu.Unlock()
		return ErrPollClosed
	}
	// Re-check here as well: UI gating may have raced.
	if m.record.HasVoted(pollID) {
		m.mu.Unlock()
		return ErrAlreadyVoted
	}

	m.record.RecordVote(ctx, pollID, optionID)
	m.applyVoteLocked(poll, optionID)
	m.pendingVotes[pollID] = pendingVote{PollID: pollID, OptionID: optionID, AppliedAt: time.Now()}
	m.mu.Unlock()

	m.tracker.Track("poll_vote", map[string]interface{}{
		"broadcast_id": broadcastID,
		"poll_id":      pollID,
		"option_id":    optionID,
	})

	go func() {
		if err := m.backendFor().Vote(context.Background(), pollID, optionID, sctx.UserID); err != nil {
			m.logger.Warn("vote backend call failed, keeping optimistic state",
				zap.String("poll_id", pollID), zap.Error(err))
			return
		}
		m.mu.Lock()
		if pv, ok := m.pendingVotes[pollID]; ok {
			pv.Confirmed = true
			m.pendingVotes[pollID] = pv
		}
		m.mu.Unlock()
	}()
	return nil
}

// applyVoteLocked increments the chosen option and total, then recomputes all
// percentages. Callers hold m.mu.
func (m *Manager) applyVoteLocked(poll *models.Poll, optionID string) {
	for i := range poll.Options {
		if poll.Options[i].ID == optionID {
			poll.Options[i].VoteCount++
			break
		}
	}
	poll.TotalVotes++

	r, ok := m.results[poll.ID]
	if !ok {
		r = models.ResultsFromPoll(poll)
		m.results[poll.ID] = r
		return
	}
	for i := range r.Options {
		if r.Options[i].OptionID == optionID {
			r.Options[i].VoteCount++
			break
		}
	}
	r.TotalVotes++
	r.Recompute()

	for i := range poll.Options {
		for _, opt := range r.Options {
			if poll.Options[i].ID == opt.OptionID {
				poll.Options[i].Percentage = opt.Percentage
			}
		}
	}
}

// ParticipateInContest records participation locally and notifies the backend
// detached from the caller; a backend failure is logged only.
func (m *Manager) ParticipateInContest(ctx context.Context, contestID string, sctx session.SessionContext, answers map[string]string) error {
	broadcastID := sctx.Broadcast.BroadcastID

	m.mu.RLock()
	_, ok := m.contests[broadcastID][contestID]
	m.mu.RUnlock()
	if !ok {
		return ErrContestNotFound
	}
	if m.record.HasParticipated(contestID) {
		return nil
	}

	m.record.RecordParticipation(ctx, contestID)
	m.tracker.Track("contest_participation", map[string]interface{}{
		"broadcast_id": broadcastID,
		"contest_id":   contestID,
	})

	go func() {
		if err := m.backendFor().Participate(context.Background(), contestID, sctx.UserID, answers); err != nil {
			m.logger.Warn("contest backend call failed, keeping local participation",
				zap.String("contest_id", contestID), zap.Error(err))
		}
	}()
	return nil
}

// Run consumes transport events until ctx is done. The manager reacts to the
// server-side component kill switch (component_activated/deactivated).
func (m *Manager) Run(ctx context.Context, evs <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			m.HandleEvent(ev)
		}
	}
}

// HandleEvent applies one transport event. Only component toggles concern
// this manager; everything else is ignored.
func (m *Manager) HandleEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindComponentActivated:
		m.setComponentActive(ev.Component, true)
	case events.KindComponentDeactivated:
		m.setComponentActive(ev.Component, false)
	}
}

func (m *Manager) setComponentActive(cc *events.ComponentChange, active bool) {
	if cc == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch cc.ComponentType {
	case "poll":
		for _, byID := range m.polls {
			if p, ok := byID[cc.ComponentID]; ok {
				p.IsActive = active
			}
		}
	case "contest":
		for _, byID := range m.contests {
			if c, ok := byID[cc.ComponentID]; ok {
				c.IsActive = active
			}
		}
	default:
		m.logger.Debug("unknown component type ignored", zap.String("component_type", cc.ComponentType))
	}
}
