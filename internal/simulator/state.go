// Package simulator is a local development backend for the client: the three
// HTTP APIs (streams, engagement, chat) plus the socket endpoint, backed by
// in-memory state.
package simulator

import (
	"sync"
	"time"

	"github.com/violive/liveshow-go/internal/models"
)

// State holds the simulator's in-memory world.
type State struct {
	mu       sync.Mutex
	streams  map[int64]*models.LiveStream
	polls    map[string][]*models.Poll    // broadcastID
	contests map[string][]*models.Contest // broadcastID
	votes    map[string]map[string]string // pollID -> userID -> optionID
	chat     map[string][]models.LiveChatMessage
}

// NewState creates empty simulator state.
func NewState() *State {
	return &State{
		streams:  make(map[int64]*models.LiveStream),
		polls:    make(map[string][]*models.Poll),
		contests: make(map[string][]*models.Contest),
		votes:    make(map[string]map[string]string),
		chat:     make(map[string][]models.LiveChatMessage),
	}
}

// AddStream seeds or replaces a stream.
func (s *State) AddStream(stream models.LiveStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[stream.ID] = &stream
}

// Streams returns all seeded streams; live filters to broadcasting ones.
func (s *State) Streams(liveOnly bool) []models.LiveStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LiveStream, 0, len(s.streams))
	for _, st := range s.streams {
		if liveOnly && !st.IsLive {
			continue
		}
		out = append(out, *st)
	}
	return out
}

// Stream returns one stream by id.
func (s *State) Stream(id int64) (models.LiveStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[id]
	if !ok {
		return models.LiveStream{}, false
	}
	return *st, true
}

// SetLive flips a stream's live flag and returns the updated snapshot.
func (s *State) SetLive(id int64, live bool) (models.LiveStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[id]
	if !ok {
		return models.LiveStream{}, false
	}
	st.IsLive = live
	if live {
		st.StartTime = time.Now()
		st.EndTime = nil
	} else {
		now := time.Now()
		st.EndTime = &now
	}
	return *st, true
}

// AddPoll seeds a poll for a broadcast.
func (s *State) AddPoll(p models.Poll) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[p.BroadcastID] = append(s.polls[p.BroadcastID], &p)
}

// AddContest seeds a contest for a broadcast.
func (s *State) AddContest(c models.Contest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests[c.BroadcastID] = append(s.contests[c.BroadcastID], &c)
}

// Polls returns the polls for a broadcast.
func (s *State) Polls(broadcastID string) []models.Poll {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Poll, 0, len(s.polls[broadcastID]))
	for _, p := range s.polls[broadcastID] {
		out = append(out, *p)
	}
	return out
}

// Contests returns the contests for a broadcast.
func (s *State) Contests(broadcastID string) []models.Contest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Contest, 0, len(s.contests[broadcastID]))
	for _, c := range s.contests[broadcastID] {
		out = append(out, *c)
	}
	return out
}

// VoteOutcome is the result of a vote attempt, mirroring the API's status
// code semantics.
type VoteOutcome int

const (
	VoteOK VoteOutcome = iota
	VoteNotFound
	VoteAlreadyVoted
	VoteClosed
)

// Vote records a vote with one-vote-per-user semantics.
func (s *State) Vote(pollID, optionID, userID string) VoteOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	var poll *models.Poll
	for _, ps := range s.polls {
		for _, p := range ps {
			if p.ID == pollID {
				poll = p
			}
		}
	}
	if poll == nil {
		return VoteNotFound
	}
	if !poll.IsActive {
		return VoteClosed
	}
	if s.votes[pollID] == nil {
		s.votes[pollID] = make(map[string]string)
	}
	if _, ok := s.votes[pollID][userID]; ok {
		return VoteAlreadyVoted
	}
	s.votes[pollID][userID] = optionID
	for i := range poll.Options {
		if poll.Options[i].ID == optionID {
			poll.Options[i].VoteCount++
		}
	}
	poll.TotalVotes++
	return VoteOK
}

// HasContest reports whether a contest id exists.
func (s *State) HasContest(contestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cs := range s.contests {
		for _, c := range cs {
			if c.ID == contestID {
				return true
			}
		}
	}
	return false
}

// AppendChat stores a chat message in a channel's history.
func (s *State) AppendChat(channel string, msg models.LiveChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat[channel] = append(s.chat[channel], msg)
}

// ChatHistory returns a channel's full history.
func (s *State) ChatHistory(channel string) []models.LiveChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LiveChatMessage, len(s.chat[channel]))
	copy(out, s.chat[channel])
	return out
}
