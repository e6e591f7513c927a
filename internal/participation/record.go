// Package participation keeps the per-device bookkeeping of which polls were
// voted on and which contests were entered. The record is loaded from the
// key/value store on construction and written back after every mutation.
package participation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/violive/liveshow-go/pkg/storage"
)

const storeKey = "liveshow:participation"

// persisted is the JSON shape written to the store. The voted-poll set is not
// stored separately: it is exactly the key set of Votes, which keeps the
// set/map invariant structural.
type persisted struct {
	Votes    map[string]string `json:"votes"` // pollID -> chosen optionID
	Contests []string          `json:"contests"`
}

// Record is the per-device participation record.
type Record struct {
	mu       sync.Mutex
	store    storage.Store
	logger   *zap.Logger
	votes    map[string]string
	contests map[string]struct{}
}

// NewRecord loads the participation record from the store. A missing or
// corrupt persisted value starts an empty record.
func NewRecord(ctx context.Context, store storage.Store, logger *zap.Logger) *Record {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Record{
		store:    store,
		logger:   logger,
		votes:    make(map[string]string),
		contests: make(map[string]struct{}),
	}
	raw, err := store.Get(ctx, storeKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("participation record load failed", zap.Error(err))
		}
		return r
	}
	var p persisted
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		logger.Warn("participation record corrupt, starting empty", zap.Error(err))
		return r
	}
	if p.Votes != nil {
		r.votes = p.Votes
	}
	for _, id := range p.Contests {
		r.contests[id] = struct{}{}
	}
	return r
}

// HasVoted reports whether this device already voted in the poll.
func (r *Record) HasVoted(pollID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.votes[pollID]
	return ok
}

// VotedOption returns the option chosen for a poll, if any.
func (r *Record) VotedOption(pollID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	opt, ok := r.votes[pollID]
	return opt, ok
}

// RecordVote stores a vote and persists the record.
func (r *Record) RecordVote(ctx context.Context, pollID, optionID string) {
	r.mu.Lock()
	r.votes[pollID] = optionID
	r.flushLocked(ctx)
	r.mu.Unlock()
}

// HasParticipated reports whether this device already entered the contest.
func (r *Record) HasParticipated(contestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.contests[contestID]
	return ok
}

// RecordParticipation stores a contest entry and persists the record.
func (r *Record) RecordParticipation(ctx context.Context, contestID string) {
	r.mu.Lock()
	r.contests[contestID] = struct{}{}
	r.flushLocked(ctx)
	r.mu.Unlock()
}

// Reset clears the record and the persisted value. Explicit use only.
func (r *Record) Reset(ctx context.Context) {
	r.mu.Lock()
	r.votes = make(map[string]string)
	r.contests = make(map[string]struct{})
	if err := r.store.Delete(ctx, storeKey); err != nil {
		r.logger.Warn("participation record reset failed", zap.Error(err))
	}
	r.mu.Unlock()
}

// flushLocked persists the record. Callers hold r.mu.
func (r *Record) flushLocked(ctx context.Context) {
	p := persisted{Votes: r.votes, Contests: make([]string, 0, len(r.contests))}
	for id := range r.contests {
		p.Contests = append(p.Contests, id)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		r.logger.Warn("participation record encode failed", zap.Error(err))
		return
	}
	if err := r.store.Set(ctx, storeKey, string(raw)); err != nil {
		r.logger.Warn("participation record write failed", zap.Error(err))
	}
}
