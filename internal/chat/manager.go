// Package chat keeps per-broadcast chat history with ordering, deduplication,
// a single pinned slot and a persisted retry queue for outbound messages.
package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/violive/liveshow-go/internal/events"
	"github.com/violive/liveshow-go/internal/models"
	"github.com/violive/liveshow-go/pkg/analytics"
	"github.com/violive/liveshow-go/pkg/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const pendingKeyPrefix = "liveshow:chat:pending:"

// Backend is the chat API surface the manager calls.
type Backend interface {
	History(ctx context.Context, channel string, migrated bool) ([]models.LiveChatMessage, error)
	Send(ctx context.Context, payload []byte) error
}

// outboundPayload is the transport payload for one sent message. It is
// serialized once and kept byte-for-byte in the retry queue.
type outboundPayload struct {
	ChannelID string                 `json:"channel_id"`
	Role      string                 `json:"role,omitempty"`
	Message   models.LiveChatMessage `json:"message"`
}

// Manager owns one broadcast chat channel at a time.
type Manager struct {
	logger  *zap.Logger
	backend Backend
	store   storage.Store
	tracker analytics.Tracker

	mu        sync.Mutex
	channel   string
	role      string
	localUser models.ChatUser
	history   []models.LiveChatMessage
	pinned    *models.LiveChatMessage

	// pendingMu serializes the persisted retry queue's read-modify-write;
	// posts run in detached goroutines and would otherwise lose entries.
	pendingMu sync.Mutex
}

// NewManager creates a chat manager.
func NewManager(backend Backend, store storage.Store, tracker analytics.Tracker, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	return &Manager{logger: logger, backend: backend, store: store, tracker: tracker}
}

// Configure binds the manager to one broadcast's chat channel. Must be called
// before LoadChatMessages or SendMessage.
func (m *Manager) Configure(channel, role string) {
	m.mu.Lock()
	m.channel = channel
	m.role = role
	m.mu.Unlock()
	m.logger.Info("chat configured", zap.String("channel", channel), zap.String("role", role))
}

// SetLocalUser sets the identity outbound messages are attributed to. Sending
// is a no-op until a display name is present.
func (m *Manager) SetLocalUser(user models.ChatUser) {
	m.mu.Lock()
	m.localUser = user
	m.mu.Unlock()
}

// Messages returns a snapshot of the normal (non-pinned) history.
func (m *Manager) Messages() []models.LiveChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.LiveChatMessage, len(m.history))
	copy(out, m.history)
	return out
}

// Pinned returns the current pinned message, if any.
func (m *Manager) Pinned() *models.LiveChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pinned == nil {
		return nil
	}
	cp := *m.pinned
	return &cp
}

// LoadChatMessages fetches the full history for a channel, partitions it into
// the pinned slot (last pinned message wins) and the normal history sorted
// ascending by timestamp, and replaces any existing local history wholesale.
func (m *Manager) LoadChatMessages(ctx context.Context, channel string, migrated bool) error {
	m.mu.Lock()
	if m.channel == "" {
		m.mu.Unlock()
		m.logger.Warn("chat load before configure, ignoring")
		return errors.New("chat: not configured")
	}
	m.mu.Unlock()

	msgs, err := m.backend.History(ctx, channel, migrated)
	if err != nil {
		m.logger.Warn("chat history fetch failed", zap.String("channel", channel), zap.Error(err))
		return err
	}

	var pinned *models.LiveChatMessage
	normal := make([]models.LiveChatMessage, 0, len(msgs))
	for i := range msgs {
		if msgs[i].IsPinned {
			pinned = &msgs[i]
			continue
		}
		normal = append(normal, msgs[i])
	}
	sort.SliceStable(normal, func(i, j int) bool {
		return normal[i].Timestamp.Before(normal[j].Timestamp)
	})
	if len(normal) > models.ChatTailLimit {
		normal = normal[len(normal)-models.ChatTailLimit:]
	}

	m.mu.Lock()
	m.history = normal
	m.pinned = pinned
	m.mu.Unlock()
	m.logger.Info("chat history loaded", zap.String("channel", channel), zap.Int("messages", len(normal)))
	return nil
}

// SendMessage builds and posts one outbound message. Without a display name
// the call is a logged no-op. Without a configured channel the message is
// appended locally only, so the sender still sees their own text. A failed
// post is enqueued into the persisted per-channel retry queue; a successful
// post flushes that queue in order, removing only the messages that succeed.
func (m *Manager) SendMessage(ctx context.Context, text string, pinned bool, replyTo string) {
	m.mu.Lock()
	if m.localUser.DisplayName == "" {
		m.mu.Unlock()
		m.logger.Warn("chat send without display name, dropping")
		return
	}

	msg := models.LiveChatMessage{
		ID:                uuid.New().String(),
		User:              m.localUser,
		Message:           text,
		Timestamp:         time.Now(),
		IsStreamerMessage: m.role == "streamer",
		IsPinned:          pinned,
		ReplyTo:           replyTo,
	}
	channel := m.channel
	role := m.role

	// Optimistic local append so the sender sees their own text immediately;
	// the transport echo is absorbed by deduplication.
	if pinned {
		m.pinned = &msg
	} else {
		m.appendLocked(msg)
	}
	m.mu.Unlock()

	if channel == "" {
		m.logger.Warn("chat send without configured channel, local-only")
		return
	}

	payload, err := json.Marshal(outboundPayload{ChannelID: channel, Role: role, Message: msg})
	if err != nil {
		m.logger.Warn("chat payload encode failed", zap.Error(err))
		return
	}

	m.tracker.Track("chat_message_sent", map[string]interface{}{
		"channel": channel,
		"pinned":  pinned,
	})

	go m.post(context.Background(), channel, payload)
}

// post delivers one payload and then services the retry queue.
func (m *Manager) post(ctx context.Context, channel string, payload []byte) {
	if err := m.backend.Send(ctx, payload); err != nil {
		m.logger.Warn("chat send failed, queued for retry", zap.String("channel", channel), zap.Error(err))
		m.enqueuePending(ctx, channel, payload)
		return
	}
	m.flushPending(ctx, channel)
}

// enqueuePending appends a serialized payload to the persisted per-channel
// retry list.
func (m *Manager) enqueuePending(ctx context.Context, channel string, payload []byte) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	key := pendingKeyPrefix + channel
	pending := m.loadPending(ctx, channel)
	pending = append(pending, string(payload))
	raw, err := json.Marshal(pending)
	if err != nil {
		m.logger.Warn("pending queue encode failed", zap.Error(err))
		return
	}
	if err := m.store.Set(ctx, key, string(raw)); err != nil {
		m.logger.Warn("pending queue write failed", zap.Error(err))
	}
}

// flushPending retries all pending messages for a channel in order, keeping
// only the ones that still fail.
func (m *Manager) flushPending(ctx context.Context, channel string) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	pending := m.loadPending(ctx, channel)
	if len(pending) == 0 {
		return
	}
	var remaining []string
	for _, payload := range pending {
		if err := m.backend.Send(ctx, []byte(payload)); err != nil {
			remaining = append(remaining, payload)
			continue
		}
	}
	key := pendingKeyPrefix + channel
	if len(remaining) == 0 {
		if err := m.store.Delete(ctx, key); err != nil {
			m.logger.Warn("pending queue clear failed", zap.Error(err))
		}
		return
	}
	raw, err := json.Marshal(remaining)
	if err != nil {
		return
	}
	if err := m.store.Set(ctx, key, string(raw)); err != nil {
		m.logger.Warn("pending queue write failed", zap.Error(err))
	}
	m.logger.Info("pending chat retries remaining", zap.String("channel", channel), zap.Int("count", len(remaining)))
}

// loadPending reads the persisted retry list. Callers hold m.pendingMu.
func (m *Manager) loadPending(ctx context.Context, channel string) []string {
	raw, err := m.store.Get(ctx, pendingKeyPrefix+channel)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("pending queue read failed", zap.Error(err))
		}
		return nil
	}
	var pending []string
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		m.logger.Warn("pending queue corrupt, dropping", zap.Error(err))
		return nil
	}
	return pending
}

// PendingCount reports how many messages await retry for a channel.
func (m *Manager) PendingCount(ctx context.Context, channel string) int {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return len(m.loadPending(ctx, channel))
}

// ProcessIncomingMessage admits one inbound message: duplicates (same author,
// same text, timestamps within one second) are discarded; pinned messages
// replace the pinned slot; the normal tail is capped at the history limit.
// Returns true when the message was stored.
func (m *Manager) ProcessIncomingMessage(msg models.LiveChatMessage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := correlationKey(msg)
	for i := range m.history {
		if key.Matches(correlationKey(m.history[i])) {
			m.logger.Debug("duplicate chat message discarded",
				zap.String("user_id", msg.User.ID), zap.Time("timestamp", msg.Timestamp))
			return false
		}
	}
	if m.pinned != nil && key.Matches(correlationKey(*m.pinned)) {
		m.logger.Debug("duplicate pinned message discarded", zap.String("user_id", msg.User.ID))
		return false
	}

	if msg.IsPinned {
		m.pinned = &msg
		return true
	}
	m.appendLocked(msg)
	return true
}

// ProcessDeletePinnedMessage clears the pinned slot when the delete event's
// author and timestamp correlate with the currently pinned message.
func (m *Manager) ProcessDeletePinnedMessage(del events.DeletePinnedMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pinned == nil {
		return
	}
	key := CorrelationKey{UserID: del.UserID, Text: m.pinned.Message, Timestamp: del.Timestamp}
	if !key.Matches(correlationKey(*m.pinned)) {
		m.logger.Debug("pinned delete did not correlate, keeping pin",
			zap.String("user_id", del.UserID))
		return
	}
	m.pinned = nil
}

// Run consumes transport events until ctx is done.
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

// HandleEvent applies one transport event. chat_message is deliberately not
// handled here: the stream registry owns its admission (via
// ProcessIncomingMessage) so the message reaches the stream's chat tail
// exactly once.
func (m *Manager) HandleEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindRawChatPost:
		if ev.RawChat != nil {
			m.processRawPost(*ev.RawChat)
		}
	case events.KindDeletePinnedMessage:
		if ev.DeletePinned != nil {
			m.ProcessDeletePinnedMessage(*ev.DeletePinned)
		}
	}
}

// processRawPost decodes a raw transport echo of an outbound payload and runs
// it through normal admission, so our own sends dedup against the optimistic
// local copy.
func (m *Manager) processRawPost(rp events.RawChatPost) {
	var payload outboundPayload
	if err := json.Unmarshal([]byte(rp.Body), &payload); err != nil {
		m.logger.Warn("raw chat post undecodable, dropped", zap.Error(err))
		return
	}
	m.mu.Lock()
	channel := m.channel
	m.mu.Unlock()
	if rp.ChannelID != "" && channel != "" && rp.ChannelID != channel {
		return
	}
	m.ProcessIncomingMessage(payload.Message)
}

// appendLocked appends to the bounded history. Callers hold m.mu.
func (m *Manager) appendLocked(msg models.LiveChatMessage) {
	m.history = append(m.history, msg)
	if len(m.history) > models.ChatTailLimit {
		m.history = m.history[len(m.history)-models.ChatTailLimit:]
	}
}
