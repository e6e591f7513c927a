package chat

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/violive/liveshow-go/internal/events"
	"github.com/violive/liveshow-go/internal/models"
	"github.com/violive/liveshow-go/pkg/storage"
)

type fakeChatBackend struct {
	mu      sync.Mutex
	history []models.LiveChatMessage
	sendErr error
	sent    [][]byte
}

func (f *fakeChatBackend) History(context.Context, string, bool) ([]models.LiveChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.LiveChatMessage, len(f.history))
	copy(out, f.history)
	return out, nil
}

func (f *fakeChatBackend) Send(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeChatBackend) setSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *fakeChatBackend) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func msgAt(id, userID, text string, ts time.Time) models.LiveChatMessage {
	return models.LiveChatMessage{
		ID:        id,
		User:      models.ChatUser{ID: userID, DisplayName: userID},
		Message:   text,
		Timestamp: ts,
	}
}

func newTestChat(backend Backend) *Manager {
	m := NewManager(backend, storage.NewMemory(), nil, nil)
	m.Configure("chan-1", "viewer")
	return m
}

func TestDuplicateMessagesDiscarded(t *testing.T) {
	m := newTestChat(&fakeChatBackend{})
	base := time.Now()

	if !m.ProcessIncomingMessage(msgAt("m1", "u1", "hello", base)) {
		t.Fatalf("first message should be admitted")
	}
	// Same author and text within a second: a transport echo, not a new message.
	if m.ProcessIncomingMessage(msgAt("m2", "u1", "hello", base.Add(700*time.Millisecond))) {
		t.Fatalf("near-duplicate should be discarded")
	}
	// Outside the tolerance window it is a genuine repeat.
	if !m.ProcessIncomingMessage(msgAt("m3", "u1", "hello", base.Add(3*time.Second))) {
		t.Fatalf("repeat outside tolerance should be admitted")
	}
	// Different author, same text.
	if !m.ProcessIncomingMessage(msgAt("m4", "u2", "hello", base)) {
		t.Fatalf("same text from another user should be admitted")
	}
	if got := len(m.Messages()); got != 3 {
		t.Fatalf("history length = %d, want 3", got)
	}
}

func TestPinnedSlotReplaced(t *testing.T) {
	m := newTestChat(&fakeChatBackend{})
	base := time.Now()

	first := msgAt("m1", "host", "welcome", base)
	first.IsPinned = true
	second := msgAt("m2", "host", "sale starts now", base.Add(time.Minute))
	second.IsPinned = true

	m.ProcessIncomingMessage(first)
	m.ProcessIncomingMessage(second)

	pinned := m.Pinned()
	if pinned == nil || pinned.Message != "sale starts now" {
		t.Fatalf("pinned = %+v, want latest pin", pinned)
	}
	if got := len(m.Messages()); got != 0 {
		t.Fatalf("pins must not enter the normal history, length = %d", got)
	}
}

func TestDeletePinnedCorrelation(t *testing.T) {
	m := newTestChat(&fakeChatBackend{})
	base := time.Now()

	pin := msgAt("m1", "host", "welcome", base)
	pin.IsPinned = true
	m.ProcessIncomingMessage(pin)

	// Wrong author: pin stays.
	m.ProcessDeletePinnedMessage(events.DeletePinnedMessage{UserID: "intruder", Timestamp: base})
	if m.Pinned() == nil {
		t.Fatalf("delete from another user must not clear the pin")
	}
	// Right author, timestamp too far off: pin stays.
	m.ProcessDeletePinnedMessage(events.DeletePinnedMessage{UserID: "host", Timestamp: base.Add(5 * time.Second)})
	if m.Pinned() == nil {
		t.Fatalf("uncorrelated timestamp must not clear the pin")
	}
	// Correlated: pin cleared.
	m.ProcessDeletePinnedMessage(events.DeletePinnedMessage{UserID: "host", Timestamp: base.Add(time.Second)})
	if m.Pinned() != nil {
		t.Fatalf("correlated delete must clear the pin")
	}
}

func TestLoadChatMessagesPartitionsAndSorts(t *testing.T) {
	base := time.Now()
	pinOld := msgAt("p1", "host", "old pin", base)
	pinOld.IsPinned = true
	pinNew := msgAt("p2", "host", "new pin", base.Add(time.Minute))
	pinNew.IsPinned = true
	backend := &fakeChatBackend{history: []models.LiveChatMessage{
		msgAt("m2", "u1", "second", base.Add(2*time.Second)),
		pinOld,
		msgAt("m1", "u2", "first", base.Add(time.Second)),
		pinNew,
	}}
	m := newTestChat(backend)

	if err := m.LoadChatMessages(context.Background(), "chan-1", false); err != nil {
		t.Fatalf("load: %v", err)
	}
	msgs := m.Messages()
	if len(msgs) != 2 || msgs[0].Message != "first" || msgs[1].Message != "second" {
		t.Fatalf("history = %+v, want chronological [first, second]", msgs)
	}
	pinned := m.Pinned()
	if pinned == nil || pinned.Message != "new pin" {
		t.Fatalf("pinned = %+v, want the last pin", pinned)
	}
}

func TestLoadBeforeConfigureRejected(t *testing.T) {
	m := NewManager(&fakeChatBackend{}, storage.NewMemory(), nil, nil)
	if err := m.LoadChatMessages(context.Background(), "chan-1", false); err == nil {
		t.Fatalf("load before configure should fail")
	}
}

func TestHistoryCapped(t *testing.T) {
	m := newTestChat(&fakeChatBackend{})
	base := time.Now()
	for i := 0; i < models.ChatTailLimit+10; i++ {
		m.ProcessIncomingMessage(msgAt("", "u1", strconv.Itoa(i), base.Add(time.Duration(i)*10*time.Second)))
	}
	if got := len(m.Messages()); got != models.ChatTailLimit {
		t.Fatalf("history length = %d, want %d", got, models.ChatTailLimit)
	}
}

func TestSendWithoutDisplayNameDropped(t *testing.T) {
	backend := &fakeChatBackend{}
	m := newTestChat(backend)

	m.SendMessage(context.Background(), "hello", false, "")
	if got := len(m.Messages()); got != 0 {
		t.Fatalf("anonymous send must be a no-op, history = %d", got)
	}
}

func TestSendAppendsOptimisticallyAndEchoDedups(t *testing.T) {
	backend := &fakeChatBackend{}
	m := newTestChat(backend)
	m.SetLocalUser(models.ChatUser{ID: "me", DisplayName: "Me"})

	m.SendMessage(context.Background(), "buying this", false, "")
	msgs := m.Messages()
	if len(msgs) != 1 || msgs[0].Message != "buying this" {
		t.Fatalf("optimistic append missing, history = %+v", msgs)
	}

	// The transport echoes the message back; dedup keeps one copy.
	echo := msgs[0]
	echo.ID = "server-id"
	echo.Timestamp = echo.Timestamp.Add(300 * time.Millisecond)
	if m.ProcessIncomingMessage(echo) {
		t.Fatalf("echo of own message should be discarded")
	}
	if got := len(m.Messages()); got != 1 {
		t.Fatalf("history length = %d, want 1", got)
	}
}

func TestFailedSendsQueueAndFlushInOrder(t *testing.T) {
	backend := &fakeChatBackend{}
	m := newTestChat(backend)
	ctx := context.Background()

	backend.setSendErr(errors.New("offline"))
	m.post(ctx, "chan-1", []byte(`{"message": "one"}`))
	m.post(ctx, "chan-1", []byte(`{"message": "two"}`))
	if got := m.PendingCount(ctx, "chan-1"); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}

	backend.setSendErr(nil)
	m.post(ctx, "chan-1", []byte(`{"message": "three"}`))
	if got := m.PendingCount(ctx, "chan-1"); got != 0 {
		t.Fatalf("pending after flush = %d, want 0", got)
	}
	if got := backend.sentCount(); got != 3 {
		t.Fatalf("sent = %d, want 3", got)
	}
}

func TestChatMessageEventLeftToRegistry(t *testing.T) {
	m := newTestChat(&fakeChatBackend{})
	msg := msgAt("m1", "u1", "hello", time.Now())

	// Admission of chat_message belongs to the stream registry; the manager's
	// own event loop must not consume it, or the registry's later delegation
	// would be rejected as a duplicate.
	m.HandleEvent(events.Event{Kind: events.KindChatMessage, StreamID: 1, Chat: &msg})
	if got := len(m.Messages()); got != 0 {
		t.Fatalf("manager event loop admitted chat_message itself, history = %d", got)
	}
	if !m.ProcessIncomingMessage(msg) {
		t.Fatalf("registry-delegated admission must still succeed")
	}
}

func TestConcurrentFailedSendsAllQueued(t *testing.T) {
	backend := &fakeChatBackend{}
	backend.setSendErr(errors.New("offline"))
	m := newTestChat(backend)
	ctx := context.Background()

	const sends = 64
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.post(ctx, "chan-1", []byte(`{"message": "`+strconv.Itoa(i)+`"}`))
		}(i)
	}
	wg.Wait()

	if got := m.PendingCount(ctx, "chan-1"); got != sends {
		t.Fatalf("pending = %d, want %d (concurrent failures must not drop entries)", got, sends)
	}

	backend.setSendErr(nil)
	m.post(ctx, "chan-1", []byte(`{"message": "final"}`))
	if got := m.PendingCount(ctx, "chan-1"); got != 0 {
		t.Fatalf("pending after flush = %d, want 0", got)
	}
	if got := backend.sentCount(); got != sends+1 {
		t.Fatalf("sent = %d, want %d", got, sends+1)
	}
}

func TestRawPostRunsThroughAdmission(t *testing.T) {
	m := newTestChat(&fakeChatBackend{})
	msg := msgAt("m1", "u1", "from the raw pipe", time.Now())
	payload, err := json.Marshal(outboundPayload{ChannelID: "chan-1", Message: msg})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	m.HandleEvent(events.Event{
		Kind:    events.KindRawChatPost,
		RawChat: &events.RawChatPost{ChannelID: "chan-1", Body: string(payload)},
	})
	if got := len(m.Messages()); got != 1 {
		t.Fatalf("raw post not admitted, history = %d", got)
	}

	// A raw post for another channel is ignored.
	m.HandleEvent(events.Event{
		Kind:    events.KindRawChatPost,
		RawChat: &events.RawChatPost{ChannelID: "chan-2", Body: string(payload)},
	})
	if got := len(m.Messages()); got != 1 {
		t.Fatalf("foreign-channel raw post must be ignored, history = %d", got)
	}
}
