package streams

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/violive/liveshow-go/internal/chat"
	"github.com/violive/liveshow-go/internal/events"
	"github.com/violive/liveshow-go/internal/models"
	"github.com/violive/liveshow-go/pkg/storage"
)

type fakeFetcher struct {
	streams []models.LiveStream
	err     error
}

func (f *fakeFetcher) ActiveStreams(context.Context) ([]models.LiveStream, error) {
	return f.streams, f.err
}

func (f *fakeFetcher) Stream(_ context.Context, id int64) (*models.LiveStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.streams {
		if f.streams[i].ID == id {
			return &f.streams[i], nil
		}
	}
	return nil, errors.New("no such stream")
}

type fakeSubscriber struct {
	mu         sync.Mutex
	subscribed []int64
}

func (f *fakeSubscriber) SubscribeToStream(id int64) {
	f.mu.Lock()
	f.subscribed = append(f.subscribed, id)
	f.mu.Unlock()
}

func (f *fakeSubscriber) UnsubscribeFromStream(int64) {}

func (f *fakeSubscriber) ids() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.subscribed))
	copy(out, f.subscribed)
	return out
}

type fakeChat struct {
	mu       sync.Mutex
	channel  string
	role     string
	admitted []models.LiveChatMessage
	reject   bool
}

func (f *fakeChat) Configure(channel, role string) {
	f.mu.Lock()
	f.channel = channel
	f.role = role
	f.mu.Unlock()
}

func (f *fakeChat) ProcessIncomingMessage(msg models.LiveChatMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.admitted = append(f.admitted, msg)
	return true
}

func liveStream(id int64, title string) models.LiveStream {
	return models.LiveStream{ID: id, Title: title, IsLive: true, StartTime: time.Now()}
}

func newTestRegistry(fetcher *fakeFetcher) (*Registry, *fakeSubscriber, *fakeChat) {
	sub := &fakeSubscriber{}
	chat := &fakeChat{}
	return NewRegistry(fetcher, sub, chat, nil, nil), sub, chat
}

func TestFetchActiveStreamsReplacesAndSubscribes(t *testing.T) {
	fetcher := &fakeFetcher{streams: []models.LiveStream{liveStream(1, "one"), liveStream(2, "two")}}
	r, sub, _ := newTestRegistry(fetcher)

	if err := r.FetchActiveStreams(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	got := r.Streams()
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("streams = %+v", got)
	}
	if ids := sub.ids(); len(ids) != 2 {
		t.Fatalf("subscriptions = %v, want both streams", ids)
	}

	// A failed refetch leaves the registry untouched.
	fetcher.err = errors.New("api down")
	if err := r.FetchActiveStreams(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	if got := r.Streams(); len(got) != 2 {
		t.Fatalf("failed fetch must keep prior registry, got %d streams", len(got))
	}
}

func TestDisplayModeMachine(t *testing.T) {
	fetcher := &fakeFetcher{streams: []models.LiveStream{liveStream(1, "one")}}
	r, _, chat := newTestRegistry(fetcher)
	if err := r.FetchActiveStreams(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// Mini player and expand are no-ops before a stream is selected.
	r.ShowMiniPlayer()
	if r.Mode() != DisplayHidden {
		t.Fatalf("mode = %q, want hidden before selection", r.Mode())
	}

	r.ShowLiveStream(1)
	if r.Mode() != DisplayFullScreen || !r.IsWatching() {
		t.Fatalf("mode = %q, want fullscreen", r.Mode())
	}
	if chat.channel != "1" || chat.role != "viewer" {
		t.Fatalf("chat configured with %q/%q", chat.channel, chat.role)
	}

	r.ShowMiniPlayer()
	if r.Mode() != DisplayMiniPlayer {
		t.Fatalf("mode = %q, want miniplayer", r.Mode())
	}
	r.ExpandFromMiniPlayer()
	if r.Mode() != DisplayFullScreen {
		t.Fatalf("mode = %q, want fullscreen", r.Mode())
	}
	r.HideLiveStream()
	if r.Mode() != DisplayHidden || r.IsWatching() {
		t.Fatalf("mode = %q, want hidden", r.Mode())
	}
	if _, ok := r.CurrentStream(); ok {
		t.Fatalf("hide must clear the selected stream")
	}
}

func TestShowUnknownStreamIgnored(t *testing.T) {
	r, _, _ := newTestRegistry(&fakeFetcher{})
	r.ShowLiveStream(42)
	if r.Mode() != DisplayHidden {
		t.Fatalf("unknown stream id must not change the display")
	}
}

func TestStatusChangeForUnknownStreamIgnored(t *testing.T) {
	r, _, _ := newTestRegistry(&fakeFetcher{})
	count := 10
	r.HandleEvent(events.Event{
		Kind:         events.KindStreamStatusChanged,
		StreamID:     42,
		StatusChange: &events.StreamStatusChange{ViewerCount: &count},
	})
	if got := r.Streams(); len(got) != 0 {
		t.Fatalf("status change must never synthesize a stream, got %+v", got)
	}
}

func TestStatusChangeAppliesPartially(t *testing.T) {
	fetcher := &fakeFetcher{streams: []models.LiveStream{liveStream(1, "one")}}
	r, _, _ := newTestRegistry(fetcher)
	if err := r.FetchActiveStreams(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	s, _ := r.Stream(1)
	s.VideoURL = "https://cdn.example.com/1.m3u8"
	r.UpdateActiveStream(s)

	count := 250
	off := false
	r.HandleEvent(events.Event{
		Kind:         events.KindStreamStatusChanged,
		StreamID:     1,
		StatusChange: &events.StreamStatusChange{ViewerCount: &count, IsBroadcasting: &off},
	})

	got, _ := r.Stream(1)
	if got.ViewerCount != 250 || got.IsLive {
		t.Fatalf("stream = %+v, want count 250 and not live", got)
	}
	// Empty URL in the event must not clobber the existing playback URL.
	if got.VideoURL != "https://cdn.example.com/1.m3u8" {
		t.Fatalf("video url = %q, must be unchanged", got.VideoURL)
	}
}

func TestStreamStartedAndEnded(t *testing.T) {
	r, _, _ := newTestRegistry(&fakeFetcher{})

	snapshot := liveStream(7, "popup show")
	snapshot.IsLive = false // snapshot flag is overridden by the event kind
	r.HandleEvent(events.Event{Kind: events.KindStreamStarted, StreamID: 7, Stream: &snapshot})

	got, ok := r.Stream(7)
	if !ok || !got.IsLive {
		t.Fatalf("stream_started must upsert a live stream, got %+v", got)
	}
	if !r.HasLiveStream() {
		t.Fatalf("HasLiveStream = false with a live entry")
	}

	r.ShowLiveStream(7)
	r.HandleEvent(events.Event{Kind: events.KindStreamEnded, StreamID: 7})
	if _, ok := r.Stream(7); ok {
		t.Fatalf("stream_ended must remove the stream")
	}
	if r.Mode() != DisplayHidden {
		t.Fatalf("ending the displayed stream must hide the display")
	}
}

func TestViewerCountEventAndHandler(t *testing.T) {
	fetcher := &fakeFetcher{streams: []models.LiveStream{liveStream(1, "one")}}
	r, _, _ := newTestRegistry(fetcher)
	if err := r.FetchActiveStreams(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	counts := make(chan int, 4)
	r.SetViewerCountHandler(func(count int) { counts <- count })

	// Not displayed yet: count updates, handler stays quiet.
	r.HandleEvent(events.Event{Kind: events.KindViewerCountChanged, StreamID: 1, ViewerCount: &events.ViewerCountChange{Count: 50}})
	select {
	case c := <-counts:
		t.Fatalf("handler fired for undisplayed stream: %d", c)
	case <-time.After(100 * time.Millisecond):
	}

	r.ShowLiveStream(1)
	r.HandleEvent(events.Event{Kind: events.KindViewerCountChanged, StreamID: 1, ViewerCount: &events.ViewerCountChange{Count: 75}})
	select {
	case c := <-counts:
		if c != 75 {
			t.Fatalf("handler count = %d, want 75", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for viewer count handler")
	}

	got, _ := r.Stream(1)
	if got.ViewerCount != 75 {
		t.Fatalf("viewer count = %d, want server value 75", got.ViewerCount)
	}
	if r.TotalViewers() != 75 {
		t.Fatalf("total viewers = %d, want 75", r.TotalViewers())
	}
}

func TestChatEventDelegatesAdmission(t *testing.T) {
	fetcher := &fakeFetcher{streams: []models.LiveStream{liveStream(1, "one")}}
	r, _, chat := newTestRegistry(fetcher)
	if err := r.FetchActiveStreams(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	msg := models.LiveChatMessage{ID: "m1", User: models.ChatUser{ID: "u1"}, Message: "hi", Timestamp: time.Now()}
	r.HandleEvent(events.Event{Kind: events.KindChatMessage, StreamID: 1, Chat: &msg})

	got, _ := r.Stream(1)
	if len(got.ChatMessages) != 1 || len(chat.admitted) != 1 {
		t.Fatalf("admitted message not appended: stream=%d chat=%d", len(got.ChatMessages), len(chat.admitted))
	}

	// Rejected by dedup: the stream tail must not grow.
	chat.reject = true
	r.HandleEvent(events.Event{Kind: events.KindChatMessage, StreamID: 1, Chat: &msg})
	got, _ = r.Stream(1)
	if len(got.ChatMessages) != 1 {
		t.Fatalf("rejected message appended to stream tail")
	}
}

func TestChatMessageAdmittedOnceAcrossEventLoops(t *testing.T) {
	fetcher := &fakeFetcher{streams: []models.LiveStream{liveStream(1, "one")}}
	sub := &fakeSubscriber{}
	chatMgr := chat.NewManager(nil, storage.NewMemory(), nil, nil)
	r := NewRegistry(fetcher, sub, chatMgr, nil, nil)
	if err := r.FetchActiveStreams(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	r.ShowLiveStream(1)

	// The transport fans every event out to both managers; admission must
	// happen exactly once, through the registry, regardless of which loop
	// sees the event first.
	msg := models.LiveChatMessage{ID: "m1", User: models.ChatUser{ID: "u1"}, Message: "hi", Timestamp: time.Now()}
	ev := events.Event{Kind: events.KindChatMessage, StreamID: 1, Chat: &msg}
	chatMgr.HandleEvent(ev)
	r.HandleEvent(ev)

	got, _ := r.Stream(1)
	if len(got.ChatMessages) != 1 {
		t.Fatalf("stream chat tail = %d messages, want 1", len(got.ChatMessages))
	}
	if msgs := chatMgr.Messages(); len(msgs) != 1 {
		t.Fatalf("chat history = %d messages, want 1", len(msgs))
	}
}

func TestProductHighlightUpsert(t *testing.T) {
	fetcher := &fakeFetcher{streams: []models.LiveStream{liveStream(1, "one")}}
	r, _, _ := newTestRegistry(fetcher)
	if err := r.FetchActiveStreams(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	p := models.FeaturedProduct{ID: "sku-1", Title: "Sneaker", Price: 89.99, Currency: "USD"}
	r.HandleEvent(events.Event{Kind: events.KindProductHighlighted, StreamID: 1, Product: &events.ProductHighlight{Product: p}})

	got, _ := r.Stream(1)
	if len(got.FeaturedProducts) != 1 || !got.FeaturedProducts[0].Highlighted {
		t.Fatalf("products = %+v, want one highlighted", got.FeaturedProducts)
	}

	// Re-highlighting the same product updates in place.
	p.Price = 79.99
	r.HandleEvent(events.Event{Kind: events.KindProductHighlighted, StreamID: 1, Product: &events.ProductHighlight{Product: p}})
	got, _ = r.Stream(1)
	if len(got.FeaturedProducts) != 1 || got.FeaturedProducts[0].Price != 79.99 {
		t.Fatalf("products = %+v, want updated price", got.FeaturedProducts)
	}
}
