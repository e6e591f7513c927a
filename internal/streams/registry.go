// Package streams maintains the authoritative set of known live streams and
// which one is currently displayed.
package streams

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/violive/liveshow-go/internal/events"
	"github.com/violive/liveshow-go/internal/models"
	"github.com/violive/liveshow-go/pkg/analytics"
)

// DisplayMode is the registry's display state machine:
// Hidden -> FullScreen <-> MiniPlayer -> Hidden.
type DisplayMode string

const (
	DisplayHidden     DisplayMode = "hidden"
	DisplayFullScreen DisplayMode = "fullscreen"
	DisplayMiniPlayer DisplayMode = "miniplayer"
)

// Fetcher is the stream metadata API surface the registry calls.
type Fetcher interface {
	ActiveStreams(ctx context.Context) ([]models.LiveStream, error)
	Stream(ctx context.Context, id int64) (*models.LiveStream, error)
}

// Subscriber mutates the transport subscription set.
type Subscriber interface {
	SubscribeToStream(id int64)
	UnsubscribeFromStream(id int64)
}

// ChatAdmitter is the chat manager surface the registry delegates message
// admission and channel configuration to.
type ChatAdmitter interface {
	Configure(channel, role string)
	ProcessIncomingMessage(msg models.LiveChatMessage) bool
}

// Registry aggregates per-stream state from transport events and fetches.
type Registry struct {
	logger     *zap.Logger
	fetcher    Fetcher
	subscriber Subscriber
	chat       ChatAdmitter
	tracker    analytics.Tracker

	mu            sync.RWMutex
	order         []int64
	streams       map[int64]*models.LiveStream
	displayed     *models.LiveStream
	mode          DisplayMode
	onViewerCount func(count int)
}

// NewRegistry creates a stream registry.
func NewRegistry(fetcher Fetcher, subscriber Subscriber, chat ChatAdmitter, tracker analytics.Tracker, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	return &Registry{
		logger:     logger,
		fetcher:    fetcher,
		subscriber: subscriber,
		chat:       chat,
		tracker:    tracker,
		streams:    make(map[int64]*models.LiveStream),
		mode:       DisplayHidden,
	}
}

// SetViewerCountHandler sets the callback notified whenever the currently
// displayed stream's viewer count changes, so a UI can bind to it without
// re-deriving from the full stream list.
func (r *Registry) SetViewerCountHandler(fn func(count int)) {
	r.mu.Lock()
	r.onViewerCount = fn
	r.mu.Unlock()
}

// FetchActiveStreams replaces the registry with the API's active set and
// subscribes the socket to each fetched stream. A fetch failure leaves the
// existing registry untouched.
func (r *Registry) FetchActiveStreams(ctx context.Context) error {
	fetched, err := r.fetcher.ActiveStreams(ctx)
	if err != nil {
		r.logger.Warn("active stream fetch failed, keeping registry", zap.Error(err))
		return fmt.Errorf("fetch active streams: %w", err)
	}

	r.mu.Lock()
	r.order = r.order[:0]
	r.streams = make(map[int64]*models.LiveStream, len(fetched))
	for i := range fetched {
		s := fetched[i]
		r.order = append(r.order, s.ID)
		r.streams[s.ID] = &s
		if r.displayed != nil && r.displayed.ID == s.ID {
			r.displayed = r.streams[s.ID]
		}
	}
	r.mu.Unlock()

	for i := range fetched {
		r.subscriber.SubscribeToStream(fetched[i].ID)
	}
	r.logger.Info("active streams fetched", zap.Int("count", len(fetched)))
	return nil
}

// FetchStream upserts one stream from the API and subscribes the socket to it.
func (r *Registry) FetchStream(ctx context.Context, id int64) error {
	s, err := r.fetcher.Stream(ctx, id)
	if err != nil {
		r.logger.Warn("stream fetch failed", zap.Int64("stream_id", id), zap.Error(err))
		return fmt.Errorf("fetch stream %d: %w", id, err)
	}
	r.UpdateActiveStream(*s)
	r.subscriber.SubscribeToStream(id)
	return nil
}

// UpdateActiveStream upserts by id: replace when present, append when not.
// When the upserted stream is also the displayed one, the display slot is
// refreshed too.
func (r *Registry) UpdateActiveStream(stream models.LiveStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertLocked(stream)
}

func (r *Registry) upsertLocked(stream models.LiveStream) *models.LiveStream {
	existing, ok := r.streams[stream.ID]
	if ok {
		*existing = stream
	} else {
		r.order = append(r.order, stream.ID)
		r.streams[stream.ID] = &stream
		existing = r.streams[stream.ID]
	}
	if r.displayed != nil && r.displayed.ID == stream.ID {
		r.displayed = existing
	}
	return existing
}

// Streams returns a snapshot of the known streams in registry order.
func (r *Registry) Streams() []models.LiveStream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.LiveStream, 0, len(r.order))
	for _, id := range r.order {
		if s, ok := r.streams[id]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// Stream returns one stream by id.
func (r *Registry) Stream(id int64) (models.LiveStream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	if !ok {
		return models.LiveStream{}, false
	}
	return *s, true
}

// CurrentStream returns the currently displayed stream, if any.
func (r *Registry) CurrentStream() (models.LiveStream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.displayed == nil {
		return models.LiveStream{}, false
	}
	return *r.displayed, true
}

// Mode returns the current display mode.
func (r *Registry) Mode() DisplayMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// HasLiveStream reports whether any registry entry is live.
func (r *Registry) HasLiveStream() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.streams {
		if s.IsLive {
			return true
		}
	}
	return false
}

// TotalViewers sums every registry entry's viewer count.
func (r *Registry) TotalViewers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, s := range r.streams {
		total += s.ViewerCount
	}
	return total
}

// IsWatching reports whether the full-screen or mini-player surface is
// visible.
func (r *Registry) IsWatching() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode != DisplayHidden
}

// ShowLiveStream selects a stream, switches to full screen and configures
// chat for that stream's channel. Unknown ids are ignored.
func (r *Registry) ShowLiveStream(id int64) {
	r.mu.Lock()
	s, ok := r.streams[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("show requested for unknown stream", zap.Int64("stream_id", id))
		return
	}
	r.displayed = s
	r.mode = DisplayFullScreen
	channel := s.ChannelID
	r.mu.Unlock()

	if channel == "" {
		channel = strconv.FormatInt(id, 10)
	}
	r.chat.Configure(channel, "viewer")
	r.tracker.Track("stream_view", map[string]interface{}{"stream_id": id})
}

// ShowMiniPlayer shrinks the display to the mini player. No-op unless a
// stream is selected.
func (r *Registry) ShowMiniPlayer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.displayed == nil {
		return
	}
	r.mode = DisplayMiniPlayer
}

// ExpandFromMiniPlayer restores full screen. No-op unless a stream is
// selected.
func (r *Registry) ExpandFromMiniPlayer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.displayed == nil {
		return
	}
	r.mode = DisplayFullScreen
}

// HideLiveStream returns to Hidden and clears the selected stream.
func (r *Registry) HideLiveStream() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.displayed = nil
	r.mode = DisplayHidden
}

// Run consumes transport events until ctx is done.
func (r *Registry) Run(ctx context.Context, evs <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			r.HandleEvent(ev)
		}
	}
}

// HandleEvent applies one transport event to the registry.
func (r *Registry) HandleEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindStreamStarted:
		if ev.Stream != nil {
			s := *ev.Stream
			s.IsLive = true
			r.UpdateActiveStream(s)
		}
	case events.KindStreamEnded:
		r.removeStream(ev.StreamID, ev.Stream)
	case events.KindStreamStatusChanged:
		r.applyStatusChange(ev.StreamID, ev.StatusChange)
	case events.KindChatMessage:
		r.admitChat(ev.StreamID, ev.Chat)
	case events.KindViewerCountChanged:
		r.applyViewerCount(ev.StreamID, ev.ViewerCount)
	case events.KindProductHighlighted:
		r.applyProductHighlight(ev.StreamID, ev.Product)
	}
}

// removeStream drops an ended stream from the registry and hides the display
// when it was the one being watched. Unknown ids are ignored.
func (r *Registry) removeStream(id int64, snapshot *models.LiveStream) {
	if snapshot != nil && snapshot.ID != 0 {
		id = snapshot.ID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[id]; !ok {
		return
	}
	delete(r.streams, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.displayed != nil && r.displayed.ID == id {
		r.displayed = nil
		r.mode = DisplayHidden
	}
	r.logger.Info("stream ended", zap.Int64("stream_id", id))
}

// applyStatusChange updates a known stream. Unknown ids are ignored: a
// partial status update never synthesizes a new stream. Only a non-empty
// playback URL changes the URL; otherwise the event is a count/flag update.
func (r *Registry) applyStatusChange(id int64, sc *events.StreamStatusChange) {
	if sc == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		r.logger.Debug("status change for unknown stream ignored", zap.Int64("stream_id", id))
		return
	}
	if sc.VideoURL != "" {
		s.VideoURL = sc.VideoURL
	}
	if sc.ViewerCount != nil {
		s.ViewerCount = *sc.ViewerCount
		r.notifyViewerCountLocked(s)
	}
	if sc.IsBroadcasting != nil {
		s.IsLive = *sc.IsBroadcasting
	}
}

// admitChat delegates admission to the chat manager for dedup, then appends
// to the stream's bounded tail.
func (r *Registry) admitChat(id int64, msg *models.LiveChatMessage) {
	if msg == nil {
		return
	}
	if !r.chat.ProcessIncomingMessage(*msg) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.streams[id]; ok {
		s.AppendChatMessage(*msg)
	}
}

// applyViewerCount overwrites the stream's count wholesale; no client-side
// merge.
func (r *Registry) applyViewerCount(id int64, vc *events.ViewerCountChange) {
	if vc == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return
	}
	s.ViewerCount = vc.Count
	r.notifyViewerCountLocked(s)
}

func (r *Registry) applyProductHighlight(id int64, ph *events.ProductHighlight) {
	if ph == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return
	}
	for i := range s.FeaturedProducts {
		if s.FeaturedProducts[i].ID == ph.Product.ID {
			s.FeaturedProducts[i] = ph.Product
			s.FeaturedProducts[i].Highlighted = true
			return
		}
	}
	p := ph.Product
	p.Highlighted = true
	s.FeaturedProducts = append(s.FeaturedProducts, p)
}

// notifyViewerCountLocked publishes the displayed stream's count. Callers
// hold r.mu.
func (r *Registry) notifyViewerCountLocked(s *models.LiveStream) {
	if r.displayed == nil || r.displayed.ID != s.ID || r.onViewerCount == nil {
		return
	}
	fn := r.onViewerCount
	count := s.ViewerCount
	go fn(count)
}
