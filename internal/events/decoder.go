package events

import (
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/violive/liveshow-go/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// envelope is the wire frame shape: kind from "type" (legacy "event"), stream
// id from "streamId" or "stream_id", payload either nested or inline.
type envelope struct {
	Type        string              `json:"type"`
	LegacyEvent string              `json:"event"`
	StreamID    int64               `json:"streamId"`
	StreamIDAlt int64               `json:"stream_id"`
	Timestamp   string              `json:"timestamp"`
	Payload     jsoniter.RawMessage `json:"payload"`
}

// Decoder maps untyped wire frames onto the closed event taxonomy.
type Decoder struct {
	logger *zap.Logger
}

// NewDecoder creates an event decoder.
func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Decode decodes one wire frame. Returns (nil, false) for unknown event names
// (silently dropped) and for recognized names whose payload fails structural
// decoding (logged and dropped). A decode failure never partially applies.
func (d *Decoder) Decode(raw []byte) (*Event, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.logger.Warn("undecodable frame", zap.Error(err))
		return nil, false
	}

	name := env.Type
	if name == "" {
		name = env.LegacyEvent
	}
	kind, ok := kindFromName(name)
	if !ok {
		return nil, false
	}

	ev := &Event{
		Kind:      kind,
		StreamID:  env.StreamID,
		Timestamp: parseTimestamp(env.Timestamp),
	}
	if ev.StreamID == 0 {
		ev.StreamID = env.StreamIDAlt
	}

	// One optional nesting level: {payload: …} or the fields inline.
	payload := []byte(env.Payload)
	if len(payload) == 0 {
		payload = raw
	}

	if err := d.decodePayload(ev, payload); err != nil {
		d.logger.Warn("malformed event payload dropped",
			zap.String("kind", string(kind)),
			zap.Int64("stream_id", ev.StreamID),
			zap.Error(err))
		return nil, false
	}
	return ev, true
}

func (d *Decoder) decodePayload(ev *Event, payload []byte) error {
	switch ev.Kind {
	case KindStreamStarted, KindStreamEnded:
		// Full stream snapshot, same shape as the stream-fetch API.
		var s models.LiveStream
		if err := json.Unmarshal(payload, &s); err != nil {
			return err
		}
		if s.ID == 0 {
			s.ID = ev.StreamID
		}
		if ev.StreamID == 0 {
			ev.StreamID = s.ID
		}
		ev.Stream = &s
	case KindStreamStatusChanged:
		var sc StreamStatusChange
		if err := json.Unmarshal(payload, &sc); err != nil {
			return err
		}
		ev.StatusChange = &sc
	case KindChatMessage:
		var m models.LiveChatMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		if m.Message == "" || m.User.ID == "" {
			return errMissingField
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = ev.Timestamp
		}
		ev.Chat = &m
	case KindViewerCountChanged:
		var vc ViewerCountChange
		if err := json.Unmarshal(payload, &vc); err != nil {
			return err
		}
		if vc.Count < 0 {
			return errMissingField
		}
		ev.ViewerCount = &vc
	case KindProductHighlighted:
		var ph ProductHighlight
		if err := json.Unmarshal(payload, &ph); err != nil {
			return err
		}
		if ph.Product.ID == "" {
			return errMissingField
		}
		ev.Product = &ph
	case KindComponentActivated, KindComponentDeactivated:
		var cc ComponentChange
		if err := json.Unmarshal(payload, &cc); err != nil {
			return err
		}
		if cc.ComponentID == "" || cc.ComponentType == "" {
			return errMissingField
		}
		ev.Component = &cc
	case KindRawChatPost:
		var rp RawChatPost
		if err := json.Unmarshal(payload, &rp); err != nil {
			return err
		}
		ev.RawChat = &rp
	case KindDeletePinnedMessage:
		var dp DeletePinnedMessage
		if err := json.Unmarshal(payload, &dp); err != nil {
			return err
		}
		if dp.UserID == "" {
			return errMissingField
		}
		if dp.Timestamp.IsZero() {
			dp.Timestamp = ev.Timestamp
		}
		ev.DeletePinned = &dp
	}
	return nil
}

// errMissingField marks a structurally valid payload missing required fields.
var errMissingField = errors.New("events: required payload field missing")

func kindFromName(name string) (Kind, bool) {
	switch Kind(name) {
	case KindStreamStarted, KindStreamEnded, KindStreamStatusChanged,
		KindChatMessage, KindViewerCountChanged, KindProductHighlighted,
		KindComponentActivated, KindComponentDeactivated,
		KindRawChatPost, KindDeletePinnedMessage:
		return Kind(name), true
	}
	return "", false
}

// parseTimestamp parses an ISO-8601 timestamp, defaulting to decode time when
// absent or unparsable.
func parseTimestamp(s string) time.Time {
	if s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Now()
}
