package chat

import (
	"time"

	"github.com/violive/liveshow-go/internal/models"
)

// correlationTolerance is how far apart two timestamps may be while still
// identifying the same logical message.
const correlationTolerance = time.Second

// CorrelationKey approximates message identity from the fields the protocol
// actually carries: author id, text and timestamp. When the upstream protocol
// grows a true message id, only the derivation below changes.
type CorrelationKey struct {
	UserID    string
	Text      string
	Timestamp time.Time
}

// correlationKey derives the identity key for a message.
func correlationKey(m models.LiveChatMessage) CorrelationKey {
	return CorrelationKey{UserID: m.User.ID, Text: m.Message, Timestamp: m.Timestamp}
}

// Matches reports whether two keys identify the same logical message:
// same author, same text, timestamps within the tolerance window.
func (k CorrelationKey) Matches(other CorrelationKey) bool {
	if k.UserID != other.UserID || k.Text != other.Text {
		return false
	}
	d := k.Timestamp.Sub(other.Timestamp)
	if d < 0 {
		d = -d
	}
	return d <= correlationTolerance
}
