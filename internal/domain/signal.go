package domain

import "time"

// SignalUrgency indicates how quickly a signal should be acted upon.
type SignalUrgency int

const (
	SignalUrgencyLow SignalUrgency = iota
	SignalUrgencyMedium
	SignalUrgencyHigh
	SignalUrgencyImmediate
)

// FillSignal is emitted by a strategy to request a fill attempt against an
// offer. The executor dedups on ID and runs the full preflight before any
// submission; a signal is a suggestion, not a commitment.
type FillSignal struct {
	ID                   string // UUID for dedup
	OfferID              string
	Source               string // strategy name or "api"
	RequestedTakerAmount Amount
	Urgency              SignalUrgency
	Reason               string
	Metadata             map[string]string
	CreatedAt            time.Time
	ExpiresAt            time.Time
}

// Expired reports whether the signal is too old to act on.
func (s FillSignal) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// BotStatus is a summary of the bot's current operational state.
type BotStatus struct {
	Mode          string
	WSConnected   bool
	UptimeSeconds int64
	TrackedOffers int64
	PendingFills  int32
	StrategyName  string
}
