package events

import (
	"sync"
	"time"
)

const (
	TypeTradeRecorded      = "trade_recorded"
	TypeBreached           = "account_breached"
	TypePhaseAdvanced      = "phase_advanced"
	TypeWithdrawal         = "withdrawal_requested"
	TypeAccountActivated   = "account_activated"
	TypeSettingsUpdated    = "settings_updated"
	TypeDailyLimitExceeded = "daily_limit_exceeded"
)

type Event struct {
	Type     string    `json:"type"`
	TraderID string    `json:"trader_id,omitempty"`
	Data     any       `json:"data"`
	TS       time.Time `json:"ts"`
}

// Bus fans events out to subscribers. Slow subscribers miss events rather
// than blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 100)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(evt Event) {
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}
