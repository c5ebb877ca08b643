package session

import (
	"sync"

	"go.uber.org/zap"

	"tagihin_dashboard/internal/platform"
)

// SuspensionHub delivers suspension signals from the platform client to the
// session store of the affected browser session. Signals are stamped with a
// monotonic sequence number at publish time; a signal with a lower number
// than one already applied is stale and gets rejected by the store.
type SuspensionHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan platform.SuspensionSignal]struct{} // sessionID -> set of channels
	seq         uint64
	logger      *zap.Logger
	bufferSize  int
}

// NewSuspensionHub creates a hub with a small per-subscriber buffer to
// absorb bursts of concurrent API calls returning the suspension marker.
func NewSuspensionHub(logger *zap.Logger) *SuspensionHub {
	return &SuspensionHub{
		subscribers: make(map[string]map[chan platform.SuspensionSignal]struct{}),
		logger:      logger,
		bufferSize:  10,
	}
}

// Subscribe creates a subscription for a session and returns the channel
func (h *SuspensionHub) Subscribe(sessionID string) chan platform.SuspensionSignal {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan platform.SuspensionSignal, h.bufferSize)
	if h.subscribers[sessionID] == nil {
		h.subscribers[sessionID] = make(map[chan platform.SuspensionSignal]struct{})
	}
	h.subscribers[sessionID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscription
func (h *SuspensionHub) Unsubscribe(sessionID string, ch chan platform.SuspensionSignal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[sessionID]
	if !ok {
		return
	}
	if _, exists := subs[ch]; exists {
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, sessionID)
		}
	}
}

// PublishSuspension stamps the signal and delivers it to the session's
// subscribers in emission order. Non-blocking: drops if a buffer is full.
func (h *SuspensionHub) PublishSuspension(sessionID string, sig platform.SuspensionSignal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	sig.Seq = h.seq

	subs, ok := h.subscribers[sessionID]
	if !ok {
		return
	}
	for ch := range subs {
		select {
		case ch <- sig:
		default:
			h.logger.Warn("dropping suspension signal, subscriber buffer full",
				zap.String("session_id", sessionID),
				zap.Uint64("seq", sig.Seq))
		}
	}
}

// Seq returns the last assigned sequence number. Callers snapshot it before
// starting an explicit fetch so the fetched result can be stamped older than
// any signal broadcast while the fetch was in flight.
func (h *SuspensionHub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}
