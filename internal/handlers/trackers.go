package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tagihin_dashboard/internal/payment"
	"tagihin_dashboard/internal/platform"
	"tagihin_dashboard/internal/session"
)

// TrackerRegistry holds one payment tracker per (session, invoice) and owns
// their tick-loop goroutines. Dropping a session cancels its timers, so an
// abandoned flow cannot keep ticking against discarded state.
type TrackerRegistry struct {
	mu      sync.Mutex
	entries map[string]*trackerEntry
	api     payment.BillingAPI
	logger  *zap.Logger
}

type trackerEntry struct {
	tracker  *payment.Tracker
	cancel   context.CancelFunc
	lastSeen time.Time
}

// NewTrackerRegistry creates an empty registry
func NewTrackerRegistry(api payment.BillingAPI, logger *zap.Logger) *TrackerRegistry {
	return &TrackerRegistry{
		entries: make(map[string]*trackerEntry),
		api:     api,
		logger:  logger,
	}
}

func trackerKey(sessionID string, invoiceID uint) string {
	return fmt.Sprintf("%s:%d", sessionID, invoiceID)
}

// For returns the tracker for this session and invoice, creating and
// starting it on first use.
func (r *TrackerRegistry) For(store *session.Store, invoice platform.PendingInvoice) *payment.Tracker {
	creds := store.Credentials()
	key := trackerKey(creds.SessionID, invoice.ID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[key]; ok {
		entry.lastSeen = time.Now()
		return entry.tracker
	}

	tracker := payment.NewTracker(invoice, creds, r.api, r.logger, payment.WithAutoCancel())
	ctx, cancel := context.WithCancel(context.Background())
	go tracker.Run(ctx)

	r.entries[key] = &trackerEntry{tracker: tracker, cancel: cancel, lastSeen: time.Now()}
	return tracker
}

// Lookup returns an existing tracker or nil
func (r *TrackerRegistry) Lookup(sessionID string, invoiceID uint) *payment.Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[trackerKey(sessionID, invoiceID)]; ok {
		entry.lastSeen = time.Now()
		return entry.tracker
	}
	return nil
}

// Sweep drops trackers untouched for longer than maxIdle. Sessions that die
// through the credential TTL never log out and never hit a 401, so their
// trackers are reclaimed here instead. Returns the number dropped.
func (r *TrackerRegistry) Sweep(now time.Time, maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for key, entry := range r.entries {
		if now.Sub(entry.lastSeen) > maxIdle {
			entry.cancel()
			delete(r.entries, key)
			dropped++
		}
	}
	return dropped
}

// RunSweeper sweeps on an interval until ctx is cancelled
func (r *TrackerRegistry) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now, maxIdle); n > 0 {
				r.logger.Info("dropped idle payment trackers", zap.Int("count", n))
			}
		}
	}
}

// Drop stops and removes the tracker for one invoice (paid or cancelled)
func (r *TrackerRegistry) Drop(sessionID string, invoiceID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := trackerKey(sessionID, invoiceID)
	if entry, ok := r.entries[key]; ok {
		entry.cancel()
		delete(r.entries, key)
	}
}

// DropSession stops all trackers belonging to a session (logout, 401)
func (r *TrackerRegistry) DropSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := sessionID + ":"
	for key, entry := range r.entries {
		if strings.HasPrefix(key, prefix) {
			entry.cancel()
			delete(r.entries, key)
		}
	}
}

// Close stops every tracker (shutdown)
func (r *TrackerRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.entries {
		entry.cancel()
		delete(r.entries, key)
	}
}
