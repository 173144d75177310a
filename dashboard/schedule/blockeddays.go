package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/thatsmartsite/schedule/libs/dates"
)

// ErrToggleInFlight is returned when a toggle for the same date has not
// finished yet. Toggles for different dates proceed independently.
var ErrToggleInFlight = errors.New("blocked-day toggle already in flight for this date")

// BlockedDays mirrors the server's blocked-day set and applies toggles
// optimistically: the local mirror flips before the request is sent, so the
// calendar repaints immediately, and flips back if the server rejects it.
type BlockedDays struct {
	client *Client
	logger *slog.Logger

	// refresher re-syncs the calendar after a confirmed toggle. Wired to
	// Store.Refresh; nil in tests that only exercise the mirror.
	refresher func(context.Context) error

	mu       sync.Mutex
	days     map[string]string // date -> reason
	pending  map[string]bool   // dates with a toggle in flight
	inFlight int
}

func NewBlockedDays(client *Client, logger *slog.Logger) *BlockedDays {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockedDays{
		client:  client,
		logger:  logger,
		days:    make(map[string]string),
		pending: make(map[string]bool),
	}
}

// SetRefresher installs the post-toggle reconciliation hook.
func (b *BlockedDays) SetRefresher(fn func(context.Context) error) {
	b.mu.Lock()
	b.refresher = fn
	b.mu.Unlock()
}

// Contains reports whether date is currently blocked in the local mirror.
func (b *BlockedDays) Contains(date string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.days[date]
	return ok
}

// Dates returns the blocked dates in ascending order.
func (b *BlockedDays) Dates() []string {
	b.mu.Lock()
	out := make([]string, 0, len(b.days))
	for d := range b.days {
		out = append(out, d)
	}
	b.mu.Unlock()
	sort.Strings(out)
	return out
}

// Toggle flips the blocked state of date. The local mirror flips before the
// server round trip; on rejection it flips back and the error is returned so
// the caller can surface it. At most one toggle per date runs at a time.
func (b *BlockedDays) Toggle(ctx context.Context, date, reason string) (ToggleResult, error) {
	if !dates.IsValid(date) {
		return ToggleResult{}, errors.New("invalid date")
	}

	b.mu.Lock()
	if b.pending[date] {
		b.mu.Unlock()
		return ToggleResult{}, ErrToggleInFlight
	}
	b.pending[date] = true
	b.inFlight++

	prevReason, wasBlocked := b.days[date]
	if wasBlocked {
		delete(b.days, date)
	} else {
		b.days[date] = reason
	}
	b.mu.Unlock()

	res, err := b.client.ToggleBlockedDay(ctx, date, reason)

	b.mu.Lock()
	delete(b.pending, date)
	b.inFlight--
	if err != nil {
		// Roll back the optimistic flip.
		if wasBlocked {
			b.days[date] = prevReason
		} else {
			delete(b.days, date)
		}
		b.mu.Unlock()
		if b.logger != nil {
			b.logger.Error("blocked-day toggle failed", "date", date, "err", err)
		}
		return ToggleResult{}, err
	}
	// Settle the mirror on the server's verdict in case it disagrees with
	// the optimistic flip (a concurrent operator session, for instance).
	switch res.Action {
	case "added":
		b.days[date] = res.Reason
	case "removed":
		delete(b.days, date)
	}
	refresher := b.refresher
	b.mu.Unlock()

	if refresher != nil {
		go func() {
			if err := refresher(context.Background()); err != nil && b.logger != nil {
				b.logger.Error("post-toggle refresh failed", "date", date, "err", err)
			}
		}()
	}
	return res, nil
}

// applyServerSet replaces the mirror with the server's blocked-day set after
// a calendar fetch. Skipped while any toggle is in flight: a wholesale
// replace mid-toggle would undo the optimistic flip and make the day appear
// to bounce.
func (b *BlockedDays) applyServerSet(days []BlockedDay) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight > 0 {
		return
	}
	next := make(map[string]string, len(days))
	for _, d := range days {
		next[d.Date] = d.Reason
	}
	b.days = next
}
