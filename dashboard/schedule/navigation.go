package schedule

import (
	"sync"

	"github.com/thatsmartsite/schedule/libs/dates"
)

// Navigator tracks the selected date and view mode and notifies an observer
// on every change. The observer is typically Store.LoadDebounced, so holding
// an arrow key steps the calendar without a fetch per step.
type Navigator struct {
	mu       sync.Mutex
	date     string
	mode     dates.ViewMode
	onChange func(date string, mode dates.ViewMode)
}

// NewNavigator starts at date in the given mode. An invalid date falls back
// to today; an invalid mode falls back to the week view.
func NewNavigator(date string, mode dates.ViewMode, onChange func(string, dates.ViewMode)) *Navigator {
	if !dates.IsValid(date) {
		date = dates.Today()
	}
	if !mode.Valid() {
		mode = dates.ViewWeek
	}
	return &Navigator{date: date, mode: mode, onChange: onChange}
}

// Date returns the selected date.
func (n *Navigator) Date() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.date
}

// Mode returns the active view mode.
func (n *Navigator) Mode() dates.ViewMode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mode
}

// Prev steps backward one unit of the active mode.
func (n *Navigator) Prev() { n.step(-1) }

// Next steps forward one unit of the active mode.
func (n *Navigator) Next() { n.step(1) }

func (n *Navigator) step(dir int) {
	n.mu.Lock()
	var (
		next string
		err  error
	)
	switch n.mode {
	case dates.ViewDay:
		next, err = dates.AddDays(n.date, dir)
	case dates.ViewWeek:
		next, err = dates.AddDays(n.date, 7*dir)
	case dates.ViewMonth:
		next, err = dates.AddMonths(n.date, dir)
	}
	if err != nil || next == "" {
		n.mu.Unlock()
		return
	}
	n.date = next
	n.notifyLocked()
}

// Today jumps to the current date, keeping the mode.
func (n *Navigator) Today() {
	n.mu.Lock()
	n.date = dates.Today()
	n.notifyLocked()
}

// SetDate jumps to an arbitrary date. Invalid dates are ignored.
func (n *Navigator) SetDate(date string) {
	if !dates.IsValid(date) {
		return
	}
	n.mu.Lock()
	n.date = date
	n.notifyLocked()
}

// SetMode switches the view granularity, keeping the date.
func (n *Navigator) SetMode(mode dates.ViewMode) {
	if !mode.Valid() {
		return
	}
	n.mu.Lock()
	n.mode = mode
	n.notifyLocked()
}

// notifyLocked fires the observer outside the lock and releases it.
func (n *Navigator) notifyLocked() {
	date, mode, fn := n.date, n.mode, n.onChange
	n.mu.Unlock()
	if fn != nil {
		fn(date, mode)
	}
}
