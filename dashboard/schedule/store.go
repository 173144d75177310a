package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thatsmartsite/schedule/libs/dates"
)

// Snapshot is a consistent read of the store for rendering. Record slices are
// copies; callers may keep them across renders.
type Snapshot struct {
	SelectedDate string
	Mode         dates.ViewMode
	StartDate    string
	EndDate      string

	Appointments []Appointment
	TimeBlocks   []TimeBlock
	BlockedDays  []BlockedDay

	// InitialLoading is true only while the very first load is in flight, so
	// views show a skeleton exactly once. Later loads raise Refetching and
	// keep current content on screen.
	InitialLoading bool
	Refetching     bool
	Err            string
}

// Store fetches the calendar record set for the active range and owns the
// read path. Mutations live elsewhere and call Refresh to reconcile.
type Store struct {
	client  *Client
	blocked *BlockedDays
	logger  *slog.Logger

	debounce time.Duration

	mu           sync.Mutex
	selectedDate string
	mode         dates.ViewMode
	startDate    string
	endDate      string
	gen          uint64
	inFlight     int
	loadedOnce   bool
	appointments []Appointment
	timeBlocks   []TimeBlock
	blockedDays  []BlockedDay
	errMsg       string
	timer        *time.Timer
}

type StoreConfig struct {
	// Debounce coalesces bursts of LoadDebounced calls (date-picker dragging,
	// key repeat) into one fetch. Zero means the 200ms default.
	Debounce time.Duration
}

func NewStore(client *Client, blocked *BlockedDays, logger *slog.Logger, cfg StoreConfig) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 200 * time.Millisecond
	}
	return &Store{
		client:   client,
		blocked:  blocked,
		logger:   logger,
		debounce: cfg.Debounce,
	}
}

// Load computes the fetch range for (selectedDate, mode) and fetches
// appointments, time blocks, and blocked days concurrently. A later Load
// supersedes this one: results landing after a newer request are discarded.
func (s *Store) Load(ctx context.Context, selectedDate string, mode dates.ViewMode) error {
	startDate, endDate, err := dates.Range(selectedDate, mode)
	if err != nil {
		// Fail closed: a malformed anchor date never reaches the network.
		return err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.selectedDate = selectedDate
	s.mode = mode
	s.startDate = startDate
	s.endDate = endDate
	s.inFlight++
	s.mu.Unlock()

	appts, blocks, days, fetchErr := s.fetchAll(ctx, startDate, endDate)

	s.mu.Lock()
	s.inFlight--
	if gen != s.gen {
		// A newer range was requested while this fetch was in flight; only the
		// most recent request's data may be applied to view state.
		s.mu.Unlock()
		return nil
	}
	s.loadedOnce = true
	if fetchErr != nil {
		// Fail closed rather than fail stale: an errored range renders empty.
		s.appointments = nil
		s.timeBlocks = nil
		s.blockedDays = nil
		s.errMsg = fetchErr.Error()
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Error("calendar load failed", "start", startDate, "end", endDate, "err", fetchErr)
		}
		return fetchErr
	}
	s.appointments = appts
	s.timeBlocks = blocks
	s.blockedDays = days
	s.errMsg = ""
	s.mu.Unlock()

	if s.blocked != nil {
		s.blocked.applyServerSet(days)
	}
	return nil
}

// Refresh re-loads the currently active range. Content already on screen
// stays visible; only the Refetching flag is raised.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	selectedDate, mode := s.selectedDate, s.mode
	s.mu.Unlock()
	if selectedDate == "" || mode == "" {
		return nil
	}
	return s.Load(ctx, selectedDate, mode)
}

// LoadDebounced schedules a Load after the debounce window, replacing any
// pending one. Used by navigation so rapid stepping issues a single fetch.
func (s *Store) LoadDebounced(selectedDate string, mode dates.ViewMode) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Load(context.Background(), selectedDate, mode); err != nil && s.logger != nil {
			s.logger.Error("debounced calendar load failed", "date", selectedDate, "mode", string(mode), "err", err)
		}
	})
	s.mu.Unlock()
}

// Snapshot returns a copy of the current view state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SelectedDate:   s.selectedDate,
		Mode:           s.mode,
		StartDate:      s.startDate,
		EndDate:        s.endDate,
		Appointments:   append([]Appointment(nil), s.appointments...),
		TimeBlocks:     append([]TimeBlock(nil), s.timeBlocks...),
		BlockedDays:    append([]BlockedDay(nil), s.blockedDays...),
		InitialLoading: s.inFlight > 0 && !s.loadedOnce,
		Refetching:     s.inFlight > 0 && s.loadedOnce,
		Err:            s.errMsg,
	}
	return snap
}

func (s *Store) fetchAll(ctx context.Context, startDate, endDate string) ([]Appointment, []TimeBlock, []BlockedDay, error) {
	var (
		wg    sync.WaitGroup
		appts []Appointment
		blks  []TimeBlock
		days  []BlockedDay

		errMu    sync.Mutex
		firstErr error
	)
	record := func(err error) {
		if err == nil {
			return
		}
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		out, err := s.client.ListAppointments(ctx, startDate, endDate)
		appts = out
		record(err)
	}()
	go func() {
		defer wg.Done()
		out, err := s.client.ListTimeBlocks(ctx, startDate, endDate)
		blks = out
		record(err)
	}()
	go func() {
		defer wg.Done()
		out, err := s.client.ListBlockedDays(ctx, startDate, endDate)
		days = out
		record(err)
	}()
	wg.Wait()

	if firstErr != nil {
		return nil, nil, nil, firstErr
	}
	return appts, blks, days, nil
}
