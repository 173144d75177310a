package schedule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/thatsmartsite/schedule/libs/dates"
)

// fakeAPI is an in-memory schedule API for exercising the client, store,
// and blocked-day controller against real HTTP round trips.
type fakeAPI struct {
	mu sync.Mutex

	appts        []Appointment
	apptsByStart map[string][]Appointment // keyed by startDate query, overrides appts
	blocks       []TimeBlock
	days         []BlockedDay

	failLists  bool
	failToggle bool

	listDelayFor map[string]time.Duration // keyed by startDate query
	toggleDelay  time.Duration

	toggleCalls int
	createCalls int
	updateCalls int
	lastToken   string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()
	f := &fakeAPI{}

	mux := http.NewServeMux()
	mux.HandleFunc("/appointments", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastToken = r.Header.Get("Authorization")
		f.mu.Unlock()

		if r.Method == http.MethodPost {
			f.mu.Lock()
			f.createCalls++
			f.mu.Unlock()
			var in AppointmentInput
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(Appointment{
				ID: "appt-new", Title: in.Title, ServiceType: in.ServiceType,
				ServiceDuration: in.ServiceDuration, CustomerName: in.CustomerName,
				CustomerPhone: in.CustomerPhone, Status: StatusScheduled,
			})
			return
		}

		start := r.URL.Query().Get("startDate")
		f.mu.Lock()
		delay := f.listDelayFor[start]
		fail := f.failLists
		out := f.appts
		if byStart, ok := f.apptsByStart[start]; ok {
			out = byStart
		}
		f.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		if fail {
			http.Error(w, `{"error":"database unavailable"}`, http.StatusInternalServerError)
			return
		}
		if out == nil {
			out = []Appointment{}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/appointments/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		f.mu.Lock()
		f.updateCalls++
		f.mu.Unlock()
		id := strings.TrimPrefix(r.URL.Path, "/appointments/")
		if id == "missing" {
			http.Error(w, `{"error":"appointment not found"}`, http.StatusNotFound)
			return
		}
		var in AppointmentInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(Appointment{ID: id, Title: in.Title, Status: StatusScheduled})
	})
	mux.HandleFunc("/time-blocks", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail := f.failLists
		out := f.blocks
		f.mu.Unlock()
		if fail {
			http.Error(w, `{"error":"database unavailable"}`, http.StatusInternalServerError)
			return
		}
		if out == nil {
			out = []TimeBlock{}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/blocked-days", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail := f.failLists
		out := append([]BlockedDay(nil), f.days...)
		f.mu.Unlock()
		if fail {
			http.Error(w, `{"error":"database unavailable"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/blocked-days/toggle", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Date   string `json:"date"`
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		delay := f.toggleDelay
		f.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.toggleCalls++
		if f.failToggle {
			http.Error(w, `{"error":"database unavailable"}`, http.StatusInternalServerError)
			return
		}
		for i, d := range f.days {
			if d.Date == in.Date {
				f.days = append(f.days[:i], f.days[i+1:]...)
				_ = json.NewEncoder(w).Encode(ToggleResult{Action: "removed", Date: in.Date})
				return
			}
		}
		f.days = append(f.days, BlockedDay{Date: in.Date, Reason: in.Reason})
		_ = json.NewEncoder(w).Encode(ToggleResult{Action: "added", Date: in.Date, Reason: in.Reason})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		BaseURL: srv.URL,
		Token:   StaticToken("test-token"),
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return f, client
}

func TestClient_SendsRangeAndBearerToken(t *testing.T) {
	f, client := newFakeAPI(t)
	f.appts = []Appointment{{ID: "a1", Title: "Haircut", Status: StatusConfirmed}}

	got, err := client.ListAppointments(t.Context(), "2024-01-15", "2024-01-21")
	if err != nil {
		t.Fatalf("ListAppointments failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("unexpected appointments: %+v", got)
	}
	if f.lastToken != "Bearer test-token" {
		t.Fatalf("expected bearer token, got %q", f.lastToken)
	}
}

func TestClient_DecodesErrorEnvelope(t *testing.T) {
	_, client := newFakeAPI(t)

	_, err := client.UpdateAppointment(t.Context(), "missing", AppointmentInput{Title: "x"})
	if err == nil {
		t.Fatal("expected error for missing appointment")
	}
	if !IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if !strings.Contains(err.Error(), "appointment not found") {
		t.Fatalf("expected server message in error, got %v", err)
	}
}

func TestStore_LoadPopulatesSnapshot(t *testing.T) {
	f, client := newFakeAPI(t)
	f.appts = []Appointment{{ID: "a1", Title: "Haircut"}}
	f.blocks = []TimeBlock{{ID: "b1", Title: "Lunch", BlockType: BlockBreak}}
	f.days = []BlockedDay{{Date: "2024-01-16"}}

	blocked := NewBlockedDays(client, nil)
	store := NewStore(client, blocked, nil, StoreConfig{})

	if err := store.Load(t.Context(), "2024-01-15", "week"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	snap := store.Snapshot()
	if snap.StartDate != "2024-01-15" || snap.EndDate != "2024-01-21" {
		t.Fatalf("unexpected range [%s, %s]", snap.StartDate, snap.EndDate)
	}
	if len(snap.Appointments) != 1 || len(snap.TimeBlocks) != 1 || len(snap.BlockedDays) != 1 {
		t.Fatalf("unexpected record counts: %d/%d/%d",
			len(snap.Appointments), len(snap.TimeBlocks), len(snap.BlockedDays))
	}
	if snap.InitialLoading || snap.Refetching || snap.Err != "" {
		t.Fatalf("unexpected flags: %+v", snap)
	}
	if !blocked.Contains("2024-01-16") {
		t.Fatal("blocked-day mirror should have synced from the fetch")
	}
}

func TestStore_FetchErrorFailsClosed(t *testing.T) {
	f, client := newFakeAPI(t)
	f.appts = []Appointment{{ID: "a1"}}
	store := NewStore(client, nil, nil, StoreConfig{})

	if err := store.Load(t.Context(), "2024-01-15", "week"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	f.mu.Lock()
	f.failLists = true
	f.mu.Unlock()

	if err := store.Load(t.Context(), "2024-01-15", "week"); err == nil {
		t.Fatal("expected load error")
	}
	snap := store.Snapshot()
	if snap.Err == "" {
		t.Fatal("snapshot should carry the error")
	}
	if len(snap.Appointments) != 0 || len(snap.TimeBlocks) != 0 || len(snap.BlockedDays) != 0 {
		t.Fatal("an errored range must render empty, not stale")
	}
}

func TestStore_InvalidDateNeverReachesNetwork(t *testing.T) {
	f, client := newFakeAPI(t)
	store := NewStore(client, nil, nil, StoreConfig{})

	if err := store.Load(t.Context(), "not-a-date", "week"); err == nil {
		t.Fatal("expected error for malformed date")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastToken != "" {
		t.Fatal("no request should have been issued")
	}
}

func TestStore_StaleRangeDiscarded(t *testing.T) {
	f, client := newFakeAPI(t)
	f.apptsByStart = map[string][]Appointment{
		"2024-01-15": {{ID: "old-week"}},
		"2024-01-22": {{ID: "new-week"}},
	}
	f.listDelayFor = map[string]time.Duration{"2024-01-15": 200 * time.Millisecond}
	store := NewStore(client, nil, nil, StoreConfig{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = store.Load(t.Context(), "2024-01-15", "week") // slow, superseded
	}()
	time.Sleep(50 * time.Millisecond)
	if err := store.Load(t.Context(), "2024-01-22", "week"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	wg.Wait()

	snap := store.Snapshot()
	if snap.StartDate != "2024-01-22" {
		t.Fatalf("expected active range 2024-01-22, got %s", snap.StartDate)
	}
	if len(snap.Appointments) != 1 || snap.Appointments[0].ID != "new-week" {
		t.Fatalf("stale results leaked into the snapshot: %+v", snap.Appointments)
	}
}

func TestStore_RefetchKeepsContentOnScreen(t *testing.T) {
	f, client := newFakeAPI(t)
	f.appts = []Appointment{{ID: "a1"}}
	store := NewStore(client, nil, nil, StoreConfig{})

	if err := store.Load(t.Context(), "2024-01-15", "week"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	f.mu.Lock()
	f.listDelayFor = map[string]time.Duration{"2024-01-15": 150 * time.Millisecond}
	f.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = store.Refresh(t.Context())
	}()
	time.Sleep(50 * time.Millisecond)

	snap := store.Snapshot()
	if snap.InitialLoading {
		t.Fatal("a refetch must not show the initial skeleton")
	}
	if !snap.Refetching {
		t.Fatal("expected Refetching during an in-flight refresh")
	}
	if len(snap.Appointments) != 1 {
		t.Fatal("content must stay on screen during a refetch")
	}
	wg.Wait()
}

func TestStore_LoadDebouncedCoalesces(t *testing.T) {
	f, client := newFakeAPI(t)
	f.apptsByStart = map[string][]Appointment{"2024-01-22": {{ID: "final"}}}
	store := NewStore(client, nil, nil, StoreConfig{Debounce: 50 * time.Millisecond})

	store.LoadDebounced("2024-01-08", "week")
	store.LoadDebounced("2024-01-15", "week")
	store.LoadDebounced("2024-01-22", "week")

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := store.Snapshot()
		if snap.StartDate == "2024-01-22" && !snap.Refetching && !snap.InitialLoading {
			if len(snap.Appointments) != 1 || snap.Appointments[0].ID != "final" {
				t.Fatalf("unexpected appointments: %+v", snap.Appointments)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("debounced load never settled: %+v", snap)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBlockedDays_ToggleRoundTrip(t *testing.T) {
	_, client := newFakeAPI(t)
	blocked := NewBlockedDays(client, nil)

	res, err := blocked.Toggle(t.Context(), "2024-01-16", "holiday")
	if err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if res.Action != "added" {
		t.Fatalf("expected added, got %q", res.Action)
	}
	if !blocked.Contains("2024-01-16") {
		t.Fatal("day should be blocked after toggle")
	}

	res, err = blocked.Toggle(t.Context(), "2024-01-16", "")
	if err != nil {
		t.Fatalf("second Toggle failed: %v", err)
	}
	if res.Action != "removed" {
		t.Fatalf("expected removed, got %q", res.Action)
	}
	if blocked.Contains("2024-01-16") {
		t.Fatal("day should be unblocked after the second toggle")
	}
}

func TestBlockedDays_RollbackOnFailure(t *testing.T) {
	f, client := newFakeAPI(t)
	f.failToggle = true
	blocked := NewBlockedDays(client, nil)

	if _, err := blocked.Toggle(t.Context(), "2024-01-16", ""); err == nil {
		t.Fatal("expected toggle error")
	}
	if blocked.Contains("2024-01-16") {
		t.Fatal("optimistic flip must roll back on failure")
	}

	// The other direction: a blocked day stays blocked when unblocking fails.
	f.mu.Lock()
	f.failToggle = false
	f.mu.Unlock()
	if _, err := blocked.Toggle(t.Context(), "2024-01-17", "maintenance"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	f.mu.Lock()
	f.failToggle = true
	f.mu.Unlock()
	if _, err := blocked.Toggle(t.Context(), "2024-01-17", ""); err == nil {
		t.Fatal("expected toggle error")
	}
	if !blocked.Contains("2024-01-17") {
		t.Fatal("failed unblock must restore the blocked state")
	}
}

func TestBlockedDays_OptimisticFlipVisibleBeforeConfirm(t *testing.T) {
	f, client := newFakeAPI(t)
	f.toggleDelay = 150 * time.Millisecond
	blocked := NewBlockedDays(client, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := blocked.Toggle(t.Context(), "2024-01-16", ""); err != nil {
			t.Errorf("Toggle failed: %v", err)
		}
	}()
	time.Sleep(50 * time.Millisecond)
	if !blocked.Contains("2024-01-16") {
		t.Fatal("flip should be visible before the server confirms")
	}
	wg.Wait()
}

func TestBlockedDays_PerDateSerialization(t *testing.T) {
	f, client := newFakeAPI(t)
	f.toggleDelay = 150 * time.Millisecond
	blocked := NewBlockedDays(client, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = blocked.Toggle(t.Context(), "2024-01-16", "")
	}()
	time.Sleep(50 * time.Millisecond)

	if _, err := blocked.Toggle(t.Context(), "2024-01-16", ""); err != ErrToggleInFlight {
		t.Fatalf("expected ErrToggleInFlight for the same date, got %v", err)
	}
	if _, err := blocked.Toggle(t.Context(), "2024-01-17", ""); err != nil {
		t.Fatalf("a different date must not be serialized: %v", err)
	}
	wg.Wait()
}

func TestBlockedDays_ServerSetSuppressedDuringToggle(t *testing.T) {
	f, client := newFakeAPI(t)
	f.toggleDelay = 150 * time.Millisecond
	blocked := NewBlockedDays(client, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = blocked.Toggle(t.Context(), "2024-01-16", "")
	}()
	time.Sleep(50 * time.Millisecond)

	// A fetch completing mid-toggle must not wipe the optimistic flip.
	blocked.applyServerSet([]BlockedDay{})
	if !blocked.Contains("2024-01-16") {
		t.Fatal("wholesale replace must be suppressed while a toggle is in flight")
	}
	wg.Wait()

	// With nothing in flight the server set wins.
	blocked.applyServerSet([]BlockedDay{{Date: "2024-02-01"}})
	if blocked.Contains("2024-01-16") || !blocked.Contains("2024-02-01") {
		t.Fatalf("expected server set to replace the mirror, got %v", blocked.Dates())
	}
}

func TestBlockedDays_RefresherRunsAfterConfirm(t *testing.T) {
	_, client := newFakeAPI(t)
	blocked := NewBlockedDays(client, nil)

	refreshed := make(chan struct{}, 1)
	blocked.SetRefresher(func(ctx context.Context) error {
		refreshed <- struct{}{}
		return nil
	})

	if _, err := blocked.Toggle(t.Context(), "2024-01-16", ""); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("refresher never ran after a confirmed toggle")
	}
}

func TestForm_CreateDefaults(t *testing.T) {
	f, err := NewCreateForm("2024-01-15", "")
	if err != nil {
		t.Fatalf("NewCreateForm failed: %v", err)
	}
	if f.StartClock != "09:00" || f.ServiceDuration != 60 || f.EndClock != "10:00" {
		t.Fatalf("unexpected defaults: start=%s dur=%d end=%s", f.StartClock, f.ServiceDuration, f.EndClock)
	}
}

func TestForm_DurationRecomputesEnd(t *testing.T) {
	f, err := NewCreateForm("2024-01-15", "09:00")
	if err != nil {
		t.Fatalf("NewCreateForm failed: %v", err)
	}
	if err := f.SetDuration(90); err != nil {
		t.Fatalf("SetDuration failed: %v", err)
	}
	if f.EndClock != "10:30" {
		t.Fatalf("expected end 10:30, got %s", f.EndClock)
	}
	if err := f.SetStartClock("14:00"); err != nil {
		t.Fatalf("SetStartClock failed: %v", err)
	}
	if f.EndClock != "15:30" {
		t.Fatalf("expected end 15:30 after moving start, got %s", f.EndClock)
	}
}

func TestForm_ValidateRequiredFields(t *testing.T) {
	f, err := NewCreateForm("2024-01-15", "")
	if err != nil {
		t.Fatalf("NewCreateForm failed: %v", err)
	}
	if err := f.Validate(); err == nil {
		t.Fatal("empty form should not validate")
	}
	f.Title = "Haircut"
	f.ServiceType = "haircut"
	f.CustomerName = "Dana Fields"
	if err := f.Validate(); err == nil {
		t.Fatal("missing phone should not validate")
	}
	f.CustomerPhone = "555-0142"
	if err := f.Validate(); err != nil {
		t.Fatalf("complete form should validate: %v", err)
	}
}

func TestForm_SubmitCreateAndEdit(t *testing.T) {
	api, client := newFakeAPI(t)

	f, err := NewCreateForm("2024-01-15", "09:00")
	if err != nil {
		t.Fatalf("NewCreateForm failed: %v", err)
	}
	f.Title = "Haircut"
	f.ServiceType = "haircut"
	f.CustomerName = "Dana Fields"
	f.CustomerPhone = "555-0142"

	created, err := f.Submit(t.Context(), client)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if created.ID == "" || api.createCalls != 1 {
		t.Fatalf("expected one create call, got %d (id %q)", api.createCalls, created.ID)
	}

	edit := NewEditForm(created)
	edit.ID = "appt-new"
	edit.Date = "2024-01-15"
	edit.StartClock = "09:00"
	edit.EndClock = "10:00"
	edit.Title = "Haircut and beard trim"
	if _, err := edit.Submit(t.Context(), client); err != nil {
		t.Fatalf("edit Submit failed: %v", err)
	}
	if api.updateCalls != 1 {
		t.Fatalf("expected one update call, got %d", api.updateCalls)
	}
}

func TestForm_SubmitErrorStaysInline(t *testing.T) {
	_, client := newFakeAPI(t)

	f, err := NewCreateForm("2024-01-15", "09:00")
	if err != nil {
		t.Fatalf("NewCreateForm failed: %v", err)
	}
	f.ID = "missing" // routes to the 404 update path
	f.Title = "Haircut"
	f.ServiceType = "haircut"
	f.CustomerName = "Dana Fields"
	f.CustomerPhone = "555-0142"

	if _, err := f.Submit(t.Context(), client); err == nil {
		t.Fatal("expected submit error")
	}
	if f.Err == "" {
		t.Fatal("submit error should be recorded on the form")
	}
}

func TestNavigator_StepsByMode(t *testing.T) {
	var (
		gotDate string
		gotMode dates.ViewMode
		calls   int
	)
	n := NewNavigator("2024-01-15", dates.ViewWeek, func(d string, m dates.ViewMode) {
		gotDate, gotMode, calls = d, m, calls+1
	})

	n.Next()
	if n.Date() != "2024-01-22" || gotDate != "2024-01-22" {
		t.Fatalf("week Next: got %s (observer %s)", n.Date(), gotDate)
	}
	n.Prev()
	n.Prev()
	if n.Date() != "2024-01-08" {
		t.Fatalf("week Prev twice: got %s", n.Date())
	}

	n.SetMode(dates.ViewDay)
	n.Next()
	if n.Date() != "2024-01-09" {
		t.Fatalf("day Next: got %s", n.Date())
	}

	n.SetMode(dates.ViewMonth)
	n.Next()
	if n.Date() != "2024-02-09" {
		t.Fatalf("month Next: got %s", n.Date())
	}
	if gotMode != dates.ViewMonth {
		t.Fatalf("observer saw mode %s, want month", gotMode)
	}
	if calls != 7 {
		t.Fatalf("expected 7 observer notifications, got %d", calls)
	}
}

func TestNavigator_TodayAndSetDate(t *testing.T) {
	n := NewNavigator("2024-01-15", dates.ViewWeek, nil)

	n.Today()
	if n.Date() != dates.Today() {
		t.Fatalf("Today: got %s", n.Date())
	}

	n.SetDate("2025-06-01")
	if n.Date() != "2025-06-01" {
		t.Fatalf("SetDate: got %s", n.Date())
	}
	n.SetDate("garbage")
	if n.Date() != "2025-06-01" {
		t.Fatal("an invalid date must be ignored")
	}
	n.SetMode(dates.ViewMode("year"))
	if n.Mode() != dates.ViewWeek {
		t.Fatal("an invalid mode must be ignored")
	}
}

func TestNavigator_InvalidStartFallsBack(t *testing.T) {
	n := NewNavigator("nope", dates.ViewMode("bogus"), nil)
	if n.Date() != dates.Today() || n.Mode() != dates.ViewWeek {
		t.Fatalf("fallbacks not applied: %s %s", n.Date(), n.Mode())
	}
}
