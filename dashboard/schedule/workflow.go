package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thatsmartsite/schedule/libs/dates"
)

// DurationPresets are the selectable appointment lengths, in minutes.
var DurationPresets = []int{30, 60, 90, 120, 180, 240}

const (
	defaultStartClock = "09:00"
	defaultDuration   = 60
	clockLayout       = "15:04"
)

// Form drives the appointment create/edit workflow. It accumulates field
// edits, keeps the end time in sync with the duration, and submits the final
// shape to the API. Submit failures land in Err and leave the form editable;
// nothing is applied to the calendar until the server confirms.
type Form struct {
	ID string // empty for create

	Title           string
	Description     string
	ServiceType     string
	ServiceDuration int
	Date            string
	StartClock      string // HH:MM
	EndClock        string // HH:MM
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	Price           float64
	Deposit         float64
	Notes           string
	InternalNotes   string

	Err string
}

// NewCreateForm opens a blank form anchored to a calendar day. slotClock is
// the clicked slot's start time; empty means the 09:00 default. The end time
// starts one default duration after the start.
func NewCreateForm(date, slotClock string) (*Form, error) {
	if !dates.IsValid(date) {
		return nil, fmt.Errorf("invalid date %q", date)
	}
	start := slotClock
	if start == "" {
		start = defaultStartClock
	}
	if _, err := time.Parse(clockLayout, start); err != nil {
		return nil, fmt.Errorf("invalid start time %q", slotClock)
	}
	f := &Form{
		Date:            date,
		StartClock:      start,
		ServiceDuration: defaultDuration,
	}
	f.EndClock = addMinutes(start, defaultDuration)
	return f, nil
}

// NewEditForm opens a form pre-filled from an existing appointment.
func NewEditForm(a Appointment) *Form {
	return &Form{
		ID:              a.ID,
		Title:           a.Title,
		Description:     a.Description,
		ServiceType:     a.ServiceType,
		ServiceDuration: a.ServiceDuration,
		Date:            a.StartTime.Format(dates.Layout),
		StartClock:      a.StartTime.Format(clockLayout),
		EndClock:        a.EndTime.Format(clockLayout),
		CustomerName:    a.CustomerName,
		CustomerPhone:   a.CustomerPhone,
		CustomerEmail:   a.CustomerEmail,
		Price:           a.Price,
		Deposit:         a.Deposit,
		Notes:           a.Notes,
		InternalNotes:   a.InternalNotes,
	}
}

// SetStartClock moves the start time and slides the end to preserve the
// current duration.
func (f *Form) SetStartClock(clock string) error {
	if _, err := time.Parse(clockLayout, clock); err != nil {
		return fmt.Errorf("invalid start time %q", clock)
	}
	f.StartClock = clock
	f.EndClock = addMinutes(clock, f.ServiceDuration)
	return nil
}

// SetDuration picks a new length and recomputes the end from the current
// start. Any positive minute count is accepted, not just the presets.
func (f *Form) SetDuration(minutes int) error {
	if minutes <= 0 {
		return errors.New("duration must be positive")
	}
	f.ServiceDuration = minutes
	f.EndClock = addMinutes(f.StartClock, minutes)
	return nil
}

// SetEndClock overrides the end time directly, breaking the link to the
// duration until the next SetDuration or SetStartClock.
func (f *Form) SetEndClock(clock string) error {
	if _, err := time.Parse(clockLayout, clock); err != nil {
		return fmt.Errorf("invalid end time %q", clock)
	}
	f.EndClock = clock
	return nil
}

// Validate checks the required fields and returns the first problem found.
func (f *Form) Validate() error {
	switch {
	case strings.TrimSpace(f.Title) == "":
		return errors.New("title is required")
	case strings.TrimSpace(f.ServiceType) == "":
		return errors.New("service type is required")
	case !dates.IsValid(f.Date):
		return errors.New("a valid date is required")
	case f.StartClock == "":
		return errors.New("start time is required")
	case strings.TrimSpace(f.CustomerName) == "":
		return errors.New("customer name is required")
	case strings.TrimSpace(f.CustomerPhone) == "":
		return errors.New("customer phone is required")
	}
	if f.EndClock != "" && f.EndClock <= f.StartClock {
		return errors.New("end time must be after start time")
	}
	return nil
}

// Submit validates and sends the form, creating or updating depending on ID.
// The returned appointment is the server record. Errors are also recorded in
// f.Err so the form can render them inline and stay open.
func (f *Form) Submit(ctx context.Context, client *Client) (Appointment, error) {
	f.Err = ""
	if err := f.Validate(); err != nil {
		f.Err = err.Error()
		return Appointment{}, err
	}

	in := AppointmentInput{
		Title:           f.Title,
		Description:     f.Description,
		ServiceType:     f.ServiceType,
		ServiceDuration: f.ServiceDuration,
		StartTime:       f.Date + "T" + f.StartClock + ":00",
		EndTime:         f.Date + "T" + f.EndClock + ":00",
		CustomerName:    f.CustomerName,
		CustomerPhone:   f.CustomerPhone,
		CustomerEmail:   f.CustomerEmail,
		Price:           f.Price,
		Deposit:         f.Deposit,
		Notes:           f.Notes,
		InternalNotes:   f.InternalNotes,
	}

	var (
		out Appointment
		err error
	)
	if f.ID == "" {
		out, err = client.CreateAppointment(ctx, in)
	} else {
		out, err = client.UpdateAppointment(ctx, f.ID, in)
	}
	if err != nil {
		f.Err = err.Error()
		return Appointment{}, err
	}
	return out, nil
}

// addMinutes shifts an HH:MM clock forward, wrapping past midnight.
func addMinutes(clock string, minutes int) string {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return clock
	}
	return t.Add(time.Duration(minutes) * time.Minute).Format(clockLayout)
}
