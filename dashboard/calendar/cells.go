// Package calendar resolves the fetched schedule records into view grids.
// Resolution is pure: records in, cells out, no fetching and no clocks other
// than the today marker.
package calendar

import (
	"sort"
	"time"

	"github.com/thatsmartsite/schedule/dashboard/schedule"
	"github.com/thatsmartsite/schedule/libs/dates"
)

// Occupant is what a calendar cell displays. Exactly one of the concrete
// types below; renderers switch on it.
type Occupant interface{ isOccupant() }

// Empty marks a bookable cell. Date and Clock seed the create form when the
// operator clicks it; Clock is empty outside the day view.
type Empty struct {
	Date  string
	Clock string
}

// AppointmentCell shows one or more appointments. Week cells carry one;
// month cells carry up to three with the rest folded into Overflow.
type AppointmentCell struct {
	Appointments []schedule.Appointment
	Overflow     int
}

// TimeBlockCell shows an operator time block.
type TimeBlockCell struct {
	Block schedule.TimeBlock
}

// BlockedCell marks a whole day unavailable. It suppresses everything else
// on the day.
type BlockedCell struct {
	Reason string
}

func (Empty) isOccupant()           {}
func (AppointmentCell) isOccupant() {}
func (TimeBlockCell) isOccupant()   {}
func (BlockedCell) isOccupant()     {}

// BlockedSet answers day-blocked lookups. *schedule.BlockedDays satisfies it.
type BlockedSet interface {
	Contains(date string) bool
}

// Day view hours: twelve hourly slots from 08:00 through 19:00.
const (
	DayStartHour = 8
	DaySlotCount = 12
)

// Slot is one hour row of the day view.
type Slot struct {
	Clock    string // HH:00
	Occupant Occupant
}

// DayView is the resolved single-day grid.
type DayView struct {
	Date  string
	Slots []Slot
}

// WeekCell is one of the seven day columns of the week view.
type WeekCell struct {
	Date            string
	IsToday         bool
	InSelectedMonth bool
	Occupant        Occupant
}

// MonthCell is one of the 42 cells of the month grid.
type MonthCell struct {
	Date     string
	IsToday  bool
	InMonth  bool
	Occupant Occupant
}

// ResolveDay maps appointments and time blocks onto the hourly slots of one
// day. A slot shows the appointment starting within its hour, else a time
// block covering it, else Empty seeded with the slot's date and clock.
func ResolveDay(date string, appts []schedule.Appointment, blocks []schedule.TimeBlock) (DayView, error) {
	day, err := time.ParseInLocation(dates.Layout, date, time.Local)
	if err != nil {
		return DayView{}, err
	}

	dayAppts := forDate(date, appts, func(a schedule.Appointment) time.Time { return a.StartTime })
	view := DayView{Date: date, Slots: make([]Slot, DaySlotCount)}
	for i := range view.Slots {
		hour := DayStartHour + i
		slotStart := day.Add(time.Duration(hour) * time.Hour)
		clock := slotStart.Format("15:04")

		var occ Occupant
		for _, a := range dayAppts {
			if a.StartTime.In(time.Local).Hour() == hour {
				occ = AppointmentCell{Appointments: []schedule.Appointment{a}}
				break
			}
		}
		if occ == nil {
			for _, b := range blocks {
				if covers(b, slotStart) {
					occ = TimeBlockCell{Block: b}
					break
				}
			}
		}
		if occ == nil {
			occ = Empty{Date: date, Clock: clock}
		}
		view.Slots[i] = Slot{Clock: clock, Occupant: occ}
	}
	return view, nil
}

// ResolveWeek builds the seven day cells of the week containing selectedDate.
// Per day, a blocked marker wins over appointments, appointments over time
// blocks, time blocks over empty.
func ResolveWeek(selectedDate string, appts []schedule.Appointment, blocks []schedule.TimeBlock, blocked BlockedSet) ([]WeekCell, error) {
	week, err := dates.WeekDates(selectedDate)
	if err != nil {
		return nil, err
	}
	today := dates.Today()

	cells := make([]WeekCell, len(week))
	for i, d := range week {
		sameMonth, err := dates.SameMonth(d, selectedDate)
		if err != nil {
			return nil, err
		}
		cells[i] = WeekCell{
			Date:            d,
			IsToday:         d == today,
			InSelectedMonth: sameMonth,
			Occupant:        occupantFor(d, appts, blocks, blocked, 1),
		}
	}
	return cells, nil
}

// ResolveMonth builds the 42-cell grid for the month containing selectedDate.
// Appointment cells list up to three entries; the rest fold into Overflow.
func ResolveMonth(selectedDate string, appts []schedule.Appointment, blocks []schedule.TimeBlock, blocked BlockedSet) ([]MonthCell, error) {
	grid, err := dates.MonthGrid(selectedDate)
	if err != nil {
		return nil, err
	}
	today := dates.Today()

	cells := make([]MonthCell, len(grid))
	for i, d := range grid {
		inMonth, err := dates.SameMonth(d, selectedDate)
		if err != nil {
			return nil, err
		}
		cells[i] = MonthCell{
			Date:     d,
			IsToday:  d == today,
			InMonth:  inMonth,
			Occupant: occupantFor(d, appts, blocks, blocked, 3),
		}
	}
	return cells, nil
}

// occupantFor resolves the headline content of one day cell. maxAppts caps
// the listed appointments; the remainder becomes the overflow count.
func occupantFor(date string, appts []schedule.Appointment, blocks []schedule.TimeBlock, blocked BlockedSet, maxAppts int) Occupant {
	if blocked != nil && blocked.Contains(date) {
		return BlockedCell{}
	}
	dayAppts := forDate(date, appts, func(a schedule.Appointment) time.Time { return a.StartTime })
	if len(dayAppts) > 0 {
		listed := dayAppts
		overflow := 0
		if len(listed) > maxAppts {
			overflow = len(listed) - maxAppts
			listed = listed[:maxAppts]
		}
		return AppointmentCell{Appointments: listed, Overflow: overflow}
	}
	dayBlocks := forDate(date, blocks, func(b schedule.TimeBlock) time.Time { return b.StartTime })
	if len(dayBlocks) > 0 {
		return TimeBlockCell{Block: dayBlocks[0]}
	}
	return Empty{Date: date}
}

// forDate filters records starting on date, sorted by start time.
func forDate[T any](date string, records []T, start func(T) time.Time) []T {
	var out []T
	for _, r := range records {
		if start(r).In(time.Local).Format(dates.Layout) == date {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return start(out[i]).Before(start(out[j])) })
	return out
}

// covers reports whether a time block spans the given instant.
func covers(b schedule.TimeBlock, at time.Time) bool {
	return !at.Before(b.StartTime.In(time.Local)) && at.Before(b.EndTime.In(time.Local))
}
