package model

import "time"

// AppointmentStatuses is the allowed lifecycle set, in rough order.
var AppointmentStatuses = []string{
	"pending", "scheduled", "confirmed", "in_progress", "completed", "cancelled", "no_show",
}

func ValidStatus(s string) bool {
	for _, v := range AppointmentStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID              string
	TenantID        string
	Title           string
	Description     string
	ServiceType     string
	ServiceDuration int
	StartTime       time.Time
	EndTime         time.Time
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	Price           float64
	Deposit         float64
	Notes           string
	InternalNotes   string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BlockTypes label operator time blocks.
var BlockTypes = []string{"unavailable", "break", "maintenance", "personal", "other"}

func ValidBlockType(s string) bool {
	for _, v := range BlockTypes {
		if s == v {
			return true
		}
	}
	return false
}

type TimeBlock struct {
	ID          string
	TenantID    string
	Title       string
	Description string
	BlockType   string
	StartTime   time.Time
	EndTime     time.Time
	CreatedAt   time.Time
}

type BlockedDay struct {
	TenantID    string
	BlockedDate string // YYYY-MM-DD
	Reason      string
	CreatedAt   time.Time
}

// Settings are the per-tenant scheduling knobs. BusinessHours maps weekday
// keys ("monday".."sunday") to open/close windows.
type Settings struct {
	TenantID           string
	TimeSlotInterval   int
	DefaultDuration    int
	BufferTime         int
	AdvanceBookingDays int
	MinNoticeHours     int
	AutoConfirm        bool
	AllowOnlineBooking bool
	BusinessHours      map[string]DayHours
	UpdatedAt          time.Time
}

type DayHours struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed"`
}

// DefaultSettings are applied on reset and for tenants with no saved row.
func DefaultSettings(tenantID string) Settings {
	hours := make(map[string]DayHours, 7)
	for _, d := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		hours[d] = DayHours{Open: "09:00", Close: "17:00"}
	}
	hours["saturday"] = DayHours{Open: "10:00", Close: "14:00"}
	hours["sunday"] = DayHours{Closed: true}
	return Settings{
		TenantID:           tenantID,
		TimeSlotInterval:   15,
		DefaultDuration:    60,
		BufferTime:         0,
		AdvanceBookingDays: 60,
		MinNoticeHours:     2,
		AutoConfirm:        false,
		AllowOnlineBooking: true,
		BusinessHours:      hours,
	}
}
