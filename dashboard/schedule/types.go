package schedule

import "time"

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Tone maps a status to its visual treatment in the calendar views.
func (s Status) Tone() string {
	switch s {
	case StatusConfirmed:
		return "green"
	case StatusScheduled:
		return "blue"
	case StatusInProgress:
		return "orange"
	case StatusCompleted:
		return "gray"
	case StatusCancelled, StatusNoShow:
		return "red"
	default:
		return "yellow"
	}
}

// Appointment is a customer booking on the tenant's calendar.
type Appointment struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	ServiceType     string    `json:"service_type"`
	ServiceDuration int       `json:"service_duration"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	CustomerName    string    `json:"customer_name"`
	CustomerPhone   string    `json:"customer_phone"`
	CustomerEmail   string    `json:"customer_email,omitempty"`
	Price           float64   `json:"price,omitempty"`
	Deposit         float64   `json:"deposit,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	InternalNotes   string    `json:"internal_notes,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BlockType labels an operator-defined time block.
type BlockType string

const (
	BlockUnavailable BlockType = "unavailable"
	BlockBreak       BlockType = "break"
	BlockMaintenance BlockType = "maintenance"
	BlockPersonal    BlockType = "personal"
	BlockOther       BlockType = "other"
)

func (b BlockType) Valid() bool {
	switch b {
	case BlockUnavailable, BlockBreak, BlockMaintenance, BlockPersonal, BlockOther:
		return true
	}
	return false
}

// TimeBlock reserves a sub-day time range not tied to a customer.
type TimeBlock struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	BlockType   BlockType `json:"block_type"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlockedDay marks a whole calendar day unavailable for booking.
type BlockedDay struct {
	Date   string `json:"blocked_date"`
	Reason string `json:"reason,omitempty"`
}

// AppointmentInput is the write shape for create and update calls.
type AppointmentInput struct {
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	ServiceType     string  `json:"service_type"`
	ServiceDuration int     `json:"service_duration"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	CustomerName    string  `json:"customer_name"`
	CustomerPhone   string  `json:"customer_phone"`
	CustomerEmail   string  `json:"customer_email,omitempty"`
	Price           float64 `json:"price,omitempty"`
	Deposit         float64 `json:"deposit,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	InternalNotes   string  `json:"internal_notes,omitempty"`
}

// ToggleResult reports the outcome of a blocked-day toggle.
type ToggleResult struct {
	Action string `json:"action"` // "added" or "removed"
	Date   string `json:"date"`
	Reason string `json:"reason,omitempty"`
}
