package jobs

import "time"

// AppointmentEvent is the decoded payload of the schedule service's
// appointment created/updated events.
type AppointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	TenantID      string `json:"tenant_id"`
	ServiceType   string `json:"service_type"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerEmail string `json:"customer_email"`
}

// Plan decides whether the appointment needs a reminder and builds the job.
// SMS wins over email when both contacts are present. Returns false when the
// appointment is not in a remindable status, has no contact, or the reminder
// moment has already passed.
func Plan(evt AppointmentEvent, lead time.Duration, now time.Time) (Job, bool) {
	switch evt.Status {
	case "scheduled", "confirmed":
	default:
		return Job{}, false
	}

	start, err := time.Parse(time.RFC3339, evt.StartTime)
	if err != nil {
		return Job{}, false
	}

	channel, recipient := "", ""
	switch {
	case evt.CustomerPhone != "":
		channel, recipient = "sms", evt.CustomerPhone
	case evt.CustomerEmail != "":
		channel, recipient = "email", evt.CustomerEmail
	default:
		return Job{}, false
	}

	remindAt := start.Add(-lead)
	if !remindAt.After(now) {
		return Job{}, false
	}

	return Job{
		IdempotencyKey: evt.AppointmentID + "|" + remindAt.UTC().Format(time.RFC3339) + "|" + channel,
		AppointmentID:  evt.AppointmentID,
		TenantID:       evt.TenantID,
		Channel:        channel,
		Recipient:      recipient,
		RemindAt:       remindAt,
		TemplateData: map[string]any{
			"customer_name": evt.CustomerName,
			"service_type":  evt.ServiceType,
			"start_time":    start.UTC().Format(time.RFC3339),
		},
	}, true
}
