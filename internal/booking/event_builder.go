package booking

import (
	"strings"

	"github.com/wolfman30/booking-webhook/internal/appointments"
	"github.com/wolfman30/booking-webhook/internal/calendar"
)

const notSpecified = "Not specified"

// EventBuilder maps a request and one parsed interval onto a calendar event.
type EventBuilder struct {
	timeZone string
}

// NewEventBuilder returns a builder that stamps timed events with timeZone.
func NewEventBuilder(timeZone string) *EventBuilder {
	return &EventBuilder{timeZone: timeZone}
}

// Build is pure: identical inputs always give identical events.
func (b *EventBuilder) Build(req *Request, interval appointments.Interval) calendar.Event {
	c := req.Contact
	return calendar.Event{
		Summary:     "Booking: " + c.FullName(),
		Description: describe(c),
		Start:       interval.Start,
		End:         interval.End,
		AllDay:      interval.AllDay,
		TimeZone:    b.timeZone,
	}
}

func describe(c Contact) string {
	var sb strings.Builder
	line := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			value = notSpecified
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(value)
		sb.WriteByte('\n')
	}
	line("Name", c.FullName())
	line("Phone", c.Phone)
	line("Email", c.Email)
	line("Garments", c.Garments)
	line("Event info", c.EventInfo)
	return strings.TrimSuffix(sb.String(), "\n")
}
