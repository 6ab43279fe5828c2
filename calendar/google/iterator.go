package google

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/guilherme-santos/clinicagenda/internal"
)

// Private extended properties carrying the appointment fields.
const (
	propPatient      = "patient"
	propProcedure    = "procedure"
	propProfessional = "professional"
	propStatus       = "status"
	propContact      = "contact"
	propColor        = "color"
)

type eventOrError struct {
	e   *internal.Event
	err error
}

type eventIterator struct {
	events  chan eventOrError
	current eventOrError
}

func newEventIterator() *eventIterator {
	return &eventIterator{
		events: make(chan eventOrError),
	}
}

func (it *eventIterator) Next() (ok bool) {
	it.current, ok = <-it.events
	if it.current.err != nil {
		return false
	}
	return ok
}

func (it *eventIterator) Event() *internal.Event {
	c := it.current
	if c.e == nil && c.err == nil {
		panic("google: Event() called before Next()")
	}
	return c.e
}

func (it *eventIterator) Err() error {
	return it.current.err
}

// drain collects every event. On error the producer is left to finish on
// its own, it stops after sending the error.
func drain(it *eventIterator) ([]*internal.Event, error) {
	var events []*internal.Event
	for it.Next() {
		events = append(events, it.Event())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func newCalendar(item *calendar.CalendarListEntry) *internal.Calendar {
	name := item.SummaryOverride
	if name == "" {
		name = item.Summary
	}
	return &internal.Calendar{
		ID:    item.Id,
		Name:  name,
		Color: item.BackgroundColor,
	}
}

// newEvent converts a Google event. Cancelled events return nil.
func newEvent(event *calendar.Event) *internal.Event {
	if event.Status == "cancelled" {
		return nil
	}

	e := &internal.Event{
		ID:       internal.ExternalID(event.Id),
		StartsAt: parseEventTime(event.Start),
		EndsAt:   parseEventTime(event.End),
		Status:   internal.ParseStatus(event.Status),
	}

	var props map[string]string
	if event.ExtendedProperties != nil {
		props = event.ExtendedProperties.Private
	}
	if patient, ok := props[propPatient]; ok {
		e.Patient = patient
		e.Procedure = props[propProcedure]
	} else {
		e.Patient, e.Procedure = internal.SplitSummary(event.Summary)
	}
	e.Professional = props[propProfessional]
	e.Contact = props[propContact]
	e.Color = props[propColor]
	if status, ok := props[propStatus]; ok {
		e.Status = internal.ParseStatus(status)
	}
	return e
}

func parseEventTime(t *calendar.EventDateTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.DateTime != "" {
		v, _ := time.Parse(time.RFC3339, t.DateTime)
		return v
	}
	// All-day events only carry a date.
	loc := time.UTC
	if t.TimeZone != "" {
		if l, err := time.LoadLocation(t.TimeZone); err == nil {
			loc = l
		}
	}
	v, _ := time.ParseInLocation(internal.DateFormat, t.Date, loc)
	return v
}

func newGoogleEvent(event *internal.Event) *calendar.Event {
	props := map[string]string{
		propPatient:   event.Patient,
		propProcedure: event.Procedure,
		propStatus:    event.Status.String(),
	}
	if event.Professional != "" {
		props[propProfessional] = event.Professional
	}
	if event.Contact != "" {
		props[propContact] = event.Contact
	}
	if event.Color != "" {
		props[propColor] = event.Color
	}

	// A cancelled status on Google hides the event, so cancelled
	// appointments only carry it in their properties.
	status := "confirmed"
	if event.Status == internal.StatusPending {
		status = "tentative"
	}

	return &calendar.Event{
		Summary:     event.Summary(),
		Description: event.Contact,
		Status:      status,
		Start: &calendar.EventDateTime{
			DateTime: event.StartsAt.Format(time.RFC3339),
		},
		End: &calendar.EventDateTime{
			DateTime: event.EndsAt.Format(time.RFC3339),
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: props,
		},
		Reminders: &calendar.EventReminders{
			UseDefault: true,
		},
	}
}
