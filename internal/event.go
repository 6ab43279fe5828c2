package internal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventID identifies an appointment. Appointments saved locally before they
// reach a calendar carry a numeric id, synced ones carry the provider's id.
type EventID struct {
	local    int64
	external string
}

func LocalID(id int64) EventID {
	return EventID{local: id}
}

func ExternalID(id string) EventID {
	return EventID{external: id}
}

// ParseEventID treats short all-digit values as local ids.
func ParseEventID(v string) EventID {
	if len(v) > 0 && len(v) <= 18 {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return LocalID(n)
		}
	}
	return ExternalID(v)
}

func (id EventID) IsZero() bool {
	return id.local == 0 && id.external == ""
}

func (id EventID) IsLocal() bool {
	return id.local != 0
}

func (id EventID) Local() int64 {
	return id.local
}

func (id EventID) External() string {
	return id.external
}

func (id EventID) String() string {
	if id.IsLocal() {
		return strconv.FormatInt(id.local, 10)
	}
	return id.external
}

func (id EventID) MarshalJSON() ([]byte, error) {
	if id.IsLocal() {
		return []byte(strconv.FormatInt(id.local, 10)), nil
	}
	if id.external == "" {
		return []byte("null"), nil
	}
	return json.Marshal(id.external)
}

func (id *EventID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch {
	case s == "null" || s == `""`:
		*id = EventID{}
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*id = ExternalID(v)
	default:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("event id: %v", err)
		}
		*id = LocalID(n)
	}
	return nil
}

type Event struct {
	ID           EventID   `json:"id"`
	StartsAt     time.Time `json:"start"`
	EndsAt       time.Time `json:"end"`
	Patient      string    `json:"patient"`
	Procedure    string    `json:"procedure"`
	Professional string    `json:"professional,omitempty"`
	CalendarID   string    `json:"calendarId,omitempty"`
	Color        string    `json:"color,omitempty"`
	Status       Status    `json:"status"`
	Contact      string    `json:"contact,omitempty"`
}

// Summary is the title shown on the calendar.
func (e Event) Summary() string {
	switch {
	case e.Procedure == "":
		return e.Patient
	case e.Patient == "":
		return e.Procedure
	}
	return e.Patient + " - " + e.Procedure
}

func (e Event) Validate() error {
	if !e.EndsAt.After(e.StartsAt) {
		return ErrInvalidEvent
	}
	return nil
}

// SplitSummary recovers patient and procedure from a title built by Summary.
func SplitSummary(summary string) (patient, procedure string) {
	patient, procedure, _ = strings.Cut(summary, " - ")
	return strings.TrimSpace(patient), strings.TrimSpace(procedure)
}

type Status string

func (s Status) String() string {
	return string(s)
}

var (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func ParseStatus(v string) Status {
	switch s := Status(strings.ToLower(strings.TrimSpace(v))); s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return s
	case "tentative":
		return StatusPending
	case "canceled":
		return StatusCancelled
	}
	return StatusConfirmed
}
