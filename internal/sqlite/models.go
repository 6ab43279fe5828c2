package sqlite

import (
	"time"

	"github.com/guilherme-santos/clinicagenda/internal"
)

type Appointment struct {
	ID           int64
	Patient      string
	Procedure    string
	Professional string
	Contact      string
	Status       string
	Color        string
	StartsAt     time.Time `db:"starts_at"`
	EndsAt       time.Time `db:"ends_at"`
}

func (a Appointment) Convert() *internal.Event {
	return &internal.Event{
		ID:           internal.LocalID(a.ID),
		StartsAt:     a.StartsAt,
		EndsAt:       a.EndsAt,
		Patient:      a.Patient,
		Procedure:    a.Procedure,
		Professional: a.Professional,
		Contact:      a.Contact,
		Status:       internal.ParseStatus(a.Status),
		Color:        a.Color,
	}
}

func newAppointment(e *internal.Event) Appointment {
	status := e.Status
	if status == "" {
		status = internal.StatusPending
	}
	return Appointment{
		ID:           e.ID.Local(),
		Patient:      e.Patient,
		Procedure:    e.Procedure,
		Professional: e.Professional,
		Contact:      e.Contact,
		Status:       status.String(),
		Color:        e.Color,
		StartsAt:     e.StartsAt.UTC(),
		EndsAt:       e.EndsAt.UTC(),
	}
}
