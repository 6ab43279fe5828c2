package caldav

import (
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/guilherme-santos/clinicagenda/internal"
)

const (
	propPatient      = "X-CLINICAGENDA-PATIENT"
	propProcedure    = "X-CLINICAGENDA-PROCEDURE"
	propProfessional = "X-CLINICAGENDA-PROFESSIONAL"
	propStatus       = "X-CLINICAGENDA-STATUS"
	propContact      = "X-CLINICAGENDA-CONTACT"
	propColor        = "X-CLINICAGENDA-COLOR"

	productID = "-//clinicagenda//EN"
)

// newEvent converts a VEVENT. Other components return nil.
func newEvent(id string, comp *ical.Component) *internal.Event {
	if comp.Name != ical.CompEvent {
		return nil
	}

	startsAt, _ := comp.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	endsAt, _ := comp.Props.DateTime(ical.PropDateTimeEnd, time.UTC)
	if prop := comp.Props.Get(ical.PropDuration); endsAt.IsZero() && prop != nil {
		if d, err := prop.Duration(); err == nil {
			endsAt = startsAt.Add(d)
		}
	}

	e := &internal.Event{
		ID:           internal.ExternalID(id),
		StartsAt:     startsAt,
		EndsAt:       endsAt,
		Status:       internal.ParseStatus(text(comp.Props, ical.PropStatus)),
		Professional: text(comp.Props, propProfessional),
		Contact:      text(comp.Props, propContact),
		Color:        text(comp.Props, propColor),
	}
	if comp.Props.Get(propPatient) != nil {
		e.Patient = text(comp.Props, propPatient)
		e.Procedure = text(comp.Props, propProcedure)
	} else {
		e.Patient, e.Procedure = internal.SplitSummary(text(comp.Props, ical.PropSummary))
	}
	if status := text(comp.Props, propStatus); status != "" {
		e.Status = internal.ParseStatus(status)
	}
	return e
}

func text(props ical.Props, name string) string {
	v, err := props.Text(name)
	if err != nil {
		return ""
	}
	return v
}

func newCalendar(uid string, e *internal.Event, now time.Time) *ical.Calendar {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, e.Summary())
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, e.StartsAt.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, e.EndsAt.UTC())
	ve.Props.SetText(ical.PropStatus, icalStatus(e.Status))

	ve.Props.SetText(propPatient, e.Patient)
	ve.Props.SetText(propProcedure, e.Procedure)
	ve.Props.SetText(propStatus, e.Status.String())
	if e.Professional != "" {
		ve.Props.SetText(propProfessional, e.Professional)
	}
	if e.Contact != "" {
		ve.Props.SetText(propContact, e.Contact)
		ve.Props.SetText(ical.PropDescription, e.Contact)
	}
	if e.Color != "" {
		ve.Props.SetText(propColor, e.Color)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, ve)
	return cal
}

func icalStatus(s internal.Status) string {
	switch s {
	case internal.StatusPending:
		return "TENTATIVE"
	case internal.StatusCancelled:
		return "CANCELLED"
	}
	return strings.ToUpper(internal.StatusConfirmed.String())
}
