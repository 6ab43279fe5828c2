package internal

// Calendar describes one calendar namespace visible to the current token.
// Calendars are refreshed wholesale on every directory fetch.
type Calendar struct {
	ID    string `json:"id"`
	Name  string `json:"summary"`
	Color string `json:"color"`
}

func (c Calendar) String() string {
	return c.ID
}

// CalendarByName returns the calendar whose display name matches name exactly.
func CalendarByName(cals []*Calendar, name string) *Calendar {
	for _, cal := range cals {
		if cal.Name == name {
			return cal
		}
	}
	return nil
}

// CalendarByID returns the calendar with the given identifier.
func CalendarByID(cals []*Calendar, id string) *Calendar {
	for _, cal := range cals {
		if cal.ID == id {
			return cal
		}
	}
	return nil
}
