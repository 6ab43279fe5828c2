package syncer

import "sort"

// Visibility is the set of calendars whose events are shown. The zero value
// is an empty set that has not been bootstrapped yet.
type Visibility struct {
	ids         map[string]struct{}
	established bool
}

// Bootstrap makes every calendar visible the first time a non-empty directory
// arrives and nothing was selected before. It reports whether the set changed.
func (v *Visibility) Bootstrap(cals []*Calendar) bool {
	if v.established || len(v.ids) > 0 || len(cals) == 0 {
		return false
	}
	v.ids = make(map[string]struct{}, len(cals))
	for _, cal := range cals {
		v.ids[cal.ID] = struct{}{}
	}
	v.established = true
	return true
}

func (v *Visibility) Toggle(id string) {
	if v.ids == nil {
		v.ids = make(map[string]struct{})
	}
	if _, ok := v.ids[id]; ok {
		delete(v.ids, id)
	} else {
		v.ids[id] = struct{}{}
	}
}

func (v *Visibility) Contains(id string) bool {
	_, ok := v.ids[id]
	return ok
}

// Filter keeps events whose calendar is visible. Events without a calendar
// are never shown here.
func (v *Visibility) Filter(events []*Event) []*Event {
	res := make([]*Event, 0, len(events))
	for _, e := range events {
		if e.CalendarID != "" && v.Contains(e.CalendarID) {
			res = append(res, e)
		}
	}
	return res
}

func (v *Visibility) IDs() []string {
	ids := make([]string, 0, len(v.ids))
	for id := range v.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
