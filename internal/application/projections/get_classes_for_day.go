package projections

import (
	"sort"

	"timetable/internal/domain/classentry"
	"timetable/internal/domain/viewer"
)

// QueryClassesForDay returns the entries the viewer may see on day, ordered
// by start time.
// Algorithm: 1) scope the snapshot to the viewer, 2) keep entries on day,
// 3) stable sort by start time so equal starts keep their snapshot order.
// PRE: none
// POST: Result is non-decreasing by StartTime; an unknown day yields an empty result
func QueryClassesForDay(day string, v viewer.Session, deps ClassesDeps) []classentry.ClassEntry {
	visible := scopeToViewer(deps.Entries.List(), v)
	return onDay(visible, day)
}

// QueryVisibleClasses returns the whole snapshot as seen by the viewer, in
// snapshot order.
func QueryVisibleClasses(v viewer.Session, deps ClassesDeps) []classentry.ClassEntry {
	return scopeToViewer(deps.Entries.List(), v)
}

// scopeToViewer is the single place visibility rules are applied.
func scopeToViewer(entries []classentry.ClassEntry, v viewer.Session) []classentry.ClassEntry {
	out := make([]classentry.ClassEntry, 0, len(entries))
	for _, e := range entries {
		if v.CanSee(e) {
			out = append(out, e)
		}
	}
	return out
}

// onDay filters to one day and sorts by start time.
func onDay(entries []classentry.ClassEntry, day string) []classentry.ClassEntry {
	out := make([]classentry.ClassEntry, 0, len(entries))
	for _, e := range entries {
		if e.Day == day {
			out = append(out, e)
		}
	}
	// HH:MM is zero padded, so string order is time order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out
}
