package projections

import (
	"strings"

	"timetable/internal/domain/classentry"
)

// QueryClassesByCode returns every entry of one cohort, unfiltered by day or
// viewer, in snapshot order.
// PRE: none
// POST: An empty or unknown code yields an empty result
func QueryClassesByCode(classCode string, deps ClassesDeps) []classentry.ClassEntry {
	out := []classentry.ClassEntry{}
	if strings.TrimSpace(classCode) == "" {
		return out
	}
	for _, e := range deps.Entries.List() {
		if e.ClassCode == classCode {
			out = append(out, e)
		}
	}
	return out
}

// QueryCohortDay is the instructor day view: QueryClassesByCode passed
// through the same day filter and ordering as QueryClassesForDay.
func QueryCohortDay(classCode, day string, deps ClassesDeps) []classentry.ClassEntry {
	return onDay(QueryClassesByCode(classCode, deps), day)
}
