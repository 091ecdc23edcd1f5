package projections

import (
	"time"

	"timetable/internal/domain/classentry"
	"timetable/internal/domain/viewer"
)

// DaySchedule is one day of the weekly view.
type DaySchedule struct {
	Day     string                  `json:"day"`
	Classes []classentry.ClassEntry `json:"classes"`
}

// QueryWeek returns the seven days Monday..Sunday, each with the viewer's
// classes for that day.
// POST: len(result) == 7
func QueryWeek(v viewer.Session, deps ClassesDeps) []DaySchedule {
	visible := scopeToViewer(deps.Entries.List(), v)
	week := make([]DaySchedule, 0, len(classentry.Days))
	for _, day := range classentry.Days {
		week = append(week, DaySchedule{Day: day, Classes: onDay(visible, day)})
	}
	return week
}

// QueryToday returns the viewer's classes for the weekday of now.
func QueryToday(now time.Time, v viewer.Session, deps ClassesDeps) DaySchedule {
	day := classentry.DayOf(now)
	return DaySchedule{Day: day, Classes: QueryClassesForDay(day, v, deps)}
}
