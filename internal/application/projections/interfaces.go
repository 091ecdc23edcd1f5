package projections

import "timetable/internal/domain/classentry"

// EntrySnapshot is the read side of the entry store. Projections only read
// the snapshot it returns and never mutate the store.
type EntrySnapshot interface {
	List() []classentry.ClassEntry
}

// ClassesDeps holds dependencies for the timetable projections.
type ClassesDeps struct {
	Entries EntrySnapshot
}
