package classentry

import (
	"fmt"
	"time"
)

// TimeSlot is a selectable start or end time for entry forms.
type TimeSlot struct {
	Time  string // HH:MM
	Label string // 12-hour clock, e.g. "1:30 PM"
}

// First and last slot hours offered by TimeSlots.
const (
	FirstSlotHour = 8
	LastSlotHour  = 22
)

// TimeSlots returns the half-hour slots from 08:00 to 22:00 inclusive.
func TimeSlots() []TimeSlot {
	var slots []TimeSlot
	for hour := FirstSlotHour; hour <= LastSlotHour; hour++ {
		for _, minute := range []int{0, 30} {
			if hour == LastSlotHour && minute > 0 {
				break
			}
			period := "AM"
			if hour >= 12 {
				period = "PM"
			}
			display := hour
			if display > 12 {
				display -= 12
			}
			slots = append(slots, TimeSlot{
				Time:  fmt.Sprintf("%02d:%02d", hour, minute),
				Label: fmt.Sprintf("%d:%02d %s", display, minute, period),
			})
		}
	}
	return slots
}

// DayOf returns the day label for t in its own location.
func DayOf(t time.Time) string {
	return t.Weekday().String()
}
