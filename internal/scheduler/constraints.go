package scheduler

import (
	"time"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

// SlotWindow is the wall-clock span bound to a slot label.
type SlotWindow struct {
	Start string
	End   string
}

// slotOrder fixes the canonical iteration order of slot labels within a day.
var slotOrder = []models.SlotLabel{models.SlotMorning, models.SlotAfternoon, models.SlotEvening}

// Constraints captures the institutional rules applied by the calendar
// mapper and the incremental planner. Policy is injected by the caller, not
// baked into the placement loops.
type Constraints struct {
	ExcludedWeekdays      map[time.Weekday]struct{}
	Holidays              map[string]struct{}
	ExcludeFridayEvening  bool
	MaxExamsPerDay        int
	MaxExamsPerSlot       int
	MinGapDays            int
	CapacityBufferPercent int
	SlotTimes             map[models.SlotLabel]SlotWindow
	// SlotPreferences orders slot labels per group, tried before the
	// canonical order.
	SlotPreferences map[string][]models.SlotLabel
}

// DefaultSlotTimes returns the canonical slot-label wall-clock table.
func DefaultSlotTimes() map[models.SlotLabel]SlotWindow {
	return map[models.SlotLabel]SlotWindow{
		models.SlotMorning:   {Start: "09:00", End: "12:00"},
		models.SlotAfternoon: {Start: "13:00", End: "16:00"},
		models.SlotEvening:   {Start: "17:00", End: "20:00"},
	}
}

// DefaultConstraints returns the stock institutional policy: no Saturday
// exams, no Friday evening sitting, one exam per student per day and slot.
func DefaultConstraints() Constraints {
	return Constraints{
		ExcludedWeekdays:     map[time.Weekday]struct{}{time.Saturday: {}},
		Holidays:             map[string]struct{}{},
		ExcludeFridayEvening: true,
		MaxExamsPerDay:       1,
		MaxExamsPerSlot:      1,
		SlotTimes:            DefaultSlotTimes(),
	}
}

// Normalized fills zero-valued fields with safe defaults.
func (c Constraints) Normalized() Constraints {
	if c.MaxExamsPerDay <= 0 {
		c.MaxExamsPerDay = 1
	}
	if c.MaxExamsPerSlot <= 0 {
		c.MaxExamsPerSlot = 1
	}
	if len(c.SlotTimes) == 0 {
		c.SlotTimes = DefaultSlotTimes()
	}
	if c.Holidays == nil {
		c.Holidays = map[string]struct{}{}
	}
	if c.ExcludedWeekdays == nil {
		c.ExcludedWeekdays = map[time.Weekday]struct{}{}
	}
	return c
}

// DayExcluded reports whether a date admits no exams at all, with the
// policy reason when it does not.
func (c Constraints) DayExcluded(date time.Time) (bool, string) {
	if _, ok := c.ExcludedWeekdays[date.Weekday()]; ok {
		return true, "no exams on " + date.Weekday().String()
	}
	if _, ok := c.Holidays[DateKey(date)]; ok {
		return true, "holiday"
	}
	return false, ""
}

// LegalSlots returns the slot labels allowed on the date, in canonical
// order. Returns nil for fully excluded days.
func (c Constraints) LegalSlots(date time.Time) []models.SlotLabel {
	if excluded, _ := c.DayExcluded(date); excluded {
		return nil
	}
	labels := make([]models.SlotLabel, 0, len(slotOrder))
	for _, label := range slotOrder {
		if _, ok := c.SlotTimes[label]; !ok {
			continue
		}
		if label == models.SlotEvening && c.ExcludeFridayEvening && date.Weekday() == time.Friday {
			continue
		}
		labels = append(labels, label)
	}
	return labels
}

// SlotAllowed reports whether a single label is legal on the date.
func (c Constraints) SlotAllowed(date time.Time, label models.SlotLabel) bool {
	for _, legal := range c.LegalSlots(date) {
		if legal == label {
			return true
		}
	}
	return false
}

// Window resolves a label to its wall-clock span.
func (c Constraints) Window(label models.SlotLabel) (SlotWindow, bool) {
	w, ok := c.SlotTimes[label]
	return w, ok
}

// EffectiveCapacity applies the capacity buffer to the summed room
// capacity of the location.
func (c Constraints) EffectiveCapacity(totalSeats int) int {
	if c.CapacityBufferPercent <= 0 {
		return totalSeats
	}
	reduced := totalSeats - totalSeats*c.CapacityBufferPercent/100
	if reduced < 0 {
		return 0
	}
	return reduced
}

// DateKey formats a date as its canonical map key.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
