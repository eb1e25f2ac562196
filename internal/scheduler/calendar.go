package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

// PlannedExam is one (course, group) sitting produced by the calendar
// mapper, before persistence.
type PlannedExam struct {
	CourseID   string
	GroupID    string
	Date       time.Time
	SlotLabel  models.SlotLabel
	StartTime  string
	EndTime    string
	StudentIDs []string
}

// UnplacedCohort records a virtual slot the mapper could not put on the
// calendar, with a specific reason. Never a run-level error.
type UnplacedCohort struct {
	CourseID     string
	GroupIDs     []string
	StudentCount int
	Reason       string
}

// CalendarPlan is the mapper's output: concrete sittings plus everything
// that stayed unscheduled.
type CalendarPlan struct {
	Exams       []PlannedExam
	Unscheduled []UnplacedCohort
}

// schedulingContext threads all mutable placement state through the
// mapping pass. No ambient globals: repeated runs over identical snapshots
// are isolated and deterministic.
type schedulingContext struct {
	cons         Constraints
	slotCapacity int

	slotUsage    map[string]int
	studentDays  map[string]int
	studentSlots map[string]struct{}
	studentDates map[string][]time.Time
}

func newSchedulingContext(cons Constraints, totalSeats int) *schedulingContext {
	return &schedulingContext{
		cons:         cons,
		slotCapacity: cons.EffectiveCapacity(totalSeats),
		slotUsage:    make(map[string]int),
		studentDays:  make(map[string]int),
		studentSlots: make(map[string]struct{}),
		studentDates: make(map[string][]time.Time),
	}
}

func slotUsageKey(date time.Time, label models.SlotLabel) string {
	return DateKey(date) + "|" + string(label)
}

func studentDayKey(studentID string, date time.Time) string {
	return studentID + "|" + DateKey(date)
}

func studentSlotKey(studentID string, date time.Time, label models.SlotLabel) string {
	return studentID + "|" + DateKey(date) + "|" + string(label)
}

// canPlace checks the cohort against slot capacity, per-student day and
// slot limits, and the minimum gap between exam days.
func (sc *schedulingContext) canPlace(students map[string]struct{}, date time.Time, label models.SlotLabel) (bool, string) {
	if sc.slotUsage[slotUsageKey(date, label)]+len(students) > sc.slotCapacity {
		return false, "insufficient room capacity"
	}
	for studentID := range students {
		if sc.studentDays[studentDayKey(studentID, date)] >= sc.cons.MaxExamsPerDay {
			return false, "student exam-per-day limit reached"
		}
		if sc.cons.MaxExamsPerSlot <= 1 {
			if _, ok := sc.studentSlots[studentSlotKey(studentID, date, label)]; ok {
				return false, "student already sits in this slot"
			}
		}
		if !sc.gapSatisfied(studentID, date) {
			return false, fmt.Sprintf("student needs %d free day(s) between exams", sc.cons.MinGapDays)
		}
	}
	return true, ""
}

// gapSatisfied checks the student's ordered exam-date list for a
// neighbouring exam closer than the minimum gap. Binary search keeps this
// O(log n) per student.
func (sc *schedulingContext) gapSatisfied(studentID string, date time.Time) bool {
	if sc.cons.MinGapDays <= 0 {
		return true
	}
	dates := sc.studentDates[studentID]
	if len(dates) == 0 {
		return true
	}
	idx := sort.Search(len(dates), func(i int) bool { return !dates[i].Before(date) })
	if idx < len(dates) && withinGap(dates[idx], date, sc.cons.MinGapDays) {
		return false
	}
	if idx > 0 && withinGap(dates[idx-1], date, sc.cons.MinGapDays) {
		return false
	}
	return true
}

func withinGap(a, b time.Time, gapDays int) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	days := int(diff.Hours() / 24)
	return days != 0 && days < gapDays+1
}

// place commits a cohort to the slot, updating every tracker so later
// cohorts see the new state.
func (sc *schedulingContext) place(students map[string]struct{}, date time.Time, label models.SlotLabel) {
	sc.slotUsage[slotUsageKey(date, label)] += len(students)
	for studentID := range students {
		sc.studentDays[studentDayKey(studentID, date)]++
		sc.studentSlots[studentSlotKey(studentID, date, label)] = struct{}{}
		sc.insertDate(studentID, date)
	}
}

func (sc *schedulingContext) insertDate(studentID string, date time.Time) {
	dates := sc.studentDates[studentID]
	idx := sort.Search(len(dates), func(i int) bool { return !dates[i].Before(date) })
	if idx < len(dates) && dates[idx].Equal(date) {
		return
	}
	dates = append(dates, time.Time{})
	copy(dates[idx+1:], dates[idx:])
	dates[idx] = date
	sc.studentDates[studentID] = dates
}

// MapCalendar turns the ordered virtual slots into concrete (date, window)
// sittings. Colors are processed largest-headcount first; a cohort that
// exhausts every candidate date is recorded with a reason and the run
// continues. Capacity violations from the partitioner are carried through
// as unscheduled cohorts.
func MapCalendar(g *ConflictGraph, part *Partition, candidateDates []time.Time, totalSeats int, cons Constraints) *CalendarPlan {
	cons = cons.Normalized()
	plan := &CalendarPlan{}
	ctx := newSchedulingContext(cons, totalSeats)

	dates := append([]time.Time(nil), candidateDates...)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	colors := append([]*Color(nil), part.Colors...)
	sort.SliceStable(colors, func(i, j int) bool {
		if colors[i].StudentCount != colors[j].StudentCount {
			return colors[i].StudentCount > colors[j].StudentCount
		}
		return colors[i].Index < colors[j].Index
	})

	for _, color := range colors {
		students := colorStudents(g, color)
		placed := false
		sawCapacity := false
		legalDays := 0

		for _, date := range dates {
			labels := ctx.cons.LegalSlots(date)
			if len(labels) == 0 {
				continue
			}
			legalDays++
			for _, label := range preferredOrder(cons, color, labels) {
				ok, reason := ctx.canPlace(students, date, label)
				if !ok {
					if reason == "insufficient room capacity" {
						sawCapacity = true
					}
					continue
				}
				window := cons.SlotTimes[label]
				for _, entry := range color.Entries {
					for _, groupID := range entry.GroupIDs {
						plan.Exams = append(plan.Exams, PlannedExam{
							CourseID:   entry.CourseID,
							GroupID:    groupID,
							Date:       date,
							SlotLabel:  label,
							StartTime:  window.Start,
							EndTime:    window.End,
							StudentIDs: sortedIDs(g.GroupStudents(groupID)),
						})
					}
				}
				ctx.place(students, date, label)
				placed = true
				break
			}
			if placed {
				break
			}
		}

		if !placed {
			reason := "no suitable slot found in the candidate window"
			if legalDays == 0 {
				reason = "all candidate dates fall on excluded days or holidays"
			} else if sawCapacity {
				reason = "insufficient room capacity in every candidate slot"
			}
			for _, entry := range color.Entries {
				plan.Unscheduled = append(plan.Unscheduled, UnplacedCohort{
					CourseID:     entry.CourseID,
					GroupIDs:     append([]string(nil), entry.GroupIDs...),
					StudentCount: entry.StudentCount,
					Reason:       reason,
				})
			}
		}
	}

	for _, violation := range part.Violations {
		plan.Unscheduled = append(plan.Unscheduled, UnplacedCohort{
			CourseID:     violation.CourseID,
			GroupIDs:     []string{violation.GroupID},
			StudentCount: violation.StudentCount,
			Reason:       violation.Reason,
		})
	}

	return plan
}

// preferredOrder reorders the legal labels of a date by the slot
// preference of the color's first preferring group, falling back to
// canonical order.
func preferredOrder(cons Constraints, color *Color, legal []models.SlotLabel) []models.SlotLabel {
	if len(cons.SlotPreferences) == 0 {
		return legal
	}
	var pref []models.SlotLabel
	for _, groupID := range color.GroupIDs() {
		if p, ok := cons.SlotPreferences[groupID]; ok && len(p) > 0 {
			pref = p
			break
		}
	}
	if pref == nil {
		return legal
	}

	legalSet := make(map[models.SlotLabel]struct{}, len(legal))
	for _, label := range legal {
		legalSet[label] = struct{}{}
	}
	ordered := make([]models.SlotLabel, 0, len(legal))
	for _, label := range pref {
		if _, ok := legalSet[label]; ok {
			ordered = append(ordered, label)
			delete(legalSet, label)
		}
	}
	for _, label := range legal {
		if _, ok := legalSet[label]; ok {
			ordered = append(ordered, label)
		}
	}
	return ordered
}

func colorStudents(g *ConflictGraph, color *Color) map[string]struct{} {
	students := make(map[string]struct{})
	for groupID := range color.groups {
		for studentID := range g.GroupStudents(groupID) {
			students[studentID] = struct{}{}
		}
	}
	return students
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
