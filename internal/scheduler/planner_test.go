package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

func existingExam(id, groupID, date string, label models.SlotLabel, studentIDs ...string) models.ExamWithStudents {
	window := DefaultSlotTimes()[label]
	return models.ExamWithStudents{
		Exam: models.Exam{
			ID:        id,
			GroupID:   groupID,
			ExamDate:  day(date),
			SlotLabel: label,
			StartTime: window.Start,
			EndTime:   window.End,
		},
		StudentIDs: studentIDs,
	}
}

func studentSet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func TestCheckFitAcceptsFreeSlot(t *testing.T) {
	rooms := []models.Room{{ID: "hall", Capacity: 50, LocationID: "loc-1"}}
	existing := []models.ExamWithStudents{
		existingExam("exam-1", "math-a", "2026-09-07", models.SlotMorning, "alice"),
	}

	result := CheckFit(existing, rooms, studentSet("bob"), day("2026-09-07"), models.SlotAfternoon, DefaultConstraints(), 14)

	require.NotNil(t, result.Best)
	assert.Equal(t, day("2026-09-07"), result.Best.Date)
	assert.Equal(t, models.SlotAfternoon, result.Best.SlotLabel)
	assert.Empty(t, result.Conflicts)
}

func TestCheckFitReportsStudentConflicts(t *testing.T) {
	rooms := []models.Room{{ID: "hall", Capacity: 50, LocationID: "loc-1"}}
	existing := []models.ExamWithStudents{
		existingExam("exam-1", "math-a", "2026-09-07", models.SlotMorning, "alice", "bob"),
	}

	result := CheckFit(existing, rooms, studentSet("alice", "carol"), day("2026-09-07"), models.SlotMorning, DefaultConstraints(), 14)

	assert.Equal(t, []string{"alice"}, result.Conflicts)
	require.NotNil(t, result.Best, "a later slot should still be suggested")
	assert.NotEqual(t, models.SlotMorning, result.Best.SlotLabel)
}

func TestCheckFitFridayEveningSubstitutesMorning(t *testing.T) {
	rooms := []models.Room{{ID: "hall", Capacity: 50, LocationID: "loc-1"}}

	// 2026-09-11 is a Friday.
	result := CheckFit(nil, rooms, studentSet("alice"), day("2026-09-11"), models.SlotEvening, DefaultConstraints(), 14)

	assert.Equal(t, models.SlotMorning, result.RequestedSlot)
	require.NotNil(t, result.Best)
	assert.Equal(t, models.SlotMorning, result.Best.SlotLabel)
	for _, s := range result.Suggestions {
		if s.Date.Weekday() == time.Friday {
			assert.NotEqual(t, models.SlotEvening, s.SlotLabel, "no Friday evening suggestions, ever")
		}
	}
}

func TestCheckFitLocationLocalCapacity(t *testing.T) {
	// Regression: a zero-capacity location must reject the placement even
	// if another location has plenty of room. Only local rooms are handed
	// to the planner, so global capacity can never mask the shortfall.
	localRooms := []models.Room{{ID: "annex", Capacity: 0, LocationID: "loc-a"}}

	result := CheckFit(nil, localRooms, studentSet("alice"), day("2026-09-07"), models.SlotMorning, DefaultConstraints(), 14)

	assert.Nil(t, result.Best)
	for _, s := range result.Suggestions {
		assert.False(t, s.Suggested)
		assert.NotEmpty(t, s.Reason)
	}
}

func TestCheckFitPrefersRequestedDateThenEarliest(t *testing.T) {
	rooms := []models.Room{{ID: "hall", Capacity: 10, LocationID: "loc-1"}}
	existing := []models.ExamWithStudents{
		// Fill every slot on the requested Monday with 10 students.
		existingExam("e1", "g1", "2026-09-07", models.SlotMorning, tenStudents("m")...),
		existingExam("e2", "g2", "2026-09-07", models.SlotAfternoon, tenStudents("a")...),
		existingExam("e3", "g3", "2026-09-07", models.SlotEvening, tenStudents("e")...),
		existingExam("e4", "g4", "2026-09-09", models.SlotMorning, "zoe"),
	}

	result := CheckFit(existing, rooms, studentSet("newcomer"), day("2026-09-07"), models.SlotMorning, DefaultConstraints(), 14)

	require.NotNil(t, result.Best)
	assert.Equal(t, day("2026-09-08"), result.Best.Date, "earliest available date after the full one")
}

func TestCheckFitEmptyWindowReturnsNoSuggestion(t *testing.T) {
	rooms := []models.Room{{ID: "hall", Capacity: 1, LocationID: "loc-1"}}
	existing := []models.ExamWithStudents{
		existingExam("e1", "g1", "2026-09-07", models.SlotMorning, "alice"),
	}

	cons := DefaultConstraints()
	for d := time.Sunday; d <= time.Saturday; d++ {
		cons.ExcludedWeekdays[d] = struct{}{}
	}

	result := CheckFit(existing, rooms, studentSet("bob"), day("2026-09-07"), models.SlotMorning, cons, 14)
	assert.Nil(t, result.Best)
	assert.Empty(t, result.Suggestions)
}

func TestCheckFitWindowBoundedByLatestExam(t *testing.T) {
	rooms := []models.Room{{ID: "hall", Capacity: 50, LocationID: "loc-1"}}
	existing := []models.ExamWithStudents{
		existingExam("e1", "g1", "2026-09-04", models.SlotMorning, "alice"),
		existingExam("e2", "g2", "2026-09-09", models.SlotMorning, "bob"),
	}

	result := CheckFit(existing, rooms, studentSet("carol"), day("2026-09-07"), models.SlotMorning, DefaultConstraints(), 14)

	for _, s := range result.Suggestions {
		assert.False(t, s.Date.Before(day("2026-09-04")), "window starts at the earliest existing exam")
		assert.False(t, s.Date.After(day("2026-09-09")), "window ends at the latest existing exam")
	}
}

func tenStudents(prefix string) []string {
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = prefix + string(rune('a'+i))
	}
	return ids
}
