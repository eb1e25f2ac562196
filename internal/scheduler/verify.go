package scheduler

import (
	"fmt"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

// VerifyCalendar is a defensive post-condition pass: any two exams sharing
// a (date, start, end) window must have disjoint student sets. A failure
// here is a partitioner bug, not a capacity shortfall, and must fail the
// whole run.
func VerifyCalendar(exams []PlannedExam) error {
	seated := make(map[string]string)
	for _, exam := range exams {
		window := DateKey(exam.Date) + "|" + exam.StartTime + "|" + exam.EndTime
		for _, studentID := range exam.StudentIDs {
			key := window + "|" + studentID
			if otherGroup, ok := seated[key]; ok {
				return fmt.Errorf("student %s double-booked at %s between groups %s and %s",
					studentID, window, otherGroup, exam.GroupID)
			}
			seated[key] = exam.GroupID
		}
	}
	return nil
}

// VerifyPacking checks that no room received more seats than its capacity.
func VerifyPacking(rooms []models.Room, assignments []SeatAssignment) error {
	capacity := make(map[string]int, len(rooms))
	for _, room := range rooms {
		capacity[room.ID] = room.Capacity
	}
	counts := make(map[string]int)
	for _, assignment := range assignments {
		counts[assignment.RoomID]++
	}
	for roomID, count := range counts {
		if count > capacity[roomID] {
			return fmt.Errorf("room %s assigned %d seats over capacity %d", roomID, count, capacity[roomID])
		}
	}
	return nil
}
