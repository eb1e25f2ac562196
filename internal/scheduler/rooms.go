package scheduler

import (
	"errors"
	"sort"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

// ErrNoRooms is returned when a slot is packed against a location with no
// rooms at all: a configuration error, not a capacity shortfall.
var ErrNoRooms = errors.New("no rooms available at location")

// SeatAssignment binds one seat to one room.
type SeatAssignment struct {
	SeatID    string
	ExamID    string
	StudentID string
	RoomID    string
}

// PackResult is the outcome of packing one (date, start, end) slot.
type PackResult struct {
	Assignments []SeatAssignment
	// Unaccommodated lists seats no room could absorb. A signal for
	// capacity planning, never silently dropped.
	Unaccommodated []models.StudentExam
	// ExamRooms maps exam id to its single room when every seat of the
	// exam landed in one room, and to nil when the exam is split across
	// rooms (per-seat room applies then).
	ExamRooms map[string]*string
}

type examQueue struct {
	examID string
	seats  []models.StudentExam
	next   int
	alloc  int
}

func (q *examQueue) remaining() int {
	return len(q.seats) - q.next
}

// PackRooms distributes the slot's seats across rooms, largest room first,
// splitting each room's free seats as evenly as possible between the exams
// that still have unseated students and redistributing the remainder to
// the longest remaining queues. Seats that already carry a room are
// counted as prior occupancy, so re-running the packer is idempotent.
func PackRooms(rooms []models.Room, seats []models.StudentExam) (*PackResult, error) {
	if len(rooms) == 0 {
		return nil, ErrNoRooms
	}

	occupied := make(map[string]int)
	preAssigned := make(map[string][]string)
	queues := make(map[string]*examQueue)
	var order []string

	for _, seat := range seats {
		if seat.RoomID != nil && *seat.RoomID != "" {
			occupied[*seat.RoomID]++
			preAssigned[seat.ExamID] = append(preAssigned[seat.ExamID], *seat.RoomID)
			continue
		}
		q, ok := queues[seat.ExamID]
		if !ok {
			q = &examQueue{examID: seat.ExamID}
			queues[seat.ExamID] = q
			order = append(order, seat.ExamID)
		}
		q.seats = append(q.seats, seat)
	}
	sort.Strings(order)

	sorted := append([]models.Room(nil), rooms...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Capacity != sorted[j].Capacity {
			return sorted[i].Capacity > sorted[j].Capacity
		}
		return sorted[i].ID < sorted[j].ID
	})

	result := &PackResult{ExamRooms: make(map[string]*string)}
	examRoomSet := make(map[string]map[string]struct{})
	for examID, roomIDs := range preAssigned {
		for _, roomID := range roomIDs {
			noteExamRoom(examRoomSet, examID, roomID)
		}
	}

	for _, room := range sorted {
		available := room.Capacity - occupied[room.ID]
		if available <= 0 {
			continue
		}
		active := activeQueues(queues, order)
		if len(active) == 0 {
			break
		}

		baseShare := available / len(active)
		used := 0
		for _, q := range active {
			q.alloc = baseShare
			if q.alloc > q.remaining() {
				q.alloc = q.remaining()
			}
			used += q.alloc
		}

		// Remainder from floor division plus seats freed by short queues
		// goes to the exams that can still absorb more, longest first.
		leftover := available - used
		for leftover > 0 {
			var target *examQueue
			for _, q := range active {
				if q.remaining() <= q.alloc {
					continue
				}
				if target == nil || q.remaining()-q.alloc > target.remaining()-target.alloc {
					target = q
				}
			}
			if target == nil {
				break
			}
			target.alloc++
			leftover--
		}

		for _, q := range active {
			for i := 0; i < q.alloc; i++ {
				seat := q.seats[q.next]
				q.next++
				result.Assignments = append(result.Assignments, SeatAssignment{
					SeatID:    seat.ID,
					ExamID:    seat.ExamID,
					StudentID: seat.StudentID,
					RoomID:    room.ID,
				})
				noteExamRoom(examRoomSet, seat.ExamID, room.ID)
			}
			q.alloc = 0
		}
	}

	hasUnseated := make(map[string]bool)
	for _, examID := range order {
		q := queues[examID]
		for q.next < len(q.seats) {
			result.Unaccommodated = append(result.Unaccommodated, q.seats[q.next])
			hasUnseated[examID] = true
			q.next++
		}
	}

	for examID, roomSet := range examRoomSet {
		if len(roomSet) == 1 && !hasUnseated[examID] {
			for roomID := range roomSet {
				id := roomID
				result.ExamRooms[examID] = &id
			}
		} else {
			result.ExamRooms[examID] = nil
		}
	}

	return result, nil
}

func activeQueues(queues map[string]*examQueue, order []string) []*examQueue {
	active := make([]*examQueue, 0, len(queues))
	for _, examID := range order {
		if q := queues[examID]; q.remaining() > 0 {
			active = append(active, q)
		}
	}
	return active
}

func noteExamRoom(examRoomSet map[string]map[string]struct{}, examID, roomID string) {
	if examRoomSet[examID] == nil {
		examRoomSet[examID] = make(map[string]struct{})
	}
	examRoomSet[examID][roomID] = struct{}{}
}
