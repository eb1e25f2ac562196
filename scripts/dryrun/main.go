// Command dryrun executes the scheduling pipeline against a JSON fixture
// without touching the database. Useful for trialling constraint changes on
// a copy of real enrollment data before running them for real.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/campusops/exam-scheduler-api/internal/models"
	"github.com/campusops/exam-scheduler-api/internal/scheduler"
)

type fixture struct {
	StartDate   string              `json:"startDate"`
	EndDate     string              `json:"endDate"`
	Holidays    []string            `json:"holidays"`
	CourseIDs   []string            `json:"courseIds"`
	Enrollments []models.Enrollment `json:"enrollments"`
	Rooms       []models.Room       `json:"rooms"`

	MaxExamsPerDay        int `json:"maxExamsPerDay"`
	MinGapDays            int `json:"minGapDays"`
	CapacityBufferPercent int `json:"capacityBufferPercent"`
}

func main() {
	var (
		fixturePath string
		packSlots   bool
	)
	flag.StringVar(&fixturePath, "fixture", "fixture.json", "Path to JSON fixture file")
	flag.BoolVar(&packSlots, "pack", false, "Also run room packing for every planned slot")
	flag.Parse()

	fx, err := loadFixture(fixturePath)
	if err != nil {
		log.Fatalf("failed to load fixture: %v", err)
	}

	start, err := time.Parse("2006-01-02", fx.StartDate)
	if err != nil {
		log.Fatalf("invalid startDate: %v", err)
	}
	end, err := time.Parse("2006-01-02", fx.EndDate)
	if err != nil {
		log.Fatalf("invalid endDate: %v", err)
	}

	cons := scheduler.DefaultConstraints()
	for _, day := range fx.Holidays {
		cons.Holidays[day] = struct{}{}
	}
	if fx.MaxExamsPerDay > 0 {
		cons.MaxExamsPerDay = fx.MaxExamsPerDay
	}
	cons.MinGapDays = fx.MinGapDays
	cons.CapacityBufferPercent = fx.CapacityBufferPercent

	totalSeats := 0
	for _, room := range fx.Rooms {
		totalSeats += room.Capacity
	}

	graph, skipped := scheduler.BuildConflictGraph(fx.Enrollments, fx.CourseIDs)
	part := scheduler.PartitionSlots(graph, totalSeats, cons.CapacityBufferPercent)

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	plan := scheduler.MapCalendar(graph, part, dates, totalSeats, cons)

	printPlan(plan, len(part.Colors), skipped)

	if packSlots {
		if err := packPlan(plan, fx.Rooms); err != nil {
			log.Fatalf("packing failed: %v", err)
		}
	}

	if err := scheduler.VerifyCalendar(plan.Exams); err != nil {
		fmt.Printf("Constraint violation: %v\n", err)
		os.Exit(1)
	}
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, err
	}
	if len(fx.Enrollments) == 0 {
		return nil, fmt.Errorf("no enrollments in %s", path)
	}
	return &fx, nil
}

func printPlan(plan *scheduler.CalendarPlan, colorCount, skipped int) {
	fmt.Println("Dry Run Report")
	fmt.Println("==============")
	fmt.Printf("Virtual slots: %d | Exams: %d | Unscheduled: %d | Skipped rows: %d\n",
		colorCount, len(plan.Exams), len(plan.Unscheduled), skipped)

	exams := append([]scheduler.PlannedExam(nil), plan.Exams...)
	sort.SliceStable(exams, func(i, j int) bool {
		if !exams[i].Date.Equal(exams[j].Date) {
			return exams[i].Date.Before(exams[j].Date)
		}
		if exams[i].StartTime != exams[j].StartTime {
			return exams[i].StartTime < exams[j].StartTime
		}
		return exams[i].GroupID < exams[j].GroupID
	})
	for _, exam := range exams {
		fmt.Printf("  %s %s-%s  %-12s %-12s %d students\n",
			exam.Date.Format("2006-01-02"), exam.StartTime, exam.EndTime, exam.CourseID, exam.GroupID, len(exam.StudentIDs))
	}
	for _, cohort := range plan.Unscheduled {
		fmt.Printf("  UNSCHEDULED %-12s groups=%v (%d students): %s\n",
			cohort.CourseID, cohort.GroupIDs, cohort.StudentCount, cohort.Reason)
	}
}

func packPlan(plan *scheduler.CalendarPlan, rooms []models.Room) error {
	type slotKey struct {
		date  string
		start string
	}
	slots := make(map[slotKey][]models.StudentExam)
	for i, exam := range plan.Exams {
		examID := fmt.Sprintf("exam-%d", i)
		key := slotKey{date: exam.Date.Format("2006-01-02"), start: exam.StartTime}
		for _, studentID := range exam.StudentIDs {
			slots[key] = append(slots[key], models.StudentExam{
				ID:        examID + "/" + studentID,
				ExamID:    examID,
				StudentID: studentID,
			})
		}
	}

	keys := make([]slotKey, 0, len(slots))
	for key := range slots {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].start < keys[j].start
	})

	fmt.Println("Room Packing")
	fmt.Println("============")
	for _, key := range keys {
		result, err := scheduler.PackRooms(rooms, slots[key])
		if err != nil {
			return err
		}
		occupancy := make(map[string]int)
		for _, assignment := range result.Assignments {
			occupancy[assignment.RoomID]++
		}
		fmt.Printf("  %s %s: seated=%d unaccommodated=%d occupancy=%v\n",
			key.date, key.start, len(result.Assignments), len(result.Unaccommodated), occupancy)
	}
	return nil
}
