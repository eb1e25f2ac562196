package models

import (
	"time"

	"github.com/lib/pq"
)

// SlotLabel identifies one of the fixed daily exam windows.
type SlotLabel string

// Canonical slot labels.
const (
	SlotMorning   SlotLabel = "MORNING"
	SlotAfternoon SlotLabel = "AFTERNOON"
	SlotEvening   SlotLabel = "EVENING"
)

// Exam is a materialized (date, window, group) sitting owned by a master
// timetable. RoomID is set only when every seat of the exam landed in a
// single room; split exams keep it null and downstream reporting reads the
// per-seat room instead.
type Exam struct {
	ID          string    `db:"id" json:"id"`
	TimetableID string    `db:"timetable_id" json:"timetable_id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	GroupID     string    `db:"group_id" json:"group_id"`
	ExamDate    time.Time `db:"exam_date" json:"exam_date"`
	SlotLabel   SlotLabel `db:"slot_label" json:"slot_label"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	RoomID      *string   `db:"room_id" json:"room_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// StudentExam is one student's seat in one exam. RoomID stays null until
// room packing runs for the exam's slot.
type StudentExam struct {
	ID        string  `db:"id" json:"id"`
	ExamID    string  `db:"exam_id" json:"exam_id"`
	StudentID string  `db:"student_id" json:"student_id"`
	RoomID    *string `db:"room_id" json:"room_id,omitempty"`
}

// ExamWithStudents joins an exam with its seated student ids, used when
// snapshotting an existing calendar window.
type ExamWithStudents struct {
	Exam
	StudentIDs pq.StringArray `db:"student_ids" json:"student_ids"`
}

// SlotKey addresses every exam sharing one concrete sitting window.
type SlotKey struct {
	Date      time.Time `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}
