package dto

import (
	"strings"
	"time"

	"github.com/campusops/exam-scheduler-api/internal/models"
	"github.com/campusops/exam-scheduler-api/internal/scheduler"
)

// GenerateTimetableRequest instructs the engine to build an exam timetable
// for one location over a candidate date window.
type GenerateTimetableRequest struct {
	LocationID            string              `json:"locationId" validate:"required"`
	StartDate             string              `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate               string              `json:"endDate" validate:"required,datetime=2006-01-02"`
	CourseIDs             []string            `json:"courseIds" validate:"omitempty,dive,required"`
	Holidays              []string            `json:"holidays" validate:"omitempty,dive,datetime=2006-01-02"`
	MaxExamsPerDay        int                 `json:"maxExamsPerDay" validate:"omitempty,min=1,max=3"`
	MinGapDays            int                 `json:"minGapDays" validate:"omitempty,min=0,max=7"`
	CapacityBufferPercent int                 `json:"capacityBufferPercent" validate:"omitempty,min=0,max=50"`
	SlotPreferences       map[string][]string `json:"slotPreferences" validate:"omitempty"`
	Meta                  map[string]any      `json:"meta"`
}

// ExamSummary is one placed sitting in a generate response.
type ExamSummary struct {
	ExamID       string  `json:"examId"`
	CourseID     string  `json:"courseId"`
	GroupID      string  `json:"groupId"`
	ExamDate     string  `json:"examDate"`
	SlotLabel    string  `json:"slotLabel"`
	StartTime    string  `json:"startTime"`
	EndTime      string  `json:"endTime"`
	RoomID       *string `json:"roomId,omitempty"`
	StudentCount int     `json:"studentCount"`
}

// UnscheduledSummary reports a cohort the run could not place.
type UnscheduledSummary struct {
	CourseID     string   `json:"courseId"`
	GroupIDs     []string `json:"groupIds"`
	StudentCount int      `json:"studentCount"`
	Reason       string   `json:"reason"`
}

// GenerateTimetableResponse returns the committed run.
type GenerateTimetableResponse struct {
	TimetableID    string               `json:"timetableId"`
	Status         string               `json:"status"`
	Exams          []ExamSummary        `json:"exams"`
	Unscheduled    []UnscheduledSummary `json:"unscheduled"`
	Unaccommodated int                  `json:"unaccommodated"`
	SeatCount      int                  `json:"seatCount"`
}

// CheckFitRequest probes an existing calendar for room to insert one more
// cohort without a full regeneration.
type CheckFitRequest struct {
	LocationID    string   `json:"locationId" validate:"required"`
	GroupIDs      []string `json:"groupIds" validate:"required,min=1,dive,required"`
	CandidateDate string   `json:"candidateDate" validate:"required,datetime=2006-01-02"`
	PreferredSlot string   `json:"preferredSlot" validate:"omitempty,oneof=Morning Afternoon Evening"`
	WindowDays    int      `json:"windowDays" validate:"omitempty,min=1,max=60"`
}

// CheckFitResponse wraps the planner verdict plus cache provenance.
type CheckFitResponse struct {
	RequestedSlot string                 `json:"requestedSlot"`
	Conflicts     []string               `json:"conflicts"`
	Best          *scheduler.Suggestion  `json:"best,omitempty"`
	Suggestions   []scheduler.Suggestion `json:"suggestions"`
	Cached        bool                   `json:"cached"`
}

// PackRoomsRequest assigns seats for every exam sharing one slot.
type PackRoomsRequest struct {
	ExamDate  string `json:"examDate" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}

// PackRoomsResponse reports seat placement per room.
type PackRoomsResponse struct {
	Assigned       int                `json:"assigned"`
	Unaccommodated []string           `json:"unaccommodated"`
	RoomOccupancy  map[string]int     `json:"roomOccupancy"`
	ExamRooms      map[string]*string `json:"examRooms"`
}

// TimetableQuery filters timetable summaries.
type TimetableQuery struct {
	LocationID string `form:"locationId" json:"locationId"`
	Status     string `form:"status" json:"status" validate:"omitempty,oneof=DRAFT PUBLISHED ARCHIVED"`
	Page       int    `form:"page" json:"page"`
	PageSize   int    `form:"pageSize" json:"pageSize"`
}

// TimetableSummary is the list-view projection of a master timetable.
type TimetableSummary struct {
	ID         string    `json:"id"`
	LocationID string    `json:"locationId"`
	Status     string    `json:"status"`
	ExamCount  int       `json:"examCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ExamDetail is the per-exam projection including seated students.
type ExamDetail struct {
	ExamSummary
	StudentIDs []string `json:"studentIds"`
}

// ParseSlotLabel maps the wire value onto the model enum, defaulting to
// Morning for an empty preference. Accepts either casing.
func ParseSlotLabel(raw string) models.SlotLabel {
	switch strings.ToUpper(raw) {
	case string(models.SlotAfternoon):
		return models.SlotAfternoon
	case string(models.SlotEvening):
		return models.SlotEvening
	default:
		return models.SlotMorning
	}
}
