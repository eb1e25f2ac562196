package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// TimetableStatus represents lifecycle phases for generated timetables.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
	TimetableStatusArchived  TimetableStatus = "ARCHIVED"
)

// MasterTimetable groups the exams created by one scheduling run. It stays
// in place even when some cohorts end up unscheduled; those are recorded as
// UnscheduledCohort rows instead.
type MasterTimetable struct {
	ID         string          `db:"id" json:"id"`
	LocationID string          `db:"location_id" json:"location_id"`
	Status     TimetableStatus `db:"status" json:"status"`
	Meta       types.JSONText  `db:"meta" json:"meta"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// UnscheduledCohort records a cohort the calendar mapper could not place,
// with a human-readable reason. Deleted once the cohort is placed later via
// the incremental planner.
type UnscheduledCohort struct {
	ID          string         `db:"id" json:"id"`
	TimetableID string         `db:"timetable_id" json:"timetable_id"`
	CourseID    string         `db:"course_id" json:"course_id"`
	GroupIDs    pq.StringArray `db:"group_ids" json:"group_ids"`
	Reason      string         `db:"reason" json:"reason"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}
