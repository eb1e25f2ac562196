package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

// UnscheduledRepository records cohorts a run could not place.
type UnscheduledRepository struct {
	db *sqlx.DB
}

// NewUnscheduledRepository constructs the repository.
func NewUnscheduledRepository(db *sqlx.DB) *UnscheduledRepository {
	return &UnscheduledRepository{db: db}
}

// BulkCreateWithTx inserts unscheduled cohorts within the run transaction.
func (r *UnscheduledRepository) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, cohorts []models.UnscheduledCohort) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	now := time.Now().UTC()
	for i := range cohorts {
		payload := cohorts[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, tx, `INSERT INTO unscheduled_cohorts (id, timetable_id, course_id, group_ids, reason, created_at)
            VALUES (:id, :timetable_id, :course_id, :group_ids, :reason, :created_at)`, &payload); err != nil {
			return fmt.Errorf("bulk insert unscheduled cohort: %w", err)
		}
		cohorts[i] = payload
	}
	return nil
}

// ListByTimetable returns the unplaced cohorts of a timetable.
func (r *UnscheduledRepository) ListByTimetable(ctx context.Context, timetableID string) ([]models.UnscheduledCohort, error) {
	const query = `SELECT id, timetable_id, course_id, group_ids, reason, created_at
        FROM unscheduled_cohorts WHERE timetable_id = $1 ORDER BY course_id`
	var cohorts []models.UnscheduledCohort
	if err := r.db.SelectContext(ctx, &cohorts, query, timetableID); err != nil {
		return nil, fmt.Errorf("list unscheduled cohorts: %w", err)
	}
	return cohorts, nil
}
