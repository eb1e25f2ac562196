package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

// EnrollmentRepository reads enrollment snapshots for scheduling runs.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListEnrolledByLocation returns enrolled rows for courses taught at the
// location, optionally narrowed to an explicit course list.
func (r *EnrollmentRepository) ListEnrolledByLocation(ctx context.Context, locationID string, courseIDs []string) ([]models.Enrollment, error) {
	query := `SELECT e.id, e.student_id, e.course_id, e.group_id, e.status, e.joined_at
        FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        WHERE c.location_id = $1 AND e.status = $2`
	args := []interface{}{locationID, models.EnrollmentStatusEnrolled}

	if len(courseIDs) > 0 {
		placeholders := make([]string, len(courseIDs))
		for i, id := range courseIDs {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, id)
		}
		query += fmt.Sprintf(" AND e.course_id IN (%s)", strings.Join(placeholders, ","))
	}
	query += " ORDER BY e.course_id, e.student_id"

	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list location enrollments: %w", err)
	}
	return enrollments, nil
}

// ListEnrolledByGroups returns enrolled rows for the given groups; used to
// build the candidate student set for incremental fit checks.
func (r *EnrollmentRepository) ListEnrolledByGroups(ctx context.Context, groupIDs []string) ([]models.Enrollment, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(groupIDs))
	args := make([]interface{}, 0, len(groupIDs)+1)
	for i, id := range groupIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	args = append(args, models.EnrollmentStatusEnrolled)
	query := fmt.Sprintf(`SELECT id, student_id, course_id, group_id, status, joined_at
        FROM enrollments WHERE group_id IN (%s) AND status = $%d ORDER BY student_id`,
		strings.Join(placeholders, ","), len(args))

	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list group enrollments: %w", err)
	}
	return enrollments, nil
}
