package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

// ExamRepository persists exams and per-student seats.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs the repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// BulkCreateWithTx inserts exams using an existing transaction.
func (r *ExamRepository) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, exams []models.Exam) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	now := time.Now().UTC()
	for i := range exams {
		payload := exams[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, tx, `INSERT INTO exams (id, timetable_id, course_id, group_id, exam_date, slot_label, start_time, end_time, room_id, created_at)
            VALUES (:id, :timetable_id, :course_id, :group_id, :exam_date, :slot_label, :start_time, :end_time, :room_id, :created_at)`, &payload); err != nil {
			return fmt.Errorf("bulk insert exam: %w", err)
		}
		exams[i] = payload
	}
	return nil
}

// BulkCreateSeatsWithTx inserts one seat row per (exam, student).
func (r *ExamRepository) BulkCreateSeatsWithTx(ctx context.Context, tx *sqlx.Tx, seats []models.StudentExam) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	for i := range seats {
		payload := seats[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if _, err := sqlx.NamedExecContext(ctx, tx, `INSERT INTO student_exams (id, exam_id, student_id, room_id)
            VALUES (:id, :exam_id, :student_id, :room_id)`, &payload); err != nil {
			return fmt.Errorf("bulk insert seat: %w", err)
		}
		seats[i] = payload
	}
	return nil
}

// ListByTimetable returns every exam of a timetable in calendar order.
func (r *ExamRepository) ListByTimetable(ctx context.Context, timetableID string) ([]models.Exam, error) {
	const query = `SELECT id, timetable_id, course_id, group_id, exam_date, slot_label, start_time, end_time, room_id, created_at
        FROM exams WHERE timetable_id = $1 ORDER BY exam_date, start_time, course_id`
	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, timetableID); err != nil {
		return nil, fmt.Errorf("list exams by timetable: %w", err)
	}
	return exams, nil
}

// ListWithStudentsByDateRange snapshots the committed calendar for a
// location window, seated student ids aggregated per exam.
func (r *ExamRepository) ListWithStudentsByDateRange(ctx context.Context, locationID string, from, to time.Time) ([]models.ExamWithStudents, error) {
	const query = `SELECT e.id, e.timetable_id, e.course_id, e.group_id, e.exam_date, e.slot_label, e.start_time, e.end_time, e.room_id, e.created_at,
            COALESCE(array_agg(se.student_id) FILTER (WHERE se.student_id IS NOT NULL), '{}') AS student_ids
        FROM exams e
        JOIN master_timetables mt ON mt.id = e.timetable_id
        LEFT JOIN student_exams se ON se.exam_id = e.id
        WHERE mt.location_id = $1 AND mt.status <> $2 AND e.exam_date BETWEEN $3 AND $4
        GROUP BY e.id
        ORDER BY e.exam_date, e.start_time, e.id`
	var exams []models.ExamWithStudents
	if err := r.db.SelectContext(ctx, &exams, query, locationID, models.TimetableStatusArchived, from, to); err != nil {
		return nil, fmt.Errorf("list exams with students: %w", err)
	}
	return exams, nil
}

// ListWithStudentsByTimetable returns a timetable's exams with their
// seated student ids aggregated.
func (r *ExamRepository) ListWithStudentsByTimetable(ctx context.Context, timetableID string) ([]models.ExamWithStudents, error) {
	const query = `SELECT e.id, e.timetable_id, e.course_id, e.group_id, e.exam_date, e.slot_label, e.start_time, e.end_time, e.room_id, e.created_at,
            COALESCE(array_agg(se.student_id) FILTER (WHERE se.student_id IS NOT NULL), '{}') AS student_ids
        FROM exams e
        LEFT JOIN student_exams se ON se.exam_id = e.id
        WHERE e.timetable_id = $1
        GROUP BY e.id
        ORDER BY e.exam_date, e.start_time, e.id`
	var exams []models.ExamWithStudents
	if err := r.db.SelectContext(ctx, &exams, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable exams with students: %w", err)
	}
	return exams, nil
}

// CountByTimetable returns the exam total for a timetable.
func (r *ExamRepository) CountByTimetable(ctx context.Context, timetableID string) (int, error) {
	const query = `SELECT COUNT(*) FROM exams WHERE timetable_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, timetableID); err != nil {
		return 0, fmt.Errorf("count exams by timetable: %w", err)
	}
	return total, nil
}

// ListSeatsBySlot returns every seat across all exams sharing the slot
// window, the unit room packing operates on.
func (r *ExamRepository) ListSeatsBySlot(ctx context.Context, timetableID string, slot models.SlotKey) ([]models.StudentExam, error) {
	const query = `SELECT se.id, se.exam_id, se.student_id, se.room_id
        FROM student_exams se
        JOIN exams e ON e.id = se.exam_id
        WHERE e.timetable_id = $1 AND e.exam_date = $2 AND e.start_time = $3 AND e.end_time = $4
        ORDER BY se.exam_id, se.student_id`
	var seats []models.StudentExam
	if err := r.db.SelectContext(ctx, &seats, query, timetableID, slot.Date, slot.StartTime, slot.EndTime); err != nil {
		return nil, fmt.Errorf("list seats by slot: %w", err)
	}
	return seats, nil
}

// UpdateSeatRoomsWithTx writes room assignments produced by one packing run.
func (r *ExamRepository) UpdateSeatRoomsWithTx(ctx context.Context, tx *sqlx.Tx, seatRooms map[string]string) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	const query = `UPDATE student_exams SET room_id = $2 WHERE id = $1`
	for seatID, roomID := range seatRooms {
		result, err := tx.ExecContext(ctx, query, seatID, roomID)
		if err != nil {
			return fmt.Errorf("update seat room: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("seat room rows affected: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
	}
	return nil
}

// UpdateExamRoomWithTx sets or clears the single-room shortcut on an exam.
func (r *ExamRepository) UpdateExamRoomWithTx(ctx context.Context, tx *sqlx.Tx, examID string, roomID *string) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE exams SET room_id = $2 WHERE id = $1`, examID, roomID); err != nil {
		return fmt.Errorf("update exam room: %w", err)
	}
	return nil
}

// CountSeatsByTimetable returns the seat total for a timetable.
func (r *ExamRepository) CountSeatsByTimetable(ctx context.Context, timetableID string) (int, error) {
	const query = `SELECT COUNT(*) FROM student_exams se JOIN exams e ON e.id = se.exam_id WHERE e.timetable_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, timetableID); err != nil {
		return 0, fmt.Errorf("count seats by timetable: %w", err)
	}
	return total, nil
}
