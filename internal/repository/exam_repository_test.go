package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

func TestExamRepositoryBulkCreateWithTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exams")).
		WithArgs(sqlmock.AnyArg(), "tt-1", "math", "math-a", sqlmock.AnyArg(), string(models.SlotMorning), "09:00", "12:00", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	exams := []models.Exam{{
		TimetableID: "tt-1",
		CourseID:    "math",
		GroupID:     "math-a",
		ExamDate:    time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		SlotLabel:   models.SlotMorning,
		StartTime:   "09:00",
		EndTime:     "12:00",
	}}
	require.NoError(t, repo.BulkCreateWithTx(context.Background(), tx, exams))
	assert.NotEmpty(t, exams[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryBulkCreateRequiresTx(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	err := repo.BulkCreateWithTx(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestExamRepositoryListSeatsBySlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	rows := sqlmock.NewRows([]string{"id", "exam_id", "student_id", "room_id"}).
		AddRow("seat-1", "exam-1", "alice", nil).
		AddRow("seat-2", "exam-1", "bob", "hall")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT se.id, se.exam_id, se.student_id, se.room_id")).
		WithArgs("tt-1", sqlmock.AnyArg(), "09:00", "12:00").
		WillReturnRows(rows)

	seats, err := repo.ListSeatsBySlot(context.Background(), "tt-1", models.SlotKey{
		Date:      time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		StartTime: "09:00",
		EndTime:   "12:00",
	})
	require.NoError(t, err)
	require.Len(t, seats, 2)
	assert.Nil(t, seats[0].RoomID)
	require.NotNil(t, seats[1].RoomID)
	assert.Equal(t, "hall", *seats[1].RoomID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryUpdateSeatRoomsWithTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_exams SET room_id = $2 WHERE id = $1")).
		WithArgs("seat-1", "hall").
		WillReturnResult(sqlmock.NewResult(1, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateSeatRoomsWithTx(context.Background(), tx, map[string]string{"seat-1": "hall"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryListWithStudentsByDateRange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	rows := sqlmock.NewRows([]string{"id", "timetable_id", "course_id", "group_id", "exam_date", "slot_label", "start_time", "end_time", "room_id", "created_at", "student_ids"}).
		AddRow("exam-1", "tt-1", "math", "math-a", time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), string(models.SlotMorning), "09:00", "12:00", nil, time.Now(), "{alice,bob}")
	mock.ExpectQuery("SELECT e.id, e.timetable_id").
		WithArgs("loc-1", string(models.TimetableStatusArchived), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	exams, err := repo.ListWithStudentsByDateRange(context.Background(), "loc-1",
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, []string{"alice", "bob"}, []string(exams[0].StudentIDs))
	assert.NoError(t, mock.ExpectationsWereMet())
}
