package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusops/exam-scheduler-api/internal/dto"
	"github.com/campusops/exam-scheduler-api/internal/models"
	"github.com/campusops/exam-scheduler-api/internal/scheduler"
	appErrors "github.com/campusops/exam-scheduler-api/pkg/errors"
)

func TestTimetableServiceGenerateCommitsRun(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	fixture := newTimetableFixture(t, timetableFixtureConfig{tx: txProvider})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fixture.service.GenerateSchedule(context.Background(), dto.GenerateTimetableRequest{
		LocationID: "loc-1",
		StartDate:  "2026-09-07",
		EndDate:    "2026-09-11",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TimetableID)
	assert.Equal(t, string(models.TimetableStatusDraft), resp.Status)
	assert.Len(t, resp.Exams, 2, "math and physics share alice, so two sittings")
	assert.Equal(t, 3, resp.SeatCount)
	assert.Empty(t, resp.Unscheduled)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, fixture.timetables.created, 1)
	assert.Len(t, fixture.exams.exams, 2)
	assert.Len(t, fixture.exams.seats, 3)

	// Packing ran as part of the generate: every seat fit the hall.
	assert.Equal(t, 0, resp.Unaccommodated)
	for _, seat := range fixture.exams.seats {
		require.NotNil(t, seat.RoomID)
		assert.Equal(t, "hall", *seat.RoomID)
	}
}

func TestTimetableServiceGenerateNoRooms(t *testing.T) {
	fixture := newTimetableFixture(t, timetableFixtureConfig{noRooms: true})

	_, err := fixture.service.GenerateSchedule(context.Background(), dto.GenerateTimetableRequest{
		LocationID: "loc-1",
		StartDate:  "2026-09-07",
		EndDate:    "2026-09-11",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNoRooms.Code, appErr.Code)
}

func TestTimetableServiceGenerateRecordsUnscheduled(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	fixture := newTimetableFixture(t, timetableFixtureConfig{
		tx: txProvider,
		// Single Saturday: every candidate date is excluded.
		enrollments: []models.Enrollment{enrollment("alice", "math", "math-a")},
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fixture.service.GenerateSchedule(context.Background(), dto.GenerateTimetableRequest{
		LocationID: "loc-1",
		StartDate:  "2026-09-05",
		EndDate:    "2026-09-05",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Exams)
	require.Len(t, resp.Unscheduled, 1)
	assert.NotEmpty(t, resp.Unscheduled[0].Reason)
	assert.Len(t, fixture.unscheduled.created, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateValidation(t *testing.T) {
	fixture := newTimetableFixture(t, timetableFixtureConfig{})

	_, err := fixture.service.GenerateSchedule(context.Background(), dto.GenerateTimetableRequest{
		LocationID: "loc-1",
		StartDate:  "2026-09-11",
		EndDate:    "2026-09-07",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceCheckFit(t *testing.T) {
	fixture := newTimetableFixture(t, timetableFixtureConfig{})

	resp, err := fixture.service.CheckFit(context.Background(), dto.CheckFitRequest{
		LocationID:    "loc-1",
		GroupIDs:      []string{"math-a"},
		CandidateDate: "2026-09-07",
		PreferredSlot: "Morning",
	})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	require.NotNil(t, resp.Best)
	assert.Equal(t, string(models.SlotMorning), string(resp.Best.SlotLabel))
}

func TestTimetableServicePackRooms(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	fixture := newTimetableFixture(t, timetableFixtureConfig{tx: txProvider})
	fixture.timetables.created = []*models.MasterTimetable{{
		ID: "tt-1", LocationID: "loc-1", Status: models.TimetableStatusDraft,
	}}
	fixture.exams.slotSeats = []models.StudentExam{
		{ID: "seat-1", ExamID: "exam-1", StudentID: "alice"},
		{ID: "seat-2", ExamID: "exam-1", StudentID: "bob"},
	}

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fixture.service.PackRooms(context.Background(), "tt-1", dto.PackRoomsRequest{
		ExamDate:  "2026-09-07",
		StartTime: "09:00",
		EndTime:   "12:00",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Assigned)
	assert.Empty(t, resp.Unaccommodated)
	assert.Equal(t, map[string]int{"hall": 2}, resp.RoomOccupancy)
	require.NotNil(t, resp.ExamRooms["exam-1"])
	assert.Equal(t, "hall", *resp.ExamRooms["exam-1"])
	assert.Len(t, fixture.exams.seatRooms, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServicePackRoomsSlotEmpty(t *testing.T) {
	fixture := newTimetableFixture(t, timetableFixtureConfig{})
	fixture.timetables.created = []*models.MasterTimetable{{
		ID: "tt-1", LocationID: "loc-1", Status: models.TimetableStatusDraft,
	}}

	_, err := fixture.service.PackRooms(context.Background(), "tt-1", dto.PackRoomsRequest{
		ExamDate:  "2026-09-07",
		StartTime: "09:00",
		EndTime:   "12:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServicePublishOnlyDrafts(t *testing.T) {
	fixture := newTimetableFixture(t, timetableFixtureConfig{})
	fixture.timetables.created = []*models.MasterTimetable{{
		ID: "tt-1", LocationID: "loc-1", Status: models.TimetableStatusPublished,
	}}

	err := fixture.service.Publish(context.Background(), "tt-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceDeleteDraft(t *testing.T) {
	fixture := newTimetableFixture(t, timetableFixtureConfig{})
	fixture.timetables.created = []*models.MasterTimetable{{
		ID: "tt-1", LocationID: "loc-1", Status: models.TimetableStatusDraft,
	}}

	require.NoError(t, fixture.service.Delete(context.Background(), "tt-1"))
	assert.Empty(t, fixture.timetables.created)
}

func TestTimetableServiceDeleteNotFound(t *testing.T) {
	fixture := newTimetableFixture(t, timetableFixtureConfig{})

	err := fixture.service.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

// --- Fixtures ---

type timetableFixtureConfig struct {
	tx          txProvider
	noRooms     bool
	enrollments []models.Enrollment
}

type timetableFixture struct {
	service     *TimetableService
	timetables  *timetableRepoStub
	exams       *examRepoStub
	unscheduled *unscheduledRepoStub
}

func newTimetableFixture(t *testing.T, cfg timetableFixtureConfig) *timetableFixture {
	t.Helper()

	rows := cfg.enrollments
	if rows == nil {
		rows = []models.Enrollment{
			enrollment("alice", "math", "math-a"),
			enrollment("alice", "physics", "phys-a"),
			enrollment("bob", "math", "math-a"),
		}
	}
	rooms := []models.Room{{ID: "hall", Name: "Main Hall", Capacity: 100, LocationID: "loc-1"}}
	if cfg.noRooms {
		rooms = nil
	}

	timetables := &timetableRepoStub{}
	exams := &examRepoStub{}
	unscheduled := &unscheduledRepoStub{}
	tx := cfg.tx
	if tx == nil {
		tx = noopTxProvider{}
	}

	service := NewTimetableService(
		enrollmentReaderStub{rows: rows},
		roomReaderStub{rooms: rooms},
		timetables,
		exams,
		unscheduled,
		tx,
		NewCacheService(nil, nil, time.Minute, zap.NewNop(), false),
		NewMetricsService(),
		validator.New(),
		zap.NewNop(),
		TimetableServiceConfig{Constraints: scheduler.DefaultConstraints()},
	)
	return &timetableFixture{service: service, timetables: timetables, exams: exams, unscheduled: unscheduled}
}

func enrollment(studentID, courseID, groupID string) models.Enrollment {
	return models.Enrollment{
		StudentID: studentID,
		CourseID:  courseID,
		GroupID:   &groupID,
		Status:    models.EnrollmentStatusEnrolled,
	}
}

type enrollmentReaderStub struct {
	rows []models.Enrollment
}

func (s enrollmentReaderStub) ListEnrolledByLocation(ctx context.Context, locationID string, courseIDs []string) ([]models.Enrollment, error) {
	return s.rows, nil
}

func (s enrollmentReaderStub) ListEnrolledByGroups(ctx context.Context, groupIDs []string) ([]models.Enrollment, error) {
	wanted := make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		wanted[id] = true
	}
	var matched []models.Enrollment
	for _, row := range s.rows {
		if row.GroupID != nil && wanted[*row.GroupID] {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

type roomReaderStub struct {
	rooms []models.Room
}

func (s roomReaderStub) ListByLocation(ctx context.Context, locationID string) ([]models.Room, error) {
	return s.rooms, nil
}

type timetableRepoStub struct {
	created []*models.MasterTimetable
}

func (s *timetableRepoStub) CreateWithTx(ctx context.Context, exec sqlx.ExtContext, timetable *models.MasterTimetable) error {
	timetable.ID = fmt.Sprintf("tt-%d", len(s.created)+1)
	s.created = append(s.created, timetable)
	return nil
}

func (s *timetableRepoStub) FindByID(ctx context.Context, id string) (*models.MasterTimetable, error) {
	for _, item := range s.created {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *timetableRepoStub) List(ctx context.Context, locationID string, status models.TimetableStatus, page, pageSize int) ([]models.MasterTimetable, int, error) {
	result := make([]models.MasterTimetable, 0, len(s.created))
	for _, item := range s.created {
		result = append(result, *item)
	}
	return result, len(result), nil
}

func (s *timetableRepoStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error {
	for _, item := range s.created {
		if item.ID == id {
			item.Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *timetableRepoStub) Delete(ctx context.Context, id string) error {
	for idx, item := range s.created {
		if item.ID == id {
			s.created = append(s.created[:idx], s.created[idx+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type examRepoStub struct {
	exams     []models.Exam
	seats     []models.StudentExam
	slotSeats []models.StudentExam
	seatRooms map[string]string
	examRooms map[string]*string
}

func (s *examRepoStub) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, exams []models.Exam) error {
	for i := range exams {
		if exams[i].ID == "" {
			exams[i].ID = fmt.Sprintf("exam-%d", len(s.exams)+i+1)
		}
	}
	s.exams = append(s.exams, exams...)
	return nil
}

func (s *examRepoStub) BulkCreateSeatsWithTx(ctx context.Context, tx *sqlx.Tx, seats []models.StudentExam) error {
	s.seats = append(s.seats, seats...)
	return nil
}

func (s *examRepoStub) ListWithStudentsByTimetable(ctx context.Context, timetableID string) ([]models.ExamWithStudents, error) {
	return nil, nil
}

func (s *examRepoStub) ListWithStudentsByDateRange(ctx context.Context, locationID string, from, to time.Time) ([]models.ExamWithStudents, error) {
	return nil, nil
}

func (s *examRepoStub) ListSeatsBySlot(ctx context.Context, timetableID string, slot models.SlotKey) ([]models.StudentExam, error) {
	return s.slotSeats, nil
}

func (s *examRepoStub) UpdateSeatRoomsWithTx(ctx context.Context, tx *sqlx.Tx, seatRooms map[string]string) error {
	if s.seatRooms == nil {
		s.seatRooms = make(map[string]string)
	}
	for seatID, roomID := range seatRooms {
		s.seatRooms[seatID] = roomID
	}
	return nil
}

func (s *examRepoStub) UpdateExamRoomWithTx(ctx context.Context, tx *sqlx.Tx, examID string, roomID *string) error {
	if s.examRooms == nil {
		s.examRooms = make(map[string]*string)
	}
	s.examRooms[examID] = roomID
	return nil
}

func (s *examRepoStub) CountByTimetable(ctx context.Context, timetableID string) (int, error) {
	return len(s.exams), nil
}

type unscheduledRepoStub struct {
	created []models.UnscheduledCohort
}

func (s *unscheduledRepoStub) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, cohorts []models.UnscheduledCohort) error {
	s.created = append(s.created, cohorts...)
	return nil
}

func (s *unscheduledRepoStub) ListByTimetable(ctx context.Context, timetableID string) ([]models.UnscheduledCohort, error) {
	return s.created, nil
}

type noopTxProvider struct{}

func (noopTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}
