package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/campusops/exam-scheduler-api/internal/dto"
	"github.com/campusops/exam-scheduler-api/internal/models"
	"github.com/campusops/exam-scheduler-api/internal/scheduler"
	appErrors "github.com/campusops/exam-scheduler-api/pkg/errors"
)

type enrollmentReader interface {
	ListEnrolledByLocation(ctx context.Context, locationID string, courseIDs []string) ([]models.Enrollment, error)
	ListEnrolledByGroups(ctx context.Context, groupIDs []string) ([]models.Enrollment, error)
}

type roomReader interface {
	ListByLocation(ctx context.Context, locationID string) ([]models.Room, error)
}

type timetableRepository interface {
	CreateWithTx(ctx context.Context, exec sqlx.ExtContext, timetable *models.MasterTimetable) error
	FindByID(ctx context.Context, id string) (*models.MasterTimetable, error)
	List(ctx context.Context, locationID string, status models.TimetableStatus, page, pageSize int) ([]models.MasterTimetable, int, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error
	Delete(ctx context.Context, id string) error
}

type examRepository interface {
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, exams []models.Exam) error
	BulkCreateSeatsWithTx(ctx context.Context, tx *sqlx.Tx, seats []models.StudentExam) error
	ListWithStudentsByTimetable(ctx context.Context, timetableID string) ([]models.ExamWithStudents, error)
	ListWithStudentsByDateRange(ctx context.Context, locationID string, from, to time.Time) ([]models.ExamWithStudents, error)
	ListSeatsBySlot(ctx context.Context, timetableID string, slot models.SlotKey) ([]models.StudentExam, error)
	UpdateSeatRoomsWithTx(ctx context.Context, tx *sqlx.Tx, seatRooms map[string]string) error
	UpdateExamRoomWithTx(ctx context.Context, tx *sqlx.Tx, examID string, roomID *string) error
	CountByTimetable(ctx context.Context, timetableID string) (int, error)
}

type unscheduledRepository interface {
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, cohorts []models.UnscheduledCohort) error
	ListByTimetable(ctx context.Context, timetableID string) ([]models.UnscheduledCohort, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// TimetableServiceConfig governs scheduling defaults.
type TimetableServiceConfig struct {
	Constraints        scheduler.Constraints
	CheckFitWindowDays int
	SuggestionTTL      time.Duration
}

// TimetableService orchestrates scheduling runs: it snapshots enrollments
// and rooms, drives the pure engine, and commits the produced rows in a
// single transaction.
type TimetableService struct {
	enrollments enrollmentReader
	rooms       roomReader
	timetables  timetableRepository
	exams       examRepository
	unscheduled unscheduledRepository
	tx          txProvider
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         TimetableServiceConfig

	// locks serializes mutating runs per location. The engine assumes
	// exclusive access to a location's working set for one call.
	locks sync.Map
}

// NewTimetableService wires scheduling dependencies.
func NewTimetableService(
	enrollments enrollmentReader,
	rooms roomReader,
	timetables timetableRepository,
	exams examRepository,
	unscheduled unscheduledRepository,
	tx txProvider,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableServiceConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CheckFitWindowDays <= 0 {
		cfg.CheckFitWindowDays = 14
	}
	if cfg.SuggestionTTL <= 0 {
		cfg.SuggestionTTL = 5 * time.Minute
	}
	cfg.Constraints = cfg.Constraints.Normalized()
	return &TimetableService{
		enrollments: enrollments,
		rooms:       rooms,
		timetables:  timetables,
		exams:       exams,
		unscheduled: unscheduled,
		tx:          tx,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// GenerateSchedule runs the full pipeline for one location and commits the
// resulting draft timetable atomically, room packing included. Cohorts that
// cannot be placed are recorded with reasons; they never abort the run.
func (s *TimetableService) GenerateSchedule(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "startDate must be formatted as YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endDate must be formatted as YYYY-MM-DD")
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endDate must not precede startDate")
	}

	rooms, err := s.rooms.ListByLocation(ctx, req.LocationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}
	if len(rooms) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoRooms, fmt.Sprintf("no rooms registered at location %s", req.LocationID))
	}
	totalSeats := 0
	for _, room := range rooms {
		totalSeats += room.Capacity
	}

	enrollments, err := s.enrollments.ListEnrolledByLocation(ctx, req.LocationID, req.CourseIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if len(enrollments) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no enrolled students found for this location")
	}

	runStart := time.Now()
	cons := s.constraintsFor(req)
	if len(cons.SlotTimes) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoSlotLabels, "")
	}

	defer s.lockLocation(req.LocationID)()

	graph, skipped := scheduler.BuildConflictGraph(enrollments, req.CourseIDs)
	if skipped > 0 {
		s.logger.Warn("enrollments without a group were skipped",
			zap.String("location_id", req.LocationID), zap.Int("skipped", skipped))
	}

	part := scheduler.PartitionSlots(graph, totalSeats, cons.CapacityBufferPercent)

	dates := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		dates = append(dates, date)
	}
	plan := scheduler.MapCalendar(graph, part, dates, totalSeats, cons)

	if err := scheduler.VerifyCalendar(plan.Exams); err != nil {
		s.metrics.ObserveScheduleRun("invariant_violation", 0, 0, time.Since(runStart))
		return nil, appErrors.Wrap(err, appErrors.ErrInvariant.Code, appErrors.ErrInvariant.Status, "generated calendar violates placement invariants")
	}

	examRows, seatRows := materializeRows(plan.Exams)
	unaccommodated, err := s.packPlannedSlots(rooms, plan.Exams, examRows, seatRows)
	if err != nil {
		return nil, err
	}

	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	meta, marshalErr := json.Marshal(map[string]any{
		"startDate":    req.StartDate,
		"endDate":      req.EndDate,
		"courseFilter": req.CourseIDs,
		"skippedRows":  skipped,
		"totalSeats":   totalSeats,
		"splitCourses": sortedKeys(part.SplitCourses),
		"requestedAt":  runStart.UTC(),
		"algorithm":    "greedy_coloring_v1",
		"runMeta":      req.Meta,
	})
	if marshalErr != nil {
		err = appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode run metadata")
		return nil, err
	}

	timetable := &models.MasterTimetable{
		LocationID: req.LocationID,
		Status:     models.TimetableStatusDraft,
		Meta:       types.JSONText(meta),
	}
	if err = s.timetables.CreateWithTx(ctx, tx, timetable); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
		return nil, err
	}

	for i := range examRows {
		examRows[i].TimetableID = timetable.ID
	}
	if err = s.exams.BulkCreateWithTx(ctx, tx, examRows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist exams")
		return nil, err
	}
	if err = s.exams.BulkCreateSeatsWithTx(ctx, tx, seatRows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist seats")
		return nil, err
	}
	seatCount := len(seatRows)

	cohortRows := make([]models.UnscheduledCohort, 0, len(plan.Unscheduled))
	for _, cohort := range plan.Unscheduled {
		cohortRows = append(cohortRows, models.UnscheduledCohort{
			TimetableID: timetable.ID,
			CourseID:    cohort.CourseID,
			GroupIDs:    pq.StringArray(cohort.GroupIDs),
			Reason:      cohort.Reason,
		})
	}
	if err = s.unscheduled.BulkCreateWithTx(ctx, tx, cohortRows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist unscheduled cohorts")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit scheduling run")
		return nil, err
	}

	s.metrics.ObserveScheduleRun("committed", len(examRows), len(cohortRows), time.Since(runStart))
	s.metrics.ObservePacking(unaccommodated)
	s.invalidateLocation(ctx, req.LocationID)
	s.logger.Info("timetable generated",
		zap.String("timetable_id", timetable.ID),
		zap.String("location_id", req.LocationID),
		zap.Int("exams", len(examRows)),
		zap.Int("seats", seatCount),
		zap.Int("unaccommodated", unaccommodated),
		zap.Int("unscheduled", len(cohortRows)))

	resp := &dto.GenerateTimetableResponse{
		TimetableID:    timetable.ID,
		Status:         string(timetable.Status),
		Exams:          summarizeExams(examRows, plan.Exams),
		Unscheduled:    summarizeUnscheduled(plan.Unscheduled),
		Unaccommodated: unaccommodated,
		SeatCount:      seatCount,
	}
	return resp, nil
}

// materializeRows turns planned exams into exam and seat rows with
// pre-generated ids, so room packing can run before anything is persisted.
func materializeRows(planned []scheduler.PlannedExam) ([]models.Exam, []models.StudentExam) {
	examRows := make([]models.Exam, 0, len(planned))
	var seatRows []models.StudentExam
	for _, placed := range planned {
		examID := uuid.NewString()
		examRows = append(examRows, models.Exam{
			ID:        examID,
			CourseID:  placed.CourseID,
			GroupID:   placed.GroupID,
			ExamDate:  placed.Date,
			SlotLabel: placed.SlotLabel,
			StartTime: placed.StartTime,
			EndTime:   placed.EndTime,
		})
		for _, studentID := range placed.StudentIDs {
			seatRows = append(seatRows, models.StudentExam{
				ID:        uuid.NewString(),
				ExamID:    examID,
				StudentID: studentID,
			})
		}
	}
	return examRows, seatRows
}

// packPlannedSlots runs room packing for every (date, start, end) window of
// the plan and writes the outcome back into the rows about to be persisted.
// Returns the total number of unaccommodated seats.
func (s *TimetableService) packPlannedSlots(rooms []models.Room, planned []scheduler.PlannedExam, examRows []models.Exam, seatRows []models.StudentExam) (int, error) {
	slotSeats := make(map[string][]models.StudentExam)
	examSlots := make(map[string]string, len(examRows))
	var slotOrder []string
	for i, placed := range planned {
		key := scheduler.DateKey(placed.Date) + "|" + placed.StartTime + "|" + placed.EndTime
		examSlots[examRows[i].ID] = key
		if _, ok := slotSeats[key]; !ok {
			slotOrder = append(slotOrder, key)
		}
	}
	seatIndex := make(map[string]int, len(seatRows))
	for i, seat := range seatRows {
		key := examSlots[seat.ExamID]
		slotSeats[key] = append(slotSeats[key], seat)
		seatIndex[seat.ID] = i
	}
	examIndex := make(map[string]int, len(examRows))
	for i, row := range examRows {
		examIndex[row.ID] = i
	}

	sort.Strings(slotOrder)
	unaccommodated := 0
	for _, key := range slotOrder {
		result, err := scheduler.PackRooms(rooms, slotSeats[key])
		if err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "room packing failed")
		}
		if err := scheduler.VerifyPacking(rooms, result.Assignments); err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInvariant.Code, appErrors.ErrInvariant.Status, "packing violates room capacity invariants")
		}
		for _, assignment := range result.Assignments {
			roomID := assignment.RoomID
			seatRows[seatIndex[assignment.SeatID]].RoomID = &roomID
		}
		for examID, roomID := range result.ExamRooms {
			examRows[examIndex[examID]].RoomID = roomID
		}
		unaccommodated += len(result.Unaccommodated)
	}
	return unaccommodated, nil
}

// CheckFit probes the committed calendar for room to insert the candidate
// cohort, serving repeated probes from cache.
func (s *TimetableService) CheckFit(ctx context.Context, req dto.CheckFitRequest) (*dto.CheckFitResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fit-check payload")
	}
	candidateDate, err := time.Parse("2006-01-02", req.CandidateDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "candidateDate must be formatted as YYYY-MM-DD")
	}

	cacheKey := checkFitCacheKey(req)
	var cached dto.CheckFitResponse
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		cached.Cached = true
		return &cached, nil
	}

	rooms, err := s.rooms.ListByLocation(ctx, req.LocationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}
	if len(rooms) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoRooms, fmt.Sprintf("no rooms registered at location %s", req.LocationID))
	}

	enrollments, err := s.enrollments.ListEnrolledByGroups(ctx, req.GroupIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load candidate enrollments")
	}
	candidates := make(map[string]struct{}, len(enrollments))
	for _, row := range enrollments {
		candidates[row.StudentID] = struct{}{}
	}
	if len(candidates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "candidate groups have no enrolled students")
	}

	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = s.cfg.CheckFitWindowDays
	}
	existing, err := s.exams.ListWithStudentsByDateRange(ctx, req.LocationID,
		candidateDate.AddDate(0, 0, -windowDays), candidateDate.AddDate(0, 0, windowDays))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot existing exams")
	}

	result := scheduler.CheckFit(existing, rooms, candidates, candidateDate,
		dto.ParseSlotLabel(req.PreferredSlot), s.cfg.Constraints, windowDays)

	resp := &dto.CheckFitResponse{
		RequestedSlot: string(result.RequestedSlot),
		Conflicts:     result.Conflicts,
		Best:          result.Best,
		Suggestions:   result.Suggestions,
	}
	_ = s.cache.Set(ctx, cacheKey, resp, s.cfg.SuggestionTTL)
	return resp, nil
}

// PackRooms assigns seats for every exam sharing the requested slot and
// commits the placement atomically. Re-running is safe: committed seats
// keep their rooms and only free seats are handed out.
func (s *TimetableService) PackRooms(ctx context.Context, timetableID string, req dto.PackRoomsRequest) (*dto.PackRoomsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room packing payload")
	}
	examDate, err := time.Parse("2006-01-02", req.ExamDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "examDate must be formatted as YYYY-MM-DD")
	}

	timetable, err := s.findTimetable(ctx, timetableID)
	if err != nil {
		return nil, err
	}
	defer s.lockLocation(timetable.LocationID)()

	rooms, err := s.rooms.ListByLocation(ctx, timetable.LocationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}

	slot := models.SlotKey{Date: examDate, StartTime: req.StartTime, EndTime: req.EndTime}
	seats, err := s.exams.ListSeatsBySlot(ctx, timetableID, slot)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot seats")
	}
	if len(seats) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no exams found in the requested slot")
	}

	result, err := scheduler.PackRooms(rooms, seats)
	if err != nil {
		if errors.Is(err, scheduler.ErrNoRooms) {
			return nil, appErrors.Clone(appErrors.ErrNoRooms, fmt.Sprintf("no rooms registered at location %s", timetable.LocationID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "room packing failed")
	}
	if err := scheduler.VerifyPacking(rooms, result.Assignments); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvariant.Code, appErrors.ErrInvariant.Status, "packing violates room capacity invariants")
	}

	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	seatRooms := make(map[string]string, len(result.Assignments))
	for _, assignment := range result.Assignments {
		seatRooms[assignment.SeatID] = assignment.RoomID
	}
	if err = s.exams.UpdateSeatRoomsWithTx(ctx, tx, seatRooms); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist seat assignments")
		return nil, err
	}
	for examID, roomID := range result.ExamRooms {
		if err = s.exams.UpdateExamRoomWithTx(ctx, tx, examID, roomID); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist exam rooms")
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit room packing")
		return nil, err
	}

	s.metrics.ObservePacking(len(result.Unaccommodated))
	s.invalidateLocation(ctx, timetable.LocationID)

	occupancy := make(map[string]int)
	for _, assignment := range result.Assignments {
		occupancy[assignment.RoomID]++
	}
	unseated := make([]string, 0, len(result.Unaccommodated))
	for _, seat := range result.Unaccommodated {
		unseated = append(unseated, seat.StudentID)
	}
	sort.Strings(unseated)

	return &dto.PackRoomsResponse{
		Assigned:       len(result.Assignments),
		Unaccommodated: unseated,
		RoomOccupancy:  occupancy,
		ExamRooms:      result.ExamRooms,
	}, nil
}

// Publish promotes a draft timetable to the published state.
func (s *TimetableService) Publish(ctx context.Context, timetableID string) error {
	timetable, err := s.findTimetable(ctx, timetableID)
	if err != nil {
		return err
	}
	if timetable.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be published")
	}
	if err := s.timetables.UpdateStatus(ctx, nil, timetableID, models.TimetableStatusPublished, nil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish timetable")
	}
	s.invalidateLocation(ctx, timetable.LocationID)
	return nil
}

// Delete removes a draft timetable along with its exams and seats.
func (s *TimetableService) Delete(ctx context.Context, timetableID string) error {
	timetable, err := s.findTimetable(ctx, timetableID)
	if err != nil {
		return err
	}
	if timetable.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be deleted")
	}
	if err := s.timetables.Delete(ctx, timetableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	s.invalidateLocation(ctx, timetable.LocationID)
	return nil
}

// List returns timetable summaries with exam counts.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableQuery) ([]dto.TimetableSummary, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable query")
	}
	timetables, total, err := s.timetables.List(ctx, query.LocationID, models.TimetableStatus(query.Status), query.Page, query.PageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}

	summaries := make([]dto.TimetableSummary, 0, len(timetables))
	for _, timetable := range timetables {
		count, countErr := s.exams.CountByTimetable(ctx, timetable.ID)
		if countErr != nil {
			return nil, nil, appErrors.Wrap(countErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count timetable exams")
		}
		summaries = append(summaries, dto.TimetableSummary{
			ID:         timetable.ID,
			LocationID: timetable.LocationID,
			Status:     string(timetable.Status),
			ExamCount:  count,
			CreatedAt:  timetable.CreatedAt,
			UpdatedAt:  timetable.UpdatedAt,
		})
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return summaries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetExams returns exam detail for one timetable, unplaced cohorts included.
func (s *TimetableService) GetExams(ctx context.Context, timetableID string) ([]dto.ExamDetail, []models.UnscheduledCohort, error) {
	if _, err := s.findTimetable(ctx, timetableID); err != nil {
		return nil, nil, err
	}
	exams, err := s.exams.ListWithStudentsByTimetable(ctx, timetableID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable exams")
	}
	cohorts, err := s.unscheduled.ListByTimetable(ctx, timetableID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unscheduled cohorts")
	}

	details := make([]dto.ExamDetail, 0, len(exams))
	for _, exam := range exams {
		details = append(details, dto.ExamDetail{
			ExamSummary: dto.ExamSummary{
				ExamID:       exam.ID,
				CourseID:     exam.CourseID,
				GroupID:      exam.GroupID,
				ExamDate:     exam.ExamDate.Format("2006-01-02"),
				SlotLabel:    string(exam.SlotLabel),
				StartTime:    exam.StartTime,
				EndTime:      exam.EndTime,
				RoomID:       exam.RoomID,
				StudentCount: len(exam.StudentIDs),
			},
			StudentIDs: []string(exam.StudentIDs),
		})
	}
	return details, cohorts, nil
}

func (s *TimetableService) findTimetable(ctx context.Context, timetableID string) (*models.MasterTimetable, error) {
	if timetableID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	timetable, err := s.timetables.FindByID(ctx, timetableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	return timetable, nil
}

// constraintsFor merges per-request overrides onto the configured policy.
func (s *TimetableService) constraintsFor(req dto.GenerateTimetableRequest) scheduler.Constraints {
	cons := s.cfg.Constraints.Normalized()

	holidays := make(map[string]struct{}, len(cons.Holidays)+len(req.Holidays))
	for key := range cons.Holidays {
		holidays[key] = struct{}{}
	}
	for _, raw := range req.Holidays {
		holidays[raw] = struct{}{}
	}
	cons.Holidays = holidays

	if req.MaxExamsPerDay > 0 {
		cons.MaxExamsPerDay = req.MaxExamsPerDay
	}
	if req.MinGapDays > 0 {
		cons.MinGapDays = req.MinGapDays
	}
	if req.CapacityBufferPercent > 0 {
		cons.CapacityBufferPercent = req.CapacityBufferPercent
	}
	if len(req.SlotPreferences) > 0 {
		prefs := make(map[string][]models.SlotLabel, len(req.SlotPreferences))
		for groupID, labels := range req.SlotPreferences {
			ordered := make([]models.SlotLabel, 0, len(labels))
			for _, label := range labels {
				ordered = append(ordered, dto.ParseSlotLabel(label))
			}
			prefs[groupID] = ordered
		}
		cons.SlotPreferences = prefs
	}
	return cons
}

// lockLocation acquires the location's run lock and returns its release
// func, meant for defer at the call site.
func (s *TimetableService) lockLocation(locationID string) func() {
	actual, _ := s.locks.LoadOrStore(locationID, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *TimetableService) invalidateLocation(ctx context.Context, locationID string) {
	if err := s.cache.Invalidate(ctx, "timetable:"+locationID+":*"); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("location_id", locationID), zap.Error(err))
	}
}

func checkFitCacheKey(req dto.CheckFitRequest) string {
	groups := make([]string, len(req.GroupIDs))
	copy(groups, req.GroupIDs)
	sort.Strings(groups)
	return fmt.Sprintf("timetable:%s:checkfit:%s:%s:%s", req.LocationID, req.CandidateDate, req.PreferredSlot, strings.Join(groups, ","))
}

func summarizeExams(rows []models.Exam, planned []scheduler.PlannedExam) []dto.ExamSummary {
	summaries := make([]dto.ExamSummary, 0, len(rows))
	for i, row := range rows {
		summaries = append(summaries, dto.ExamSummary{
			ExamID:       row.ID,
			CourseID:     row.CourseID,
			GroupID:      row.GroupID,
			ExamDate:     row.ExamDate.Format("2006-01-02"),
			SlotLabel:    string(row.SlotLabel),
			StartTime:    row.StartTime,
			EndTime:      row.EndTime,
			RoomID:       row.RoomID,
			StudentCount: len(planned[i].StudentIDs),
		})
	}
	return summaries
}

func summarizeUnscheduled(cohorts []scheduler.UnplacedCohort) []dto.UnscheduledSummary {
	summaries := make([]dto.UnscheduledSummary, 0, len(cohorts))
	for _, cohort := range cohorts {
		summaries = append(summaries, dto.UnscheduledSummary{
			CourseID:     cohort.CourseID,
			GroupIDs:     cohort.GroupIDs,
			StudentCount: cohort.StudentCount,
			Reason:       cohort.Reason,
		})
	}
	return summaries
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
