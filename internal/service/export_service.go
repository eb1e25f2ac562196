package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusops/exam-scheduler-api/internal/models"
	appErrors "github.com/campusops/exam-scheduler-api/pkg/errors"
	"github.com/campusops/exam-scheduler-api/pkg/export"
)

type exportTimetableReader interface {
	FindByID(ctx context.Context, id string) (*models.MasterTimetable, error)
}

type exportExamReader interface {
	ListWithStudentsByTimetable(ctx context.Context, timetableID string) ([]models.ExamWithStudents, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFormat identifies a supported export rendering.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult carries a rendered export payload.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders timetables as downloadable files.
type ExportService struct {
	timetables exportTimetableReader
	exams      exportExamReader
	csv        csvRenderer
	pdf        pdfRenderer
	logger     *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(timetables exportTimetableReader, exams exportExamReader, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{timetables: timetables, exams: exams, csv: csv, pdf: pdf, logger: logger}
}

// ExportTimetable renders the full exam listing of a timetable.
func (s *ExportService) ExportTimetable(ctx context.Context, timetableID string, format ExportFormat) (*ExportResult, error) {
	timetable, err := s.timetables.FindByID(ctx, timetableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}

	exams, err := s.exams.ListWithStudentsByTimetable(ctx, timetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable exams")
	}

	dataset := buildTimetableDataset(exams)
	title := fmt.Sprintf("Exam Timetable %s (%s)", timetable.ID, timetable.Status)

	var payload []byte
	var contentType string
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("timetable_%s_%s.%s", sanitizeFilename(timetable.ID), time.Now().UTC().Format("20060102_150405"), format)
	return &ExportResult{Filename: filename, ContentType: contentType, Payload: payload}, nil
}

func buildTimetableDataset(exams []models.ExamWithStudents) export.Dataset {
	rows := make([]map[string]string, 0, len(exams))
	for _, exam := range exams {
		room := ""
		if exam.RoomID != nil {
			room = *exam.RoomID
		}
		rows = append(rows, map[string]string{
			"Date":     exam.ExamDate.Format("2006-01-02"),
			"Slot":     string(exam.SlotLabel),
			"Start":    exam.StartTime,
			"End":      exam.EndTime,
			"Course":   exam.CourseID,
			"Group":    exam.GroupID,
			"Room":     room,
			"Students": fmt.Sprintf("%d", len(exam.StudentIDs)),
		})
	}
	return export.Dataset{
		Headers: []string{"Date", "Slot", "Start", "End", "Course", "Group", "Room", "Students"},
		Rows:    rows,
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
