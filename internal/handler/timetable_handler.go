package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campusops/exam-scheduler-api/internal/dto"
	"github.com/campusops/exam-scheduler-api/internal/models"
	"github.com/campusops/exam-scheduler-api/internal/service"
	appErrors "github.com/campusops/exam-scheduler-api/pkg/errors"
	"github.com/campusops/exam-scheduler-api/pkg/response"
)

type timetableScheduler interface {
	GenerateSchedule(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	CheckFit(ctx context.Context, req dto.CheckFitRequest) (*dto.CheckFitResponse, error)
	PackRooms(ctx context.Context, timetableID string, req dto.PackRoomsRequest) (*dto.PackRoomsResponse, error)
	Publish(ctx context.Context, timetableID string) error
	Delete(ctx context.Context, timetableID string) error
	List(ctx context.Context, query dto.TimetableQuery) ([]dto.TimetableSummary, *models.Pagination, error)
	GetExams(ctx context.Context, timetableID string) ([]dto.ExamDetail, []models.UnscheduledCohort, error)
}

type timetableExporter interface {
	ExportTimetable(ctx context.Context, timetableID string, format service.ExportFormat) (*service.ExportResult, error)
}

// TimetableHandler exposes timetable scheduling endpoints.
type TimetableHandler struct {
	service  timetableScheduler
	exporter timetableExporter
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableService, exporter *service.ExportService) *TimetableHandler {
	return &TimetableHandler{service: svc, exporter: exporter}
}

// Generate runs the full scheduling pipeline for a location and commits a
// draft timetable.
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.GenerateSchedule(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// CheckFit probes the committed calendar for room to add one cohort.
func (h *TimetableHandler) CheckFit(c *gin.Context) {
	var req dto.CheckFitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid fit-check payload"))
		return
	}
	result, err := h.service.CheckFit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// PackRooms assigns seats for every exam sharing the requested slot.
func (h *TimetableHandler) PackRooms(c *gin.Context) {
	var req dto.PackRoomsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid room packing payload"))
		return
	}
	result, err := h.service.PackRooms(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List returns timetable summaries filtered by location and status.
func (h *TimetableHandler) List(c *gin.Context) {
	query := dto.TimetableQuery{
		LocationID: c.Query("locationId"),
		Status:     c.Query("status"),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "pageSize", 20),
	}
	result, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, pagination)
}

// Exams returns exam detail for a timetable, unscheduled cohorts included.
func (h *TimetableHandler) Exams(c *gin.Context) {
	exams, unscheduled, err := h.service.GetExams(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"exams": exams, "unscheduled": unscheduled}, nil)
}

// Publish promotes a draft timetable to the published state.
func (h *TimetableHandler) Publish(c *gin.Context) {
	if err := h.service.Publish(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": string(models.TimetableStatusPublished)}, nil)
}

// Delete removes a draft timetable.
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export streams the timetable as a CSV or PDF download.
func (h *TimetableHandler) Export(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exporter.ExportTimetable(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
