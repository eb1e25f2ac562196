package main

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/campusops/exam-scheduler-api/internal/handler"
	internalmiddleware "github.com/campusops/exam-scheduler-api/internal/middleware"
	"github.com/campusops/exam-scheduler-api/internal/repository"
	"github.com/campusops/exam-scheduler-api/internal/scheduler"
	"github.com/campusops/exam-scheduler-api/internal/service"
	"github.com/campusops/exam-scheduler-api/pkg/cache"
	"github.com/campusops/exam-scheduler-api/pkg/config"
	"github.com/campusops/exam-scheduler-api/pkg/database"
	"github.com/campusops/exam-scheduler-api/pkg/export"
	"github.com/campusops/exam-scheduler-api/pkg/logger"
	corsmiddleware "github.com/campusops/exam-scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusops/exam-scheduler-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Scheduler.SuggestionCacheTTL, logr, redisClient != nil)

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	examRepo := repository.NewExamRepository(db)
	unscheduledRepo := repository.NewUnscheduledRepository(db)

	timetableSvc := service.NewTimetableService(
		enrollmentRepo,
		roomRepo,
		timetableRepo,
		examRepo,
		unscheduledRepo,
		db,
		cacheSvc,
		metricsSvc,
		validate,
		logr,
		service.TimetableServiceConfig{
			Constraints:        constraintsFromConfig(cfg.Scheduler),
			CheckFitWindowDays: cfg.Scheduler.CheckFitWindowDays,
			SuggestionTTL:      cfg.Scheduler.SuggestionCacheTTL,
		},
	)
	exportSvc := service.NewExportService(timetableRepo, examRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	timetableHandler := handler.NewTimetableHandler(timetableSvc, exportSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(cfg.JWT.Secret))
	{
		api.POST("/timetables/generate", timetableHandler.Generate)
		api.POST("/timetables/check-fit", timetableHandler.CheckFit)
		api.GET("/timetables", timetableHandler.List)
		api.GET("/timetables/:id/exams", timetableHandler.Exams)
		api.POST("/timetables/:id/slots/pack", timetableHandler.PackRooms)
		api.POST("/timetables/:id/publish", timetableHandler.Publish)
		api.DELETE("/timetables/:id", timetableHandler.Delete)
		if cfg.Exports.Enabled {
			api.GET("/timetables/:id/export", timetableHandler.Export)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

var weekdayNames = map[string]time.Weekday{
	"SUNDAY":    time.Sunday,
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
}

func constraintsFromConfig(cfg config.SchedulerConfig) scheduler.Constraints {
	cons := scheduler.DefaultConstraints()
	cons.ExcludeFridayEvening = cfg.ExcludeFridayEvening
	if cfg.MaxExamsPerDay > 0 {
		cons.MaxExamsPerDay = cfg.MaxExamsPerDay
	}
	if cfg.MaxExamsPerSlot > 0 {
		cons.MaxExamsPerSlot = cfg.MaxExamsPerSlot
	}
	cons.MinGapDays = cfg.MinGapDays
	cons.CapacityBufferPercent = cfg.CapacityBufferPercent

	if len(cfg.ExcludedWeekdays) > 0 {
		excluded := make(map[time.Weekday]struct{}, len(cfg.ExcludedWeekdays))
		for _, name := range cfg.ExcludedWeekdays {
			if day, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(name))]; ok {
				excluded[day] = struct{}{}
			}
		}
		cons.ExcludedWeekdays = excluded
	}
	return cons
}
