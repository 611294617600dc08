package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"
	"github.com/tl-its-umich-edu/placement-exams/internal/report"
	"github.com/tl-its-umich-edu/placement-exams/internal/storage"
	"github.com/tl-its-umich-edu/placement-exams/internal/sync"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type JobQueue interface {
	EnqueueSyncJob(ctx context.Context, job model.SyncJob) error
}

type Handler struct {
	repo    db.Repository
	jobs    JobQueue
	archive storage.Storage
	cfg     *config.Config
	now     func() time.Time
	log     zerolog.Logger
}

// NewHandler builds the API handler. archive may be nil when report
// archiving is disabled.
func NewHandler(
	repo db.Repository,
	jobs JobQueue,
	archive storage.Storage,
	cfg *config.Config,
) *Handler {
	return &Handler{
		repo:    repo,
		jobs:    jobs,
		archive: archive,
		cfg:     cfg,
		now:     time.Now,
		log:     logger.Get(),
	}
}

func (h *Handler) TriggerSync(c *gin.Context) {
	var req model.SyncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}
	if req.RequestedBy == "" {
		req.RequestedBy = "api"
	}

	job := model.SyncJob{
		RequestedBy: req.RequestedBy,
		RequestedAt: h.now().UTC(),
	}

	if err := h.jobs.EnqueueSyncJob(c.Request.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue sync job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue sync job"})
		return
	}

	h.log.Info().Str("requested_by", job.RequestedBy).Msg("Sync job enqueued")

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Sync job queued successfully",
		"job":     job,
	})
}

func (h *Handler) ListExams(c *gin.Context) {
	ctx := c.Request.Context()

	exams, err := h.repo.ListExams(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list exams")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	statuses := make([]model.ExamStatus, 0, len(exams))
	for _, exam := range exams {
		pending, transmitted, err := h.repo.CountSubmissions(ctx, exam.ID)
		if err != nil {
			h.log.Error().Err(err).Int64("exam_id", exam.ID).Msg("Failed to count submissions")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		filter, err := sync.SubTimeFilter(ctx, h.repo, exam)
		if err != nil {
			h.log.Error().Err(err).Int64("exam_id", exam.ID).Msg("Failed to compute watermark")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		statuses = append(statuses, model.ExamStatus{
			Exam:             exam,
			PendingCount:     pending,
			TransmittedCount: transmitted,
			SubTimeFilter:    filter,
		})
	}

	c.JSON(http.StatusOK, gin.H{"exams": statuses})
}

func (h *Handler) ListSubmissions(c *gin.Context) {
	examID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exam ID"})
		return
	}

	var transmitted *bool
	if raw, ok := c.GetQuery("transmitted"); ok {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transmitted filter"})
			return
		}
		transmitted = &value
	}

	ctx := c.Request.Context()
	if _, err := h.repo.GetExam(ctx, examID); err != nil {
		if errors.Is(err, pkgerrors.ErrExamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exam not found"})
			return
		}
		h.log.Error().Err(err).Int64("exam_id", examID).Msg("Failed to get exam")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	subs, err := h.repo.GetSubmissions(ctx, examID, transmitted)
	if err != nil {
		h.log.Error().Err(err).Int64("exam_id", examID).Msg("Failed to get submissions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}

	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

// GetArchivedReport streams a run's archived report JSON from object storage.
func (h *Handler) GetArchivedReport(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report archive is not enabled"})
		return
	}

	key := report.ArchiveKey(h.cfg.Storage.S3.ReportPrefix, c.Param("report"), c.Param("run_id")) + ".json"
	body, err := h.archive.Download(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
			return
		}
		h.log.Error().Err(err).Str("key", key).Msg("Failed to download archived report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("Failed to read archived report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}
