package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"bitbucket.org/rentfolio/reporting_backend/config"
	"bitbucket.org/rentfolio/reporting_backend/credit"
	"bitbucket.org/rentfolio/reporting_backend/models"
	"bitbucket.org/rentfolio/reporting_backend/utils"
	"bitbucket.org/rentfolio/reporting_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("reporting_period", func(fl validator.FieldLevel) bool {
			return workflow.IsValidPeriod(fl.Field().String())
		})
	}
}

// ReportingHandler is thin transport glue: bind, call workflow/models, map
// errors to statuses. All pipeline semantics live below this layer.
type ReportingHandler struct {
	Worker *workflow.Worker
}

func NewReportingHandler(worker *workflow.Worker) *ReportingHandler {
	return &ReportingHandler{Worker: worker}
}

func (h *ReportingHandler) db() *gorm.DB {
	return config.GetDB()
}

func (h *ReportingHandler) Register(r gin.IRouter) {
	r.POST("/reporting/submissions", h.QueueSubmission)
	r.GET("/reporting/submissions/:id", h.GetSubmission)
	r.POST("/reporting/submissions/:id/process", h.ProcessSubmission)
	r.POST("/reporting/submissions/:id/retry", h.RetrySubmission)
	r.POST("/reporting/submissions/:id/approve", h.ApproveSubmission)
	r.POST("/reporting/submissions/:id/submit-live", h.SubmitLive)
	r.POST("/reporting/sweep", h.Sweep)
	r.POST("/reporting/pause", h.Pause)
	r.POST("/reporting/resume", h.Resume)
	r.GET("/reporting/config", h.GetConfig)
	r.GET("/reporting/tenants/:tenantId/credit-history", h.CreditHistory)
}

// statusForError maps the error taxonomy onto HTTP statuses:
// 400 validation, 403 consent/approval/pilot, 404 missing, 409 state conflicts
// and rate limiting, 412 provider configuration.
func statusForError(err error) int {
	switch {
	case utils.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrConsentNotGranted),
		errors.Is(err, workflow.ErrNotPilotLandlord),
		errors.Is(err, workflow.ErrLiveNotApproved):
		return http.StatusForbidden
	case errors.Is(err, workflow.ErrAlreadyClaimed),
		errors.Is(err, workflow.ErrRateLimited),
		errors.Is(err, workflow.ErrAttemptsExhausted):
		return http.StatusConflict
	case utils.IsConfigurationError(err):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		config.LogError(config.GetLogger(), "handlers", "abortWithError", c.FullPath(), nil, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *ReportingHandler) QueueSubmission(c *gin.Context) {
	var req workflow.QueueSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, created, err := workflow.QueueSubmission(c.Request.Context(), h.db(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"submission": sub, "created": created})
}

func (h *ReportingHandler) GetSubmission(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}
	sub, err := models.GetSubmission(h.db(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": sub})
}

func (h *ReportingHandler) ProcessSubmission(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}

	result, err := h.Worker.ProcessSubmission(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if result.Outcome == workflow.OutcomeSkippedDisabled {
		// Off by policy is not an error; make it explicit for operators.
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reporting_paused", "result": result})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *ReportingHandler) RetrySubmission(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}
	sub, err := workflow.RetrySubmission(c.Request.Context(), h.db(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": sub})
}

func (h *ReportingHandler) ApproveSubmission(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}
	actor, _ := utils.GetActorFromContext(c.Request.Context())
	if actor == "" {
		actor = "operator"
	}
	sub, err := models.ApproveSubmissionLive(h.db(), id, actor)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": sub})
}

func (h *ReportingHandler) SubmitLive(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}

	cfg, err := models.GetRuntimeConfig(h.db(), false)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !cfg.Enabled {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reporting_paused"})
		return
	}
	if cfg.DryRun {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dry_run_mode"})
		return
	}

	sub, err := models.GetSubmission(h.db(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if sub.DryRun {
		c.JSON(http.StatusConflict, gin.H{"error": "submission is flagged dry-run"})
		return
	}

	result, err := h.Worker.ProcessSubmission(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

type sweepRequest struct {
	OlderThanMinutes int  `json:"older_than_minutes" binding:"omitempty,min=1"`
	Limit            int  `json:"limit" binding:"omitempty,min=1,max=1000"`
	DryRun           bool `json:"dry_run"`
}

func (h *ReportingHandler) Sweep(c *gin.Context) {
	var req sweepRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := workflow.SweepStuckSubmissions(h.db(), workflow.SweepOptions{
		OlderThanMinutes: req.OlderThanMinutes,
		Limit:            req.Limit,
		DryRun:           req.DryRun,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *ReportingHandler) Pause(c *gin.Context) {
	h.setPaused(c, true)
}

func (h *ReportingHandler) Resume(c *gin.Context) {
	h.setPaused(c, false)
}

func (h *ReportingHandler) setPaused(c *gin.Context, paused bool) {
	actor, _ := utils.GetActorFromContext(c.Request.Context())
	if actor == "" {
		actor = "operator"
	}
	cfg, err := models.SetReportingPaused(h.db(), paused, actor)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

func (h *ReportingHandler) GetConfig(c *gin.Context) {
	cfg, err := models.GetRuntimeConfig(h.db(), c.Query("bypass_cache") == "true")
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

func (h *ReportingHandler) CreditHistory(c *gin.Context) {
	tenantId := c.Param("tenantId")
	months := credit.DefaultHistoryMonths
	if raw := c.Query("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 120 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "months must be an integer between 1 and 120"})
			return
		}
		months = n
	}

	periods, err := workflow.DeriveTenantHistory(h.db(), tenantId, months)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant_id": tenantId,
		"months":    months,
		"periods":   periods,
		"records":   credit.MapToBureauRecords(periods),
	})
}

// pushEnvelope is the Pub/Sub push subscription wrapper.
type pushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PubSubPush drives the worker from the reporting-jobs push subscription.
// Malformed messages are acked (dropped) to avoid infinite retries; transient
// processing failures return non-2xx so Pub/Sub redelivers.
func (h *ReportingHandler) PubSubPush(c *gin.Context) {
	logger := config.GetLogger()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		config.LogError(logger, "handlers", "PubSubPush", "io.ReadAll", nil, err)
		c.Status(http.StatusNoContent)
		return
	}

	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		config.LogError(logger, "handlers", "PubSubPush", "Unmarshal envelope", body, err)
		c.Status(http.StatusNoContent)
		return
	}

	var msg config.ReportingJobMessage
	if err := json.Unmarshal(envelope.Message.Data, &msg); err != nil {
		config.LogError(logger, "handlers", "PubSubPush", "Unmarshal job", envelope.Message.Data, err)
		c.Status(http.StatusNoContent)
		return
	}
	if msg.SubmissionId <= 0 {
		config.LogError(logger, "handlers", "PubSubPush", "invalid job (missing submission_id)", msg, errors.New("submission_id required"))
		c.Status(http.StatusNoContent)
		return
	}

	correlationId := msg.CorrelationId
	if correlationId == "" {
		correlationId = envelope.Message.ID
	}
	ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
	ctx = utils.SetActorInContext(ctx, "system")

	result, err := h.Worker.ProcessSubmission(ctx, msg.SubmissionId)
	if err != nil {
		// Gate refusals and config errors need operator action, not redelivery.
		if statusForError(err) != http.StatusInternalServerError {
			config.LogError(logger, "handlers", "PubSubPush", "processing refused; acking", msg, err)
			c.Status(http.StatusNoContent)
			return
		}
		config.LogError(logger, "handlers", "PubSubPush", "processing failed; nacking", msg, err)
		c.Status(http.StatusInternalServerError)
		return
	}

	// A paused system must not swallow the trigger: nack so Pub/Sub redelivers
	// and the job is processed once reporting is resumed.
	if result.Outcome == workflow.OutcomeSkippedDisabled {
		logger.WithFields(logrus.Fields{
			"module":        "handlers",
			"funcName":      "PubSubPush",
			"submission_id": msg.SubmissionId,
		}).Warn("reporting paused; nacking job for redelivery")
		c.Status(http.StatusServiceUnavailable)
		return
	}

	logger.WithField("outcome", result.Outcome).Debug("processed reporting job")
	c.Status(http.StatusNoContent)
}
