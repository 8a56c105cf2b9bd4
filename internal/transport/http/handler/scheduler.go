package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jobrepeat/scheduler/internal/scheduler"
	"github.com/jobrepeat/scheduler/internal/strategy"
)

// SchedulerHandler exposes the admin HTTP surface named in SPEC_FULL.md
// §4.4: upsert/list/get/delete/count over the scheduler core. It has no
// per-caller identity — the bearer middleware is the only access control
// (no multi-tenant isolation per spec.md Non-goals).
type SchedulerHandler struct {
	core   *scheduler.Core
	logger *slog.Logger
}

func NewSchedulerHandler(core *scheduler.Core, logger *slog.Logger) *SchedulerHandler {
	return &SchedulerHandler{core: core, logger: logger.With("component", "scheduler_handler")}
}

type repeatOptionsRequest struct {
	Every       int64  `json:"every"`
	Offset      *int64 `json:"offset"`
	Pattern     string `json:"pattern"`
	TZ          string `json:"tz"`
	Immediately bool   `json:"immediately"`
	StartDate   *int64 `json:"startDate"`
	EndDate     *int64 `json:"endDate"`
	Limit       *int   `json:"limit" binding:"omitempty,min=1"`
	Count       int    `json:"count" binding:"omitempty,min=0"`
}

func (r repeatOptionsRequest) toOptions() strategy.RepeatOptions {
	return strategy.RepeatOptions{
		Every:       r.Every,
		Offset:      r.Offset,
		Pattern:     r.Pattern,
		TZ:          r.TZ,
		Immediately: r.Immediately,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Limit:       r.Limit,
		Count:       r.Count,
	}
}

type upsertRequest struct {
	Repeat   repeatOptionsRequest `json:"repeat" binding:"required"`
	JobName  string               `json:"jobName" binding:"required,max=256"`
	JobData  string               `json:"jobData"`
	Opts     string               `json:"opts"`
	Override bool                 `json:"override"`
}

type jobResponse struct {
	ID         string `json:"id"`
	NextFireMs int64  `json:"nextFireMs"`
	Delay      int64  `json:"delay"`
	Timestamp  int64  `json:"timestamp"`
	Offset     *int64 `json:"offset,omitempty"`
}

func toJobResponse(j *scheduler.Job) jobResponse {
	return jobResponse{
		ID:         j.ID,
		NextFireMs: j.NextFireMs,
		Delay:      j.Delay,
		Timestamp:  j.Timestamp,
		Offset:     j.Offset,
	}
}

// Upsert implements POST /schedulers/:id.
func (h *SchedulerHandler) Upsert(ctx *gin.Context) {
	id := ctx.Param("id")

	var req upsertRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	job, err := h.core.Upsert(ctx.Request.Context(), scheduler.UpsertParams{
		ID:      id,
		Repeat:  req.Repeat.toOptions(),
		JobName: req.JobName,
		JobData: req.JobData,
		Template: scheduler.TemplateOptions{
			Opts: req.Opts,
		},
		Override: req.Override,
	})
	if err != nil {
		var txErr *scheduler.TransactionError
		switch {
		case errors.Is(err, scheduler.ErrValidation):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &txErr):
			h.logger.Error("upsert scheduler", "scheduler_id", id, "error", err)
			ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("upsert scheduler", "scheduler_id", id, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	if job == nil {
		ctx.Status(http.StatusNoContent)
		return
	}

	ctx.JSON(http.StatusOK, toJobResponse(job))
}

type schedulerResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	EndDate string `json:"endDate,omitempty"`
	TZ      string `json:"tz,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Every   string `json:"every,omitempty"`
	Data    string `json:"data,omitempty"`
	Opts    string `json:"opts,omitempty"`
	Next    int64  `json:"next"`
}

func toSchedulerResponse(s scheduler.SchedulerJSON) schedulerResponse {
	return schedulerResponse{
		ID:      s.ID,
		Name:    s.Name,
		EndDate: s.EndDate,
		TZ:      s.TZ,
		Pattern: s.Pattern,
		Every:   s.Every,
		Data:    s.Data,
		Opts:    s.Opts,
		Next:    s.Next,
	}
}

// Get implements GET /schedulers/:id.
func (h *SchedulerHandler) Get(ctx *gin.Context) {
	id := ctx.Param("id")

	desc, err := h.core.Get(ctx.Request.Context(), id)
	if err != nil {
		h.logger.Error("get scheduler", "scheduler_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if desc.ID == "" && desc.Name == "" {
		ctx.JSON(http.StatusNotFound, gin.H{"error": errSchedulerNotFound})
		return
	}

	ctx.JSON(http.StatusOK, toSchedulerResponse(desc))
}

// List implements GET /schedulers. It supports the namePattern
// post-filter described in SPEC_FULL.md §4.1 alongside the index range
// and ordering query params.
func (h *SchedulerHandler) List(ctx *gin.Context) {
	start := parseInt64(ctx.Query("start"), 0)
	end := parseInt64(ctx.Query("end"), -1)
	ascending := ctx.Query("ascending") != "false"
	namePattern := ctx.Query("namePattern")

	descs, err := h.core.List(ctx.Request.Context(), start, end, ascending)
	if err != nil {
		h.logger.Error("list schedulers", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	items := make([]schedulerResponse, 0, len(descs))
	for _, d := range descs {
		if namePattern != "" && d.Name != namePattern {
			continue
		}
		items = append(items, toSchedulerResponse(d))
	}

	ctx.JSON(http.StatusOK, gin.H{"schedulers": items})
}

// Delete implements DELETE /schedulers/:id, the removeBySchedulerId
// convenience wrapper named in SPEC_FULL.md §4.3.
func (h *SchedulerHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	removed, err := h.core.Remove(ctx.Request.Context(), id)
	if err != nil {
		h.logger.Error("remove scheduler", "scheduler_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if !removed {
		ctx.JSON(http.StatusNotFound, gin.H{"error": errSchedulerNotFound})
		return
	}

	ctx.Status(http.StatusNoContent)
}

// Count implements GET /schedulers/count.
func (h *SchedulerHandler) Count(ctx *gin.Context) {
	n, err := h.core.Count(ctx.Request.Context())
	if err != nil {
		h.logger.Error("count schedulers", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"count": n})
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}
