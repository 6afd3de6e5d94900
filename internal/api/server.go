package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"job-compass/internal/analytics"
	"job-compass/internal/collab"
	"job-compass/internal/deadline"
	"job-compass/internal/export"
	"job-compass/internal/gap"
	"job-compass/internal/importer"
	"job-compass/internal/matching"
	"job-compass/internal/model"
	"job-compass/internal/pipeline"
	"job-compass/internal/storage"
)

// Store 抽象存储接口。
type Store interface {
	CreateJob(ctx context.Context, job *model.JobApplication) error
	GetJob(ctx context.Context, id string) (*model.JobApplication, error)
	ListJobs(ctx context.Context, q storage.JobQuery) ([]model.JobApplication, error)
	CountJobs(ctx context.Context, q storage.JobQuery) (int64, error)
	ArchiveJobs(ctx context.Context, ids []string, reason string) (int64, error)
	RestoreJob(ctx context.Context, id string) error
	DeleteJob(ctx context.Context, id string) error
	CreateProfile(ctx context.Context, profile *model.CandidateProfile) error
	GetProfile(ctx context.Context, id string) (*model.CandidateProfile, error)
	Snapshot(ctx context.Context) (storage.Snapshot, error)
}

// Pipeline 抽象阶段流转接口。
type Pipeline interface {
	Move(ctx context.Context, jobID string, targetStage string, at time.Time) (*model.StageTransition, error)
	Update(ctx context.Context, jobID string, patch pipeline.Patch) (*model.JobApplication, error)
	Timeline(ctx context.Context, jobID string) ([]model.StageTransition, error)
}

// Matcher 抽象匹配计算接口。
type Matcher interface {
	Match(job model.JobApplication, profile model.CandidateProfile, weights matching.Weights) (matching.Result, error)
}

// GapAnalyzer 抽象差距分析接口。
type GapAnalyzer interface {
	Analyze(ctx context.Context, job model.JobApplication, profile model.CandidateProfile) gap.Report
}

// Importer 抽象 URL 导入接口。
type Importer interface {
	FromURL(ctx context.Context, rawURL string) (importer.Result, error)
}

// Scheduler 抽象手动巡检接口。
type Scheduler interface {
	RunOnce(ctx context.Context) (int, error)
}

// Deps 汇总处理器依赖，nil 字段对应的端点返回 503。
type Deps struct {
	Store     Store
	Pipeline  Pipeline
	Matcher   Matcher
	Gap       GapAnalyzer
	Importer  Importer
	Scheduler Scheduler
	AI        collab.AIContentGenerator
	Research  collab.CompanyResearchService
	Calendar  collab.CalendarService
	Collab    collab.Options
	Goals     analytics.Goals
	Now       func() time.Time
}

type handler struct {
	deps Deps
}

// NewHandler 构造 HTTP 多路复用器。
func NewHandler(deps Deps) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &handler{deps: deps}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/jobs", h.handleJobs)
	mux.HandleFunc("/api/jobs.csv", h.handleJobsCSV)
	mux.HandleFunc("/api/jobs/", h.handleJob)
	mux.HandleFunc("/api/profiles", h.handleProfiles)
	mux.HandleFunc("/api/profiles/", h.handleProfile)
	mux.HandleFunc("/api/deadlines", h.handleDeadlines)
	mux.HandleFunc("/api/funnel", h.handleFunnel)
	mux.HandleFunc("/api/import", h.handleImport)
	mux.HandleFunc("/api/refresh", h.handleRefresh)

	return mux
}

func (h *handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listJobs(w, r)
	case http.MethodPost:
		h.createJob(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	query, err := parseJobQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	limit := query.Limit
	query.Limit = limit + 1

	jobs, err := h.deps.Store.ListJobs(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}

	countQuery := query
	countQuery.Limit = 0
	countQuery.Offset = 0
	total, err := h.deps.Store.CountJobs(r.Context(), countQuery)
	if err != nil {
		writeError(w, err)
		return
	}

	hasMore := false
	if len(jobs) > limit {
		hasMore = true
		jobs = jobs[:limit]
	}

	w.Header().Set("X-Limit", strconv.Itoa(limit))
	w.Header().Set("X-Has-More", strconv.FormatBool(hasMore))
	w.Header().Set("X-Total", strconv.FormatInt(total, 10))
	writeJSON(w, http.StatusOK, jobs)
}

func (h *handler) createJob(w http.ResponseWriter, r *http.Request) {
	var job model.JobApplication
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := h.deps.Store.CreateJob(r.Context(), &job); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *handler) handleJobsCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snap, err := h.deps.Store.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="jobs.csv"`)
	if err := export.WriteJobsCSV(w, snap.Jobs); err != nil {
		writeError(w, err)
	}
}

// handleJob 分派 /api/jobs/{id} 与 /api/jobs/{id}/{action}。
func (h *handler) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.getJob(w, r, id)
		case http.MethodPatch:
			h.updateJob(w, r, id)
		case http.MethodDelete:
			h.deleteJob(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "move":
		h.requirePost(w, r, func() { h.moveJob(w, r, id) })
	case "timeline":
		h.timeline(w, r, id)
	case "archive":
		h.requirePost(w, r, func() { h.archiveJob(w, r, id) })
	case "restore":
		h.requirePost(w, r, func() { h.restoreJob(w, r, id) })
	case "match":
		h.requirePost(w, r, func() { h.matchJob(w, r, id) })
	case "gaps":
		h.gapReport(w, r, id)
	case "bullets":
		h.requirePost(w, r, func() { h.generateBullets(w, r, id) })
	case "coverletter":
		h.requirePost(w, r, func() { h.generateCoverLetter(w, r, id) })
	case "suggest":
		h.requirePost(w, r, func() { h.suggestSkills(w, r, id) })
	case "research":
		h.researchCompany(w, r, id)
	case "schedule":
		h.requirePost(w, r, func() { h.scheduleInterview(w, r, id) })
	default:
		http.NotFound(w, r)
	}
}

func (h *handler) requirePost(w http.ResponseWriter, r *http.Request, fn func()) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	fn()
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.deps.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handler) updateJob(w http.ResponseWriter, r *http.Request, id string) {
	var patch pipeline.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	job, err := h.deps.Pipeline.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handler) deleteJob(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.deps.Store.DeleteJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type moveRequest struct {
	Stage string `json:"stage"`
	At    string `json:"at"`
}

func (h *handler) moveJob(w http.ResponseWriter, r *http.Request, id string) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	at := h.deps.Now()
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid timestamp"})
			return
		}
		at = parsed
	}

	transition, err := h.deps.Pipeline.Move(r.Context(), id, req.Stage, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transition)
}

func (h *handler) timeline(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	transitions, err := h.deps.Pipeline.Timeline(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transitions)
}

type archiveRequest struct {
	Reason string `json:"reason"`
}

func (h *handler) archiveJob(w http.ResponseWriter, r *http.Request, id string) {
	var req archiveRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	count, err := h.deps.Store.ArchiveJobs(r.Context(), []string{id}, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	if count == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (h *handler) restoreJob(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.deps.Store.RestoreJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

type matchRequest struct {
	ProfileID string           `json:"profile_id"`
	Weights   matching.Weights `json:"weights"`
}

func (h *handler) matchJob(w http.ResponseWriter, r *http.Request, id string) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	job, err := h.deps.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	profile, err := h.deps.Store.GetProfile(r.Context(), req.ProfileID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.deps.Matcher.Match(*job, *profile, req.Weights)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) gapReport(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	profileID := r.URL.Query().Get("profile_id")
	if profileID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "profile_id required"})
		return
	}

	job, err := h.deps.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	profile, err := h.deps.Store.GetProfile(r.Context(), profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.deps.Gap.Analyze(r.Context(), *job, *profile))
}

type aiRequest struct {
	ProfileID string `json:"profile_id"`
	Tone      string `json:"tone"`
}

// loadPair 读取职位与候选人档案，AI 相关端点共用。
func (h *handler) loadPair(w http.ResponseWriter, r *http.Request, jobID string) (*model.JobApplication, *model.CandidateProfile, aiRequest, bool) {
	if h.deps.AI == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ai generation disabled"})
		return nil, nil, aiRequest{}, false
	}

	var req aiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return nil, nil, aiRequest{}, false
	}

	job, err := h.deps.Store.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return nil, nil, aiRequest{}, false
	}
	profile, err := h.deps.Store.GetProfile(r.Context(), req.ProfileID)
	if err != nil {
		writeError(w, err)
		return nil, nil, aiRequest{}, false
	}
	return job, profile, req, true
}

func (h *handler) generateBullets(w http.ResponseWriter, r *http.Request, id string) {
	job, profile, _, ok := h.loadPair(w, r, id)
	if !ok {
		return
	}
	bullets, err := collab.Do(r.Context(), nil, "ai-bullets", h.deps.Collab,
		func(ctx context.Context) ([]string, error) {
			return h.deps.AI.GenerateBullets(ctx, *job, *profile)
		})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"bullets": bullets})
}

func (h *handler) generateCoverLetter(w http.ResponseWriter, r *http.Request, id string) {
	job, profile, req, ok := h.loadPair(w, r, id)
	if !ok {
		return
	}
	letter, err := collab.Do(r.Context(), nil, "ai-cover-letter", h.deps.Collab,
		func(ctx context.Context) (collab.CoverLetter, error) {
			return h.deps.AI.GenerateCoverLetter(ctx, *job, *profile, req.Tone)
		})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, letter)
}

func (h *handler) suggestSkills(w http.ResponseWriter, r *http.Request, id string) {
	job, profile, _, ok := h.loadPair(w, r, id)
	if !ok {
		return
	}
	suggestion, err := collab.Do(r.Context(), nil, "ai-skill-suggestion", h.deps.Collab,
		func(ctx context.Context) (collab.SkillSuggestion, error) {
			return h.deps.AI.SuggestSkills(ctx, *job, *profile)
		})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

func (h *handler) researchCompany(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Research == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "company research disabled"})
		return
	}

	job, err := h.deps.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := collab.Do(r.Context(), nil, "company-research", h.deps.Collab,
		func(ctx context.Context) (collab.CompanyReport, error) {
			return h.deps.Research.Research(ctx, job.Company)
		})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type scheduleRequest struct {
	When string `json:"when"`
	Kind string `json:"kind"`
}

func (h *handler) scheduleInterview(w http.ResponseWriter, r *http.Request, id string) {
	if h.deps.Calendar == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "calendar disabled"})
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	when, err := time.Parse(time.RFC3339, req.When)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid timestamp"})
		return
	}

	if _, err := h.deps.Store.GetJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	conflicts, err := collab.Do(r.Context(), nil, "calendar-conflicts", h.deps.Collab,
		func(ctx context.Context) ([]collab.Conflict, error) {
			return h.deps.Calendar.CheckConflicts(ctx, when)
		})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(conflicts) > 0 {
		writeJSON(w, http.StatusConflict, map[string]any{"conflicts": conflicts})
		return
	}

	event, err := collab.Do(r.Context(), nil, "calendar-schedule", h.deps.Collab,
		func(ctx context.Context) (collab.Event, error) {
			return h.deps.Calendar.Schedule(ctx, id, when, req.Kind)
		})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *handler) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var profile model.CandidateProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := h.deps.Store.CreateProfile(r.Context(), &profile); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (h *handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/profiles/")
	profile, err := h.deps.Store.GetProfile(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *handler) handleDeadlines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snap, err := h.deps.Store.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deadline.Compute(h.deps.Now(), snap.Jobs))
}

func (h *handler) handleFunnel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snap, err := h.deps.Store.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	report := analytics.ComputeFunnel(h.deps.Now(), snap.Jobs, h.deps.Goals)

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="funnel.csv"`)
		if err := export.WriteFunnelCSV(w, report); err != nil {
			writeError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type importRequest struct {
	URL string `json:"url"`
}

func (h *handler) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Importer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "import disabled"})
		return
	}

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	result, err := h.deps.Importer.FromURL(r.Context(), req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Status == importer.StatusSuccess && result.Job != nil {
		if err := h.deps.Store.CreateJob(r.Context(), result.Job); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "scheduler disabled"})
		return
	}
	reminders, err := h.deps.Scheduler.RunOnce(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reminders": reminders})
}

func parseJobQuery(r *http.Request) (storage.JobQuery, error) {
	q := r.URL.Query()
	query := storage.JobQuery{
		Keyword:  q.Get("q"),
		Location: q.Get("location"),
		SortBy:   q.Get("sort"),
		Limit:    20,
	}

	if stageStr := q.Get("stage"); stageStr != "" {
		stage, ok := model.ParseStage(stageStr)
		if !ok {
			return storage.JobQuery{}, fmt.Errorf("%w: %s", model.ErrUnknownStage, stageStr)
		}
		query.Stage = stage
	}

	// 默认只列出活跃职位；archived=all 不过滤。
	switch q.Get("archived") {
	case "all":
	case "true":
		yes := true
		query.Archived = &yes
	default:
		no := false
		query.Archived = &no
	}

	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			if v > 100 {
				v = 100
			}
			query.Limit = v
		}
	}
	if p := q.Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			query.Offset = (v - 1) * query.Limit
		}
	}

	return query, nil
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrUnknownStage):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNonMonotonicTime):
		status = http.StatusConflict
	case errors.Is(err, model.ErrDegraded):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
