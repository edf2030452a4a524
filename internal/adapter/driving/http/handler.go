// Package httphandler serves a read-only JSON view of generation runs, their
// allocation ledgers and mined issues, plus an allocation preview endpoint.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
	"github.com/ericfisherdev/qamint/internal/domain/quota"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500

	// maxAllocateBody bounds the allocation preview request body.
	maxAllocateBody = 1 << 20
)

// Handler is the HTTP driving adapter.
type Handler struct {
	runs   driven.RunStore
	issues driven.IssueStore
	logger *slog.Logger
}

// NewHandler creates a Handler over the run and issue stores.
func NewHandler(runs driven.RunStore, issues driven.IssueStore, logger *slog.Logger) *Handler {
	return &Handler{runs: runs, issues: issues, logger: logger}
}

// NewServeMux registers every route and wraps the mux with logging and
// recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.GetRun)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/issues", h.ListIssues)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/issues/{number}", h.GetIssue)
	mux.HandleFunc("POST /api/v1/allocate", h.Allocate)

	// Recovery sits inside the access log so a panic is logged as a 500.
	return accessLog(logger, recoverPanics(logger, mux))
}

// Health returns a liveness response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListRuns returns the most recent runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	runs, err := h.runs.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRun returns one run together with its allocation ledger.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get run", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	entries, err := h.runs.ListAllocations(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list allocations", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := RunDetailResponse{
		RunResponse: toRunResponse(*run),
		Allocations: make([]AllocationResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Allocations = append(resp.Allocations, toAllocationResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListIssues returns a repository's stored issues, highest score first.
func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	repo, ok := repoFromPath(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	issues, err := h.issues.ListByScore(r.Context(), repo, limit)
	if err != nil {
		h.logger.Error("failed to list issues", "repo", repo, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]IssueResponse, 0, len(issues))
	for _, issue := range issues {
		resp = append(resp, toIssueResponse(issue))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetIssue returns a single stored issue.
func (h *Handler) GetIssue(w http.ResponseWriter, r *http.Request) {
	repo, ok := repoFromPath(w, r)
	if !ok {
		return
	}
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || number <= 0 {
		writeError(w, http.StatusBadRequest, "invalid issue number")
		return
	}

	issue, err := h.issues.GetByNumber(r.Context(), repo, number)
	if err != nil {
		h.logger.Error("failed to get issue", "repo", repo, "number", number, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if issue == nil {
		writeError(w, http.StatusNotFound, "issue not found")
		return
	}

	writeJSON(w, http.StatusOK, toIssueResponse(*issue))
}

// Allocate runs the quota allocator over the posted items without touching
// any store.
func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAllocateBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := quota.Allocate(req.items(), req.options())
	if err != nil {
		if isInputError(err) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("allocation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, AllocateResponse{Counts: res.Counts, Summary: res.Summary})
}

func isInputError(err error) bool {
	return errors.Is(err, quota.ErrInvalidQuota) ||
		errors.Is(err, quota.ErrInvalidCap) ||
		errors.Is(err, quota.ErrDuplicateIdentifier) ||
		errors.Is(err, quota.ErrInvalidScore)
}

// parseLimit reads the optional limit query parameter. It writes a 400 and
// returns false when the value is malformed.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return min(limit, maxListLimit), true
}

func repoFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.PathValue("owner") + "/" + r.PathValue("repo")
	if !isValidRepoName(name) {
		writeError(w, http.StatusBadRequest, "invalid repository name: expected owner/repo format")
		return "", false
	}
	return name, true
}

// isValidRepoName reports whether name is owner/repo where each part holds
// only letters, digits, hyphens, dots or underscores.
func isValidRepoName(name string) bool {
	parts := strings.SplitN(name, "/", 3)
	if len(parts) != 2 {
		return false
	}

	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, ch := range part {
			if !isValidRepoChar(ch) {
				return false
			}
		}
	}
	return true
}

func isValidRepoChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '.' || ch == '_'
}
