package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/quota"
)

// writeJSON marshals v and writes it with the given status. A marshal
// failure is reported as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// RunResponse is the JSON representation of a generation run.
type RunResponse struct {
	ID         int64  `json:"id"`
	Kind       string `json:"kind"`
	Source     string `json:"source"`
	Output     string `json:"output"`
	Quota      int    `json:"quota"`
	Cap        int    `json:"cap,omitempty"`
	Allocated  int    `json:"allocated"`
	Generated  int    `json:"generated"`
	Errors     int    `json:"errors"`
	Duplicates int    `json:"duplicates"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// RunDetailResponse adds the allocation ledger to a run.
type RunDetailResponse struct {
	RunResponse
	Allocations []AllocationResponse `json:"allocations"`
}

// AllocationResponse is one ledger row.
type AllocationResponse struct {
	Item      string  `json:"item"`
	Score     float64 `json:"score"`
	Allocated int     `json:"allocated"`
	Generated int     `json:"generated"`
}

// IssueResponse is the JSON representation of a stored issue.
type IssueResponse struct {
	Number                int      `json:"number"`
	Repository            string   `json:"repository"`
	Title                 string   `json:"title"`
	State                 string   `json:"state"`
	Kind                  string   `json:"kind"`
	Labels                []string `json:"labels"`
	Author                string   `json:"author"`
	URL                   string   `json:"url"`
	Comments              int      `json:"comments"`
	HasMaintainerResponse bool     `json:"has_maintainer_response"`
	Score                 float64  `json:"score"`
	CreatedAt             string   `json:"created_at"`
	UpdatedAt             string   `json:"updated_at"`
}

// AllocateRequest is the body of the allocation preview endpoint.
type AllocateRequest struct {
	Quota      int                `json:"quota"`
	Cap        int                `json:"cap"`
	MinimumOne *bool              `json:"minimum_one"`
	Items      []AllocateItemBody `json:"items"`
}

// AllocateItemBody is one scored item in an AllocateRequest.
type AllocateItemBody struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// AllocateResponse maps every requested item to its count.
type AllocateResponse struct {
	Counts  map[string]int `json:"counts"`
	Summary quota.Summary  `json:"summary"`
}

// options converts the request into allocator options. A cap of zero means
// uncapped and minimum_one defaults to true.
func (r AllocateRequest) options() quota.Options {
	opts := quota.Options{Quota: r.Quota, MinimumOne: true}
	if r.MinimumOne != nil {
		opts.MinimumOne = *r.MinimumOne
	}
	if r.Cap != 0 {
		opts.Cap = quota.CappedAt(r.Cap)
	}
	return opts
}

func (r AllocateRequest) items() []quota.Item[string] {
	items := make([]quota.Item[string], 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, quota.Item[string]{ID: it.ID, Score: it.Score})
	}
	return items
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toRunResponse(run model.Run) RunResponse {
	return RunResponse{
		ID:         run.ID,
		Kind:       string(run.Kind),
		Source:     run.Source,
		Output:     run.Output,
		Quota:      run.Quota,
		Cap:        run.Cap,
		Allocated:  run.Allocated,
		Generated:  run.Generated,
		Errors:     run.Errors,
		Duplicates: run.Duplicates,
		StartedAt:  formatTime(run.StartedAt),
		FinishedAt: formatTime(run.FinishedAt),
	}
}

func toAllocationResponse(e model.AllocationEntry) AllocationResponse {
	return AllocationResponse{
		Item:      e.ItemKey,
		Score:     e.Score,
		Allocated: e.Allocated,
		Generated: e.Generated,
	}
}

func toIssueResponse(issue model.Issue) IssueResponse {
	labels := issue.Labels
	if labels == nil {
		labels = []string{}
	}

	return IssueResponse{
		Number:                issue.Number,
		Repository:            issue.RepoFullName,
		Title:                 issue.Title,
		State:                 string(issue.State),
		Kind:                  string(issue.Kind),
		Labels:                labels,
		Author:                issue.Author,
		URL:                   issue.URL,
		Comments:              issue.CommentsCount,
		HasMaintainerResponse: issue.HasMaintainerResponse,
		Score:                 issue.Score,
		CreatedAt:             formatTime(issue.CreatedAt),
		UpdatedAt:             formatTime(issue.UpdatedAt),
	}
}
