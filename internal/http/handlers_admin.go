package httpx

import (
	"errors"
	"net/http"

	"github.com/target/intake-pipeline/internal/domain/model"
	"github.com/target/intake-pipeline/internal/service"
)

const defaultDeadLimit = 50

// AdminHandlers expose operator endpoints. They are mounted behind RequireBearerToken.
type AdminHandlers struct {
	Svc *service.AdminService
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items)}
}

// NewsletterStats handles GET /api/admin/newsletter/stats.
func (h *AdminHandlers) NewsletterStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.NewsletterStats(r.Context())
	if err != nil {
		writeServiceError(w, err, "stats_failed")
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// AssessmentStats handles GET /api/admin/assessments/stats.
func (h *AdminHandlers) AssessmentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.AssessmentStats(r.Context())
	if err != nil {
		writeServiceError(w, err, "stats_failed")
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// RecentSubscriptions handles GET /api/admin/newsletter/recent.
func (h *AdminHandlers) RecentSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.Svc.RecentSubscriptions(r.Context(), recentOptions(r))
	if err != nil {
		writeServiceError(w, err, "list_failed")
		return
	}
	WriteJSON(w, http.StatusOK, newList(subs))
}

// RecentAssessments handles GET /api/admin/assessments/recent.
func (h *AdminHandlers) RecentAssessments(w http.ResponseWriter, r *http.Request) {
	subs, err := h.Svc.RecentAssessments(r.Context(), recentOptions(r))
	if err != nil {
		writeServiceError(w, err, "list_failed")
		return
	}
	WriteJSON(w, http.StatusOK, newList(subs))
}

// GetSubscription handles GET /api/admin/newsletter/{id}.
func (h *AdminHandlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("id is required")})
		return
	}
	sub, err := h.Svc.GetSubscription(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "get_failed")
		return
	}
	WriteJSON(w, http.StatusOK, sub)
}

// GetAssessment handles GET /api/admin/assessments/{id}.
func (h *AdminHandlers) GetAssessment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("id is required")})
		return
	}
	sub, err := h.Svc.GetAssessment(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "get_failed")
		return
	}
	WriteJSON(w, http.StatusOK, sub)
}

// JobStats handles GET /api/admin/jobs/stats?kind=.
func (h *AdminHandlers) JobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.JobStats(r.Context(), model.JobKind(r.URL.Query().Get("kind")))
	if err != nil {
		writeServiceError(w, err, "stats_failed")
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// DeadJobs handles GET /api/admin/jobs/dead?kind=&limit=.
func (h *AdminHandlers) DeadJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Svc.DeadJobs(r.Context(), model.ListDeadJobsOptions{
		Kind:  model.JobKind(r.URL.Query().Get("kind")),
		Limit: parseIntQuery(r, "limit", defaultDeadLimit),
	})
	if err != nil {
		writeServiceError(w, err, "list_failed")
		return
	}
	WriteJSON(w, http.StatusOK, newList(jobs))
}

// RetryJob handles POST /api/admin/jobs/{id}/retry.
func (h *AdminHandlers) RetryJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}
	job, err := h.Svc.RetryJob(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "retry_failed")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

func recentOptions(r *http.Request) model.ListRecentOptions {
	return model.ListRecentOptions{
		Limit:  parseIntQuery(r, "limit", model.DefaultRecentLimit),
		Status: r.URL.Query().Get("status"),
	}.Normalize()
}
