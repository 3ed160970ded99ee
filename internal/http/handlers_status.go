package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/target/intake-pipeline/internal/domain/model"
	"github.com/target/intake-pipeline/internal/service"
)

const msgProcessingFailed = "We couldn't complete processing. Please contact support if this persists."

// StatusHandlers serve public status polling.
type StatusHandlers struct {
	Svc    *service.StatusService
	Logger *slog.Logger
}

type statusResponse struct {
	Success bool `json:"success"`
	Found   bool `json:"found"`
	*model.StatusView
}

type statusGetter func(ctx context.Context, q model.StatusQuery) (*model.StatusView, bool, error)

// AssessmentStatus handles GET /api/assessments/status.
func (h *StatusHandlers) AssessmentStatus(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.Svc.GetAssessmentStatus)
}

// NewsletterStatus handles GET /api/newsletter/status.
func (h *StatusHandlers) NewsletterStatus(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.Svc.GetNewsletterStatus)
}

func (h *StatusHandlers) serve(w http.ResponseWriter, r *http.Request, get statusGetter) {
	q := model.StatusQuery{
		ID:    r.URL.Query().Get("id"),
		Email: r.URL.Query().Get("email"),
	}
	if q.Empty() {
		writeFormError(w, http.StatusBadRequest, "Either id or email is required.", "")
		return
	}

	view, found, err := get(r.Context(), q)
	if err != nil {
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "status lookup failed", "path", r.URL.Path, "error", err)
		writeFormError(w, http.StatusInternalServerError, "Status is temporarily unavailable.", "")
		return
	}
	if !found {
		WriteJSON(w, http.StatusNotFound, statusResponse{Success: false, Found: false})
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, statusResponse{Success: true, Found: true, StatusView: publicView(view)})
}

// publicView hides operator error detail from public callers.
func publicView(v *model.StatusView) *model.StatusView {
	out := *v
	if out.Error != nil {
		msg := msgProcessingFailed
		out.Error = &msg
	}
	return &out
}
