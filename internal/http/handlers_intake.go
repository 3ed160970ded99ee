package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
	"github.com/target/intake-pipeline/internal/service"
)

const (
	msgSubscribed        = "Thanks for subscribing! Please check your inbox."
	msgAlreadySubscribed = "You're already subscribed."
	msgAssessmentQueued  = "Thanks! Your assessment has been received and your report is on its way."
	msgSubmitFailed      = "We couldn't process your submission. Please try again."
)

// IntakeHandlers serves the public newsletter and assessment forms.
type IntakeHandlers struct {
	Svc    *service.IntakeService
	Logger *slog.Logger
}

// SubmitNewsletter handles POST /api/newsletter.
func (h *IntakeHandlers) SubmitNewsletter(w http.ResponseWriter, r *http.Request) {
	var req model.NewsletterRequest
	if err := decodeBody(r, &req); err != nil {
		writeFormError(w, decodeStatus(err), "Invalid request body.", "")
		return
	}

	res, err := h.Svc.SubmitNewsletter(r.Context(), req, clientMeta(r))
	if err != nil {
		h.writeSubmitError(w, r, err)
		return
	}

	if res.Outcome == model.OutcomeAlreadyConfirmed {
		WriteJSON(w, http.StatusConflict, formResponse{
			Success:           true,
			Message:           msgAlreadySubscribed,
			AlreadySubscribed: true,
		})
		return
	}
	WriteJSON(w, http.StatusOK, formResponse{Success: true, Message: msgSubscribed})
}

// SubmitAssessment handles POST /api/assessments.
func (h *IntakeHandlers) SubmitAssessment(w http.ResponseWriter, r *http.Request) {
	var req model.AssessmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeFormError(w, decodeStatus(err), "Invalid request body.", "")
		return
	}

	res, err := h.Svc.SubmitAssessment(r.Context(), req, clientMeta(r))
	if err != nil {
		h.writeSubmitError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, formResponse{
		Success:      true,
		AssessmentID: res.AssessmentID,
		Message:      msgAssessmentQueued,
	})
}

func (h *IntakeHandlers) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	switch {
	case apperrors.IsValidation(err) && errors.As(err, &appErr):
		writeFormError(w, http.StatusBadRequest, appErr.Message, appErr.Field)
	case apperrors.IsRateLimited(err):
		wait := apperrors.GetRetryAfter(err)
		if wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
		writeFormError(w, http.StatusTooManyRequests, rateLimitMessage(wait), "")
	default:
		h.logger().ErrorContext(r.Context(), "form submission failed",
			"path", r.URL.Path,
			"error", err,
		)
		writeFormError(w, http.StatusInternalServerError, msgSubmitFailed, "")
	}
}

func rateLimitMessage(wait time.Duration) string {
	const base = "You've already submitted an assessment recently."
	hours := int(math.Ceil(wait.Hours()))
	switch {
	case wait <= 0:
		return base + " Please try again later."
	case hours <= 1:
		return base + " Please try again in about an hour."
	default:
		return fmt.Sprintf("%s Please try again in about %d hours.", base, hours)
	}
}

func (h *IntakeHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
