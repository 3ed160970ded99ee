package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/target/intake-pipeline/internal/core"
	"github.com/target/intake-pipeline/internal/domain/intake"
	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

// StatusServiceOptions groups dependencies for StatusService.
type StatusServiceOptions struct {
	Subscriptions core.SubscriptionRepository // Required
	Assessments   core.AssessmentRepository   // Required
	Cache         core.CacheRepository        // Optional: terminal views are cached when set
	CacheTTL      time.Duration               // Optional: defaults to 10m
	Logger        *slog.Logger                // Optional
}

// StatusService answers polling requests for submissions.
type StatusService struct {
	subscriptions core.SubscriptionRepository
	assessments   core.AssessmentRepository
	cache         core.CacheRepository
	ttl           time.Duration
	group         singleflight.Group
	logger        *slog.Logger
}

// NewStatusService constructs a StatusService.
func NewStatusService(opts StatusServiceOptions) (*StatusService, error) {
	if opts.Subscriptions == nil {
		return nil, errors.New("SubscriptionRepository is required")
	}
	if opts.Assessments == nil {
		return nil, errors.New("AssessmentRepository is required")
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusService{
		subscriptions: opts.Subscriptions,
		assessments:   opts.Assessments,
		cache:         opts.Cache,
		ttl:           opts.CacheTTL,
		logger:        logger.With("component", "status_service"),
	}, nil
}

type statusLookup struct {
	view  *model.StatusView
	found bool
}

// GetAssessmentStatus looks up an assessment by id, or else the newest one for an email.
// A miss returns found=false and no error.
func (s *StatusService) GetAssessmentStatus(
	ctx context.Context,
	q model.StatusQuery,
) (*model.StatusView, bool, error) {
	return s.lookup(ctx, model.SubmissionKindAssessment, q,
		func(ctx context.Context, id string) (*model.StatusView, error) {
			sub, err := s.assessments.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return model.AssessmentStatusView(sub), nil
		},
		func(ctx context.Context, email string) (*model.StatusView, error) {
			sub, err := s.assessments.GetLatestByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			return model.AssessmentStatusView(sub), nil
		},
	)
}

// GetNewsletterStatus looks up a subscription by id or email.
func (s *StatusService) GetNewsletterStatus(
	ctx context.Context,
	q model.StatusQuery,
) (*model.StatusView, bool, error) {
	return s.lookup(ctx, model.SubmissionKindNewsletter, q,
		func(ctx context.Context, id string) (*model.StatusView, error) {
			sub, err := s.subscriptions.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return model.SubscriptionStatusView(sub), nil
		},
		func(ctx context.Context, email string) (*model.StatusView, error) {
			sub, err := s.subscriptions.GetByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			return model.SubscriptionStatusView(sub), nil
		},
	)
}

type viewLoader func(ctx context.Context, key string) (*model.StatusView, error)

func (s *StatusService) lookup(
	ctx context.Context,
	kind model.SubmissionKind,
	q model.StatusQuery,
	byID, byEmail viewLoader,
) (*model.StatusView, bool, error) {
	if q.Empty() {
		return nil, false, apperrors.Validation("id or email is required")
	}

	id := strings.TrimSpace(q.ID)
	if id != "" {
		if view := s.cached(ctx, kind, id); view != nil {
			return view, true, nil
		}
		res, err := s.load(ctx, string(kind)+":id:"+id, id, byID)
		if err != nil || !res.found {
			return nil, false, err
		}
		if cacheable(kind, res.view) {
			s.store(ctx, kind, res.view)
		}
		return res.view, true, nil
	}

	email := intake.NormalizeEmail(q.Email)
	res, err := s.load(ctx, string(kind)+":email:"+email, email, byEmail)
	if err != nil || !res.found {
		return nil, false, err
	}
	return res.view, true, nil
}

// load coalesces concurrent identical lookups. Not-found is folded into found=false.
func (s *StatusService) load(ctx context.Context, flightKey, key string, fn viewLoader) (statusLookup, error) {
	v, err, _ := s.group.Do(flightKey, func() (any, error) {
		view, err := fn(ctx, key)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return statusLookup{}, nil
			}
			return nil, err
		}
		return statusLookup{view: view, found: view != nil}, nil
	})
	if err != nil {
		return statusLookup{}, fmt.Errorf("status lookup: %w", err)
	}
	res, _ := v.(statusLookup)
	return res, nil
}

// cacheable reports whether a view can no longer change without an operator
// retry. A FAILED subscription is excluded since a resubmission resets it.
func cacheable(kind model.SubmissionKind, view *model.StatusView) bool {
	if kind == model.SubmissionKindNewsletter {
		return view.Status == string(model.SubscriptionConfirmed)
	}
	return view.Terminal()
}

func statusCacheKey(kind model.SubmissionKind, id string) string {
	return "status:" + string(kind) + ":" + id
}

func (s *StatusService) cached(ctx context.Context, kind model.SubmissionKind, id string) *model.StatusView {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, statusCacheKey(kind, id))
	if err != nil {
		s.logger.DebugContext(ctx, "status cache read failed", "kind", kind, "id", id, "error", err)
		return nil
	}
	if raw == nil {
		return nil
	}
	var view model.StatusView
	if err := json.Unmarshal(raw, &view); err != nil {
		s.logger.DebugContext(ctx, "status cache entry unreadable", "kind", kind, "id", id, "error", err)
		return nil
	}
	return &view
}

func (s *StatusService) store(ctx context.Context, kind model.SubmissionKind, view *model.StatusView) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, statusCacheKey(kind, view.ID), raw, s.ttl); err != nil {
		s.logger.DebugContext(ctx, "status cache write failed", "kind", kind, "id", view.ID, "error", err)
	}
}

// Invalidate drops a cached view, used when an operator retries a terminal record.
func (s *StatusService) Invalidate(ctx context.Context, kind model.SubmissionKind, id string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Delete(ctx, statusCacheKey(kind, id)); err != nil {
		s.logger.DebugContext(ctx, "status cache delete failed", "kind", kind, "id", id, "error", err)
	}
}
