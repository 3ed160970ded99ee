// Package job holds queue policies shared by the job service and workers.
package job

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

var (
	// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
	ErrInvalidDefaultLease = errors.New("default lease must be positive")
	// ErrInvalidBackoff indicates the backoff base or cap is not positive.
	ErrInvalidBackoff = errors.New("backoff base and cap must be positive")
)

// LeaseSource identifies how a lease duration was resolved.
type LeaseSource string

const (
	// LeaseSourceExplicit indicates the caller supplied a positive duration.
	LeaseSourceExplicit LeaseSource = "explicit"
	// LeaseSourceDefault indicates the default duration was used.
	LeaseSourceDefault LeaseSource = "default"
	// LeaseSourceClamped indicates the request was raised to one second.
	LeaseSourceClamped LeaseSource = "clamped"
)

// LeasePolicy turns requested lease durations into whole seconds for the queue.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease duration.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// LeaseDecision captures the outcome of resolving a lease request.
type LeaseDecision struct {
	Seconds   int
	Source    LeaseSource
	Requested time.Duration
}

// Clamped reports whether the requested value was raised to the minimum.
func (d LeaseDecision) Clamped() bool { return d.Source == LeaseSourceClamped }

// UsedDefault reports whether the policy fell back to the default lease.
func (d LeaseDecision) UsedDefault() bool { return d.Source == LeaseSourceDefault }

// Resolve normalises the requested duration. Zero selects the default.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	decision := LeaseDecision{Requested: request, Source: LeaseSourceExplicit}
	if p == nil {
		decision.Source = LeaseSourceDefault
		return decision
	}
	if request == 0 {
		request = p.defaultLease
		decision.Source = LeaseSourceDefault
	}
	secs := int64(request / time.Second)
	if secs < 1 {
		decision.Seconds = 1
		decision.Source = LeaseSourceClamped
		return decision
	}
	if secs > math.MaxInt32 {
		secs = math.MaxInt32
		decision.Source = LeaseSourceClamped
	}
	decision.Seconds = int(secs)
	return decision
}

// BackoffPolicy computes retry delays as base * 2^(attempt-1), capped.
// With Jitter set the delay is drawn uniformly from [0, computed].
type BackoffPolicy struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter bool

	rand func() float64
}

// NewBackoffPolicy validates and constructs a BackoffPolicy.
func NewBackoffPolicy(base, maxDelay time.Duration, jitter bool) (*BackoffPolicy, error) {
	if base <= 0 || maxDelay <= 0 {
		return nil, ErrInvalidBackoff
	}
	if maxDelay < base {
		maxDelay = base
	}
	return &BackoffPolicy{Base: base, Cap: maxDelay, Jitter: jitter, rand: rand.Float64}, nil
}

// Delay returns how long to wait before the next try after the given failed
// attempt number (1 for the first failure).
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if p == nil {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := p.Cap
	if shift := attempt - 1; shift < 62 {
		mult := time.Duration(1) << uint(shift)
		if p.Base <= p.Cap/mult {
			d = p.Base * mult
		}
	}
	if d > p.Cap {
		d = p.Cap
	}
	if p.Jitter {
		r := p.rand
		if r == nil {
			r = rand.Float64
		}
		d = time.Duration(r() * float64(d))
	}
	return d
}
