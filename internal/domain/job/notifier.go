package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/target/intake-pipeline/internal/domain/model"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until the queue signals new work for a kind.
type Waiter interface {
	WaitForNotification(ctx context.Context, kind model.JobKind) error
}

// Notifier fans queue wake-ups out to worker loops.
type Notifier interface {
	Subscribe(kind model.JobKind) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure the default notifier.
type NotifierOptions struct {
	Waiter Waiter
	// WaitWindow bounds a single wait so workers also wake to poll for delayed retries.
	WaitWindow time.Duration
	Backoff    time.Duration
}

type kindListener struct {
	cancel context.CancelFunc
	subs   map[chan struct{}]struct{}
}

// DefaultNotifier runs one listener goroutine per subscribed kind.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu    sync.Mutex
	kinds map[model.JobKind]*kindListener
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}
	n := &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: opts.WaitWindow,
		backoff:    opts.Backoff,
		kinds:      make(map[model.JobKind]*kindListener),
	}
	if n.waitWindow <= 0 {
		n.waitWindow = 30 * time.Second
	}
	if n.backoff <= 0 {
		n.backoff = 250 * time.Millisecond
	}
	return n, nil
}

// Subscribe registers a wake-up channel for kind. The returned func unsubscribes.
func (n *DefaultNotifier) Subscribe(kind model.JobKind) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	l, ok := n.kinds[kind]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		l = &kindListener{cancel: cancel, subs: make(map[chan struct{}]struct{})}
		n.kinds[kind] = l
		go n.listen(ctx, kind)
	}

	ch := make(chan struct{}, 1)
	l.subs[ch] = struct{}{}

	return func() { n.unsubscribe(kind, ch) }, ch
}

func (n *DefaultNotifier) unsubscribe(kind model.JobKind, ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	l, ok := n.kinds[kind]
	if !ok {
		return
	}
	if _, ok := l.subs[ch]; !ok {
		return
	}
	delete(l.subs, ch)
	drainAndClose(ch)
	if len(l.subs) == 0 {
		l.cancel()
		delete(n.kinds, kind)
	}
}

// StopAll cancels every listener and closes every subscriber channel.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for kind, l := range n.kinds {
		l.cancel()
		for ch := range l.subs {
			drainAndClose(ch)
		}
		delete(n.kinds, kind)
	}
}

func (n *DefaultNotifier) listen(ctx context.Context, kind model.JobKind) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, kind)
		cancel()

		// Wake subscribers on timeouts too so delayed retries get picked up.
		n.broadcast(kind)

		if err == nil || ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		timer := time.NewTimer(n.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (n *DefaultNotifier) broadcast(kind model.JobKind) {
	n.mu.Lock()
	defer n.mu.Unlock()

	l, ok := n.kinds[kind]
	if !ok {
		return
	}
	for ch := range l.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose empties buffered wake-ups before closing so receivers see the close immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
