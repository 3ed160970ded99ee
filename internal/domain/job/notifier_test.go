package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/intake-pipeline/internal/domain/model"
)

type stubWaiter struct {
	calls chan model.JobKind
	err   error
	sleep time.Duration
}

func (s *stubWaiter) WaitForNotification(ctx context.Context, kind model.JobKind) error {
	select {
	case s.calls <- kind:
	default:
	}

	if s.sleep > 0 {
		timer := time.NewTimer(s.sleep)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return s.err
}

func TestNewNotifierRequiresWaiter(t *testing.T) {
	notifier, err := NewNotifier(NotifierOptions{})
	require.ErrorIs(t, err, ErrWaiterRequired)
	assert.Nil(t, notifier)
}

func TestNotifier_SubscribeReceivesNotifications(t *testing.T) {
	waiter := &stubWaiter{calls: make(chan model.JobKind, 4), sleep: 10 * time.Millisecond}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, ch := notifier.Subscribe(model.JobKindNewsletterSync)
	defer unsub()

	select {
	case kind := <-waiter.calls:
		assert.Equal(t, model.JobKindNewsletterSync, kind)
	case <-time.After(time.Second):
		t.Fatal("expected waiter to be invoked")
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected notification to be delivered")
	}
}

func TestNotifier_WaitWindowTimeoutStillWakes(t *testing.T) {
	waiter := &stubWaiter{calls: make(chan model.JobKind, 4), sleep: time.Hour}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter, WaitWindow: 20 * time.Millisecond})
	require.NoError(t, err)
	defer notifier.StopAll()

	_, ch := notifier.Subscribe(model.JobKindAssessmentScore)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected wake-up after wait window elapsed")
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	waiter := &stubWaiter{calls: make(chan model.JobKind, 1), sleep: time.Hour}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter})
	require.NoError(t, err)

	unsub, ch := notifier.Subscribe(model.JobKindAssessmentScore)

	select {
	case <-waiter.calls:
	case <-time.After(time.Second):
		t.Fatal("expected waiter to be invoked")
	}

	unsub()
	unsub()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("expected channel to close after unsubscribe")
	}
}

func TestNotifier_StopAllClosesChannels(t *testing.T) {
	waiter := &stubWaiter{calls: make(chan model.JobKind, 2), err: errors.New("boom")}
	notifier, err := NewNotifier(NotifierOptions{Waiter: waiter})
	require.NoError(t, err)

	unsubA, chA := notifier.Subscribe(model.JobKindNewsletterSync)
	unsubB, chB := notifier.Subscribe(model.JobKindAssessmentScore)

	for range 2 {
		select {
		case <-waiter.calls:
		case <-time.After(time.Second):
			t.Fatal("expected waiter to be invoked")
		}
	}

	notifier.StopAll()

	for _, ch := range []<-chan struct{}{chA, chB} {
		require.Eventually(t, func() bool {
			select {
			case _, ok := <-ch:
				return !ok
			default:
				return false
			}
		}, time.Second, 5*time.Millisecond)
	}

	unsubA()
	unsubB()
}
