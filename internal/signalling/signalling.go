// Package signalling delivers the abstract out-of-band messages the call
// switch emits to browser/mobile peers: per-user FIFO channels with bounded
// retry on delivery failure.
package signalling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aicallswitch/internal/logging"
)

// EventType names one of the directional messages the core emits.
type EventType string

const (
	EventInCalling            EventType = "inCalling"
	EventCallTrying           EventType = "callTrying"
	EventCallRinging          EventType = "callRinging"
	EventSDPAnswered          EventType = "sdpAnswered"
	EventReceiveICECandidate  EventType = "receiveIceCandidate"
	EventAnswered             EventType = "answered"
	EventCallEnded            EventType = "callEnded"
	EventCallTimeout          EventType = "callTimeout"
	EventHangupInitiated      EventType = "hangupInitiated"
	EventHangupFailed         EventType = "hangupFailed"
)

// Event is one JSON-serializable signalling record addressed to a user.
type Event struct {
	Type    EventType
	CallID  string
	Payload map[string]interface{}
}

// ErrDeliveryExhausted is logged (never returned or surfaced as a call
// failure) once all retry attempts for an Event have failed.
var ErrDeliveryExhausted = errors.New("signalling: delivery exhausted after retries")

// Transport performs the actual send to one user, e.g. a websocket push or
// an HTTP callback. A non-nil error is treated as a transient failure and
// retried per RetryPolicy.
type Transport interface {
	Send(userID string, ev Event) error
}

// RetryPolicy configures the exponential backoff used on delivery failure.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the documented 3-attempt, 1s->10s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// perUserQueue is a single-goroutine FIFO delivery worker for one user,
// guaranteeing send-order is preserved per destination.
type perUserQueue struct {
	events chan Event
	done   chan struct{}
}

// Notifier delivers Events to per-user FIFO queues, retrying failed sends
// with exponential backoff before logging them as lost.
type Notifier struct {
	transport Transport
	policy    RetryPolicy
	logger    logging.Logger

	mu     sync.Mutex
	queues map[string]*perUserQueue
	wg     sync.WaitGroup
	closed bool
}

// New creates a Notifier. transport performs the real send; policy governs
// retry behavior on failure.
func New(transport Transport, policy RetryPolicy, logger logging.Logger) *Notifier {
	return &Notifier{
		transport: transport,
		policy:    policy,
		logger:    logger,
		queues:    make(map[string]*perUserQueue),
	}
}

// Notify enqueues ev for delivery to userID. Returns immediately; delivery
// (including retries) happens on the user's FIFO worker goroutine. A
// payload map is accepted for interface parity with the narrower notifier
// shapes other components (e.g. the call manager) depend on.
func (n *Notifier) Notify(userID, event string, payload map[string]string) error {
	generic := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		generic[k] = v
	}
	return n.Send(userID, Event{Type: EventType(event), CallID: payload["call_id"], Payload: generic})
}

// Send enqueues ev for delivery to userID, preserving FIFO order relative
// to other events already queued for the same user.
func (n *Notifier) Send(userID string, ev Event) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return errors.New("signalling: notifier is closed")
	}
	q, ok := n.queues[userID]
	if !ok {
		q = &perUserQueue{events: make(chan Event, 64), done: make(chan struct{})}
		n.queues[userID] = q
		n.wg.Add(1)
		go n.worker(userID, q)
	}
	n.mu.Unlock()

	select {
	case q.events <- ev:
		return nil
	default:
		return fmt.Errorf("signalling: queue full for user %s", userID)
	}
}

func (n *Notifier) worker(userID string, q *perUserQueue) {
	defer n.wg.Done()
	for {
		select {
		case ev, ok := <-q.events:
			if !ok {
				return
			}
			n.deliver(userID, ev)
		case <-q.done:
			return
		}
	}
}

func (n *Notifier) deliver(userID string, ev Event) {
	var err error
	for attempt := 0; attempt < n.policy.MaxAttempts; attempt++ {
		if err = n.transport.Send(userID, ev); err == nil {
			return
		}
		n.logger.Warnw("signalling: delivery attempt failed",
			"user_id", userID, "event", ev.Type, "attempt", attempt+1, "error", err)
		if attempt < n.policy.MaxAttempts-1 {
			time.Sleep(n.policy.delay(attempt))
		}
	}
	n.logger.Errorw("signalling: delivery exhausted, dropping event",
		"user_id", userID, "event", ev.Type, "error", ErrDeliveryExhausted)
}

// Close stops every per-user worker. Pending queued events are discarded;
// Close does not block waiting for in-flight backoff sleeps beyond ctx's
// deadline.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	for _, q := range n.queues {
		close(q.done)
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
