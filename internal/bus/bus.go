// ABOUTME: In-process publish/subscribe bus for lifecycle signals
// ABOUTME: One dispatcher goroutine per topic: per-topic FIFO, topics interleave

package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/runeclock/eventbot/internal/metrics"
	"github.com/runeclock/eventbot/internal/store"
)

// Topic names a lifecycle signal. "will-" signals announce intent, "did-"
// signals announce completion.
type Topic string

const (
	WillAddEvent       Topic = "willAddEvent"
	DidAddEvent        Topic = "didAddEvent"
	WillEditEvent      Topic = "willEditEvent"
	DidEditEvent       Topic = "didEditEvent"
	WillStartEvent     Topic = "willStartEvent"
	WillEndEvent       Topic = "willEndEvent"
	DidEndEvent        Topic = "didEndEvent"
	WillUpdateScores   Topic = "willUpdateScores"
	DidUpdateScores    Topic = "didUpdateScores"
	WillSignUpPlayer   Topic = "willSignUpPlayer"
	DidSignUpPlayer    Topic = "didSignUpPlayer"
	WillUnsignupPlayer Topic = "willUnsignupPlayer"
	DidUnsignupPlayer  Topic = "didUnsignupPlayer"
	WillDeleteEvent    Topic = "willDeleteEvent"
	DidDeleteEvent     Topic = "didDeleteEvent"
)

// Signal is the payload delivered to subscribers.
type Signal struct {
	Topic  Topic
	Event  *store.Event
	Forced bool   // willUpdateScores: bypass the stats cache
	UserID string // signup/unsignup: the affected participant
}

// Handler processes one signal. Handlers on the same topic run sequentially
// in subscription order; a handler must not block forever.
type Handler func(ctx context.Context, sig Signal)

// queueSize bounds each topic's pending signals. Generous: handlers emit
// follow-up signals on other topics, never their own.
const queueSize = 256

// Bus delivers signals to topic subscribers, preserving emission order per
// topic. Different topics are dispatched concurrently.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
	queues   map[Topic]chan Signal
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New creates a bus. Pass nil logger for default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		handlers: make(map[Topic][]Handler),
		queues:   make(map[Topic]chan Signal),
		logger:   logger.With("component", "bus"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe appends a handler to the topic's ordered handler list.
func (b *Bus) Subscribe(topic Topic, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish enqueues a signal for delivery. Delivery is asynchronous; the call
// returns once the signal is queued on its topic.
func (b *Bus) Publish(sig Signal) {
	metrics.SignalsPublished.WithLabelValues(string(sig.Topic)).Inc()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Debug("dropping signal on closed bus", "topic", sig.Topic)
		return
	}
	q, ok := b.queues[sig.Topic]
	if !ok {
		q = make(chan Signal, queueSize)
		b.queues[sig.Topic] = q
		b.wg.Add(1)
		go b.dispatch(sig.Topic, q)
	}
	b.mu.Unlock()

	select {
	case q <- sig:
	case <-b.ctx.Done():
	}
}

// dispatch drains one topic's queue, invoking handlers in order.
func (b *Bus) dispatch(topic Topic, q chan Signal) {
	defer b.wg.Done()
	for {
		select {
		case sig := <-q:
			b.deliver(sig)
		case <-b.ctx.Done():
			// Drain what was queued before shutdown
			for {
				select {
				case sig := <-q:
					b.deliver(sig)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(sig Signal) {
	b.mu.RLock()
	handlers := b.handlers[sig.Topic]
	b.mu.RUnlock()

	// Signals drained during shutdown still get a live context; handlers
	// would otherwise see the cancelled bus context and fail their work.
	ctx := b.ctx
	if ctx.Err() != nil {
		ctx = context.Background()
	}

	for _, h := range handlers {
		h(ctx, sig)
	}
	b.logger.Debug("signal delivered", "topic", sig.Topic, "handlers", len(handlers))
}

// Close stops dispatching after queued signals are delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	b.logger.Debug("bus closed")
}
