package outbox

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const (
	componentOutbox       = "outbox"
	defaultQueueSize      = 1024
	defaultConcurrency    = 8
	defaultHandlerTimeout = 30 * time.Second
)

var ErrBusStopped = errors.New("outbox: bus stopped")

// Bus routes events to subscribed handlers. Dispatch delivers synchronously
// and reports handler failures; Publish queues best-effort notifications.
type Bus struct {
	mu             sync.RWMutex
	subs           map[string][]domoutbox.Handler
	queue          chan domoutbox.Event
	startOnce      sync.Once
	stopOnce       sync.Once
	cancel         context.CancelFunc
	done           chan struct{}
	stopped        chan struct{}
	concurrency    int
	handlerTimeout time.Duration
	log            observability.Logger
}

type BusOption func(*Bus)

func WithConcurrency(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func WithHandlerTimeout(d time.Duration) BusOption {
	return func(b *Bus) {
		if d > 0 {
			b.handlerTimeout = d
		}
	}
}

func WithQueueSize(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan domoutbox.Event, n)
		}
	}
}

func NewBus(logger observability.Logger, opts ...BusOption) *Bus {
	if logger == nil {
		logger = observability.NopLogger()
	}
	b := &Bus{
		subs:           make(map[string][]domoutbox.Handler),
		queue:          make(chan domoutbox.Event, defaultQueueSize),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
		concurrency:    defaultConcurrency,
		handlerTimeout: defaultHandlerTimeout,
		log:            logger.With(observability.F("component", componentOutbox)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

// Start runs the notification loop until Stop or ctx cancellation.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(ctx)
		b.cancel = cancel
		go b.dispatchLoop(bg)
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

// Stop ends the notification loop and waits for the in-flight fan-out.
// Events still queued are dropped.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		close(b.stopped)
		if b.cancel == nil {
			close(b.done)
			return
		}
		b.cancel()
		select {
		case <-b.done:
		case <-ctx.Done():
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped", observability.F("dropped", len(b.queue)))
	})
}

// Publish queues e for asynchronous fan-out. Handler errors are only logged.
func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))
	select {
	case <-b.stopped:
		return ErrBusStopped
	default:
	}
	select {
	case b.queue <- e:
		logger.Debug("event_enqueued")
		return nil
	case <-b.stopped:
		return ErrBusStopped
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted", observability.F("error", ctx.Err()))
		return ctx.Err()
	}
}

// Dispatch delivers e to every handler and waits; the returned error joins
// all handler failures. Caller cancellation does not abort delivery.
func (b *Bus) Dispatch(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	return b.fanout(ctx, e)
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.queue:
			if err := b.fanout(ctx, e); err != nil {
				b.log.Warn("event_handler_error",
					observability.F("event", e.EventName()),
					observability.F("error", err),
				)
			}
		}
	}
}

func (b *Bus) fanout(ctx context.Context, e domoutbox.Event) error {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	baseLogger := logctx.FromOr(ctx, b.log).With(observability.F("event", name))
	if len(handlers) == 0 {
		baseLogger.Debug("event_dropped_no_subscriber")
		return nil
	}

	ctx = context.WithoutCancel(ctx)

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, b.concurrency)

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					baseLogger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
					mu.Lock()
					errs = append(errs, fmt.Errorf("outbox: handler for %s panicked: %v", name, r))
					mu.Unlock()
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
			defer cancel()
			hctx = logctx.With(hctx, baseLogger)
			if err := h(hctx, e); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	baseLogger.Debug("event_fanned_out",
		observability.F("handlers", len(handlers)),
		observability.F("failed", len(errs)),
	)
	return errors.Join(errs...)
}
