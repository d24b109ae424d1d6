package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const componentRelay = "outbox_relay"

// Decoder turns a persisted record back into the typed event its handlers expect.
type Decoder func(domoutbox.Record) (domoutbox.Event, error)

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Lease        time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.Lease <= 0 {
		c.Lease = 30 * time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	return c
}

// Relay moves pending records from the store to the dispatcher until each
// succeeds or is parked: permanent failures at once, transient ones after
// MaxAttempts tries.
type Relay struct {
	store      domoutbox.Store
	dispatcher domoutbox.Dispatcher
	decode     Decoder
	cfg        RelayConfig
	kick       chan struct{}
	log        observability.Logger
	dispatched observability.Counter
	now        func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewRelay(store domoutbox.Store, dispatcher domoutbox.Dispatcher, decode Decoder, cfg RelayConfig, tel observability.Observability) *Relay {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Relay{
		store:      store,
		dispatcher: dispatcher,
		decode:     decode,
		cfg:        cfg.withDefaults(),
		kick:       make(chan struct{}, 1),
		log:        tel.Logger().With(observability.F("component", componentRelay)),
		dispatched: tel.Metrics().Counter(observability.MOutboxDispatch),
		now:        time.Now,
		done:       make(chan struct{}),
	}
}

// Notify wakes the relay ahead of its next poll. It never blocks.
func (r *Relay) Notify() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *Relay) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		bg, cancel := context.WithCancel(ctx)
		r.cancel = cancel
		go r.loop(bg)
		logctx.FromOr(ctx, r.log).Info("outbox_relay_started",
			observability.F("poll_interval", r.cfg.PollInterval.String()),
			observability.F("batch_size", r.cfg.BatchSize),
		)
	})
}

// Stop halts polling and waits for the current batch to finish or ctx to end.
func (r *Relay) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		if r.cancel == nil {
			return
		}
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
		}
		logctx.FromOr(ctx, r.log).Info("outbox_relay_stopped")
	})
}

func (r *Relay) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.kick:
		}
		// drain full batches before waiting again
		for {
			n, err := r.ProcessBatch(ctx)
			if err != nil {
				r.log.Warn("outbox_claim_failed", observability.F("error", err))
				break
			}
			if n < r.cfg.BatchSize || ctx.Err() != nil {
				break
			}
		}
	}
}

// ProcessBatch claims one batch and dispatches it, returning how many records
// were claimed. Dispatch failures are recorded on the record, not returned.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	records, err := r.store.ClaimPending(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts, r.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("outbox: claim: %w", err)
	}
	for _, rec := range records {
		r.process(ctx, rec)
	}
	return len(records), nil
}

func (r *Relay) process(ctx context.Context, rec domoutbox.Record) {
	logger := r.log.With(
		observability.F("record_id", rec.ID),
		observability.F("kind", rec.Kind),
		observability.F("attempt", rec.Attempts+1),
	)
	// dispatch and bookkeeping must finish even while shutting down
	ctx = logctx.With(context.WithoutCancel(ctx), logger)

	err := r.dispatch(ctx, rec)
	if err == nil {
		if markErr := r.store.MarkDispatched(ctx, rec.ID); markErr != nil {
			logger.Error("outbox_mark_dispatched_failed", observability.F("error", markErr))
			return
		}
		r.dispatched.Add(1, observability.L("kind", rec.Kind), observability.L("outcome", "success"))
		logger.Debug("outbox_record_dispatched")
		return
	}

	if !Transient(err) {
		if markErr := r.store.Park(ctx, rec.ID, err.Error()); markErr != nil {
			logger.Error("outbox_park_failed", observability.F("error", markErr))
			return
		}
		r.dispatched.Add(1, observability.L("kind", rec.Kind), observability.L("outcome", "rejected"))
		logger.Error("outbox_record_parked", observability.F("error", err), observability.F("reason", "permanent"))
		return
	}

	attempts := rec.Attempts + 1
	outcome := "retry"
	if attempts >= r.cfg.MaxAttempts {
		outcome = "parked"
	}
	next := r.now().Add(r.Backoff(rec.Attempts))
	if markErr := r.store.MarkFailed(ctx, rec.ID, err.Error(), next); markErr != nil {
		logger.Error("outbox_mark_failed_failed", observability.F("error", markErr))
		return
	}
	r.dispatched.Add(1, observability.L("kind", rec.Kind), observability.L("outcome", outcome))
	if outcome == "parked" {
		logger.Error("outbox_record_parked", observability.F("error", err), observability.F("reason", "attempts_exhausted"))
		return
	}
	logger.Warn("outbox_record_failed",
		observability.F("error", err),
		observability.F("next_attempt_at", next.UTC().Format(time.RFC3339)),
	)
}

func (r *Relay) dispatch(ctx context.Context, rec domoutbox.Record) error {
	e, err := r.decode(rec)
	if err != nil {
		return fmt.Errorf("outbox: decode %s: %w", rec.Kind, err)
	}
	return r.dispatcher.Dispatch(ctx, e)
}

// Transient reports whether a dispatch failure may succeed on retry: the
// downstream was unreachable or the handler ran out of time. Any other error,
// such as a rejected batch, is final.
func Transient(err error) bool {
	return errors.Is(err, domain.ErrDependencyUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Backoff is the delay before the retry following a failure with the given
// number of prior attempts: BaseBackoff doubled per attempt, capped at MaxBackoff.
func (r *Relay) Backoff(priorAttempts int) time.Duration {
	d := r.cfg.BaseBackoff
	for i := 0; i < priorAttempts; i++ {
		d *= 2
		if d >= r.cfg.MaxBackoff {
			return r.cfg.MaxBackoff
		}
	}
	if d > r.cfg.MaxBackoff {
		return r.cfg.MaxBackoff
	}
	return d
}
