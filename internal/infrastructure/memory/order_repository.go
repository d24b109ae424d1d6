package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
)

// OrderRepository keeps orders and their outbox records behind one lock so a
// write and its records land together. It also serves as the outbox store.
type OrderRepository struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	byCode  map[string]string
	records map[string]*storedRecord
	seq     int64
	now     func() time.Time
}

type storedRecord struct {
	rec         outbox.Record
	seq         int64
	leasedUntil time.Time
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:  make(map[string]*domain.Order),
		byCode:  make(map[string]string),
		records: make(map[string]*storedRecord),
		now:     time.Now,
	}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order, records ...outbox.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.ID]; exists {
		return fmt.Errorf("%w: id %s exists", domain.ErrConflict, o.ID)
	}
	if _, exists := r.byCode[o.Code]; exists && o.Code != "" {
		return fmt.Errorf("%w: code %s exists", domain.ErrConflict, o.Code)
	}

	r.orders[o.ID] = o.Clone()
	if o.Code != "" {
		r.byCode[o.Code] = o.ID
	}
	r.appendRecords(records)
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *OrderRepository) GetByCode(ctx context.Context, code string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byCode[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.orders[id].Clone(), nil
}

func (r *OrderRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	matched := lo.FilterMap(lo.Values(r.orders), func(o *domain.Order, _ int) (*domain.Order, bool) {
		if !f.IncludeDeleted && o.DeletedByUser {
			return nil, false
		}
		if f.Status != domain.StatusNone && o.Status != f.Status {
			return nil, false
		}
		return o.Clone(), true
	})
	r.mu.Unlock()

	slices.SortFunc(matched, func(a, b *domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return matched, nil
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order, records ...outbox.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(o); err != nil {
		return err
	}
	o.Version++
	r.orders[o.ID] = o.Clone()
	r.appendRecords(records)
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, o *domain.Order, records ...outbox.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(o); err != nil {
		return err
	}
	delete(r.orders, o.ID)
	delete(r.byCode, o.Code)
	r.appendRecords(records)
	return nil
}

func (r *OrderRepository) checkVersion(o *domain.Order) error {
	stored, ok := r.orders[o.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != o.Version {
		return domain.ErrConflict
	}
	return nil
}

func (r *OrderRepository) appendRecords(records []outbox.Record) {
	for _, rec := range records {
		r.seq++
		r.records[rec.ID] = &storedRecord{rec: rec, seq: r.seq}
	}
}

// ClaimPending implements outbox.Store.
func (r *OrderRepository) ClaimPending(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]outbox.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	due := lo.Filter(lo.Values(r.records), func(s *storedRecord, _ int) bool {
		return s.rec.DispatchedAt == nil &&
			s.rec.ParkedAt == nil &&
			s.rec.Attempts < maxAttempts &&
			!s.rec.NextAttemptAt.After(now) &&
			!s.leasedUntil.After(now)
	})
	slices.SortFunc(due, func(a, b *storedRecord) int { return cmp.Compare(a.seq, b.seq) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]outbox.Record, 0, len(due))
	for _, s := range due {
		s.leasedUntil = now.Add(lease)
		out = append(out, s.rec)
	}
	return out, nil
}

func (r *OrderRepository) MarkDispatched(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.records[id]
	if !ok {
		return fmt.Errorf("outbox: record %s not found", id)
	}
	at := r.now().UTC()
	s.rec.DispatchedAt = &at
	s.leasedUntil = time.Time{}
	return nil
}

func (r *OrderRepository) MarkFailed(ctx context.Context, id string, reason string, nextAttempt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.records[id]
	if !ok {
		return fmt.Errorf("outbox: record %s not found", id)
	}
	s.rec.Attempts++
	s.rec.LastError = reason
	s.rec.NextAttemptAt = nextAttempt
	s.leasedUntil = time.Time{}
	return nil
}

func (r *OrderRepository) Park(ctx context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.records[id]
	if !ok {
		return fmt.Errorf("outbox: record %s not found", id)
	}
	at := r.now().UTC()
	s.rec.Attempts++
	s.rec.LastError = reason
	s.rec.ParkedAt = &at
	s.leasedUntil = time.Time{}
	return nil
}

// Records returns every outbox record in write order.
func (r *OrderRepository) Records() []outbox.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := lo.Values(r.records)
	slices.SortFunc(all, func(a, b *storedRecord) int { return cmp.Compare(a.seq, b.seq) })
	return lo.Map(all, func(s *storedRecord, _ int) outbox.Record { return s.rec })
}
