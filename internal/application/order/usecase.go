package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domainerr "github.com/Zhima-Mochi/minishop-orders/internal/domain"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/sequence"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const (
	orderService = "order-service"

	useCaseOrderCreate   = "order.create"
	useCaseOrderUpdate   = "order.update"
	useCaseOrderDelete   = "order.delete"
	useCaseOrderGet      = "order.get"
	useCaseOrderList     = "order.list"
	useCaseOrderComplete = "order.complete_by_code"

	// maxUpdateAttempts bounds the read-evaluate-write loop on version conflicts.
	maxUpdateAttempts = 3
	publishTimeout    = 300 * time.Millisecond
)

var (
	ErrConflict           = domain.ErrConflict
	ErrNotFound           = domain.ErrNotFound
	ErrRepository         = errors.New("order: repository failure")
	ErrHardDeleteNotDraft = fmt.Errorf("order: %w: only DRAFT orders can be hard-deleted", domainerr.ErrInvalidTransition)
	ErrAmountMismatch     = fmt.Errorf("order: %w: paid amount does not match order total", domainerr.ErrValidation)
)

// Deps are the collaborators shared by every order use case. Notifier and
// Publisher are optional.
type Deps struct {
	Repo      domain.Repository
	Sequence  sequence.Generator
	IDs       IDGenerator
	Notifier  Notifier
	Publisher domoutbox.Publisher
	Tel       observability.Observability
}

// Orchestrator groups the order lifecycle use cases.
type Orchestrator struct {
	Create   *CreateOrderUseCase
	Update   *UpdateOrderUseCase
	Delete   *DeleteOrderUseCase
	Get      *GetOrderUseCase
	List     *ListOrdersUseCase
	Complete *CompleteOrderUseCase
}

func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		Create:   NewCreateOrderUseCase(d),
		Update:   NewUpdateOrderUseCase(d),
		Delete:   NewDeleteOrderUseCase(d),
		Get:      NewGetOrderUseCase(d),
		List:     NewListOrdersUseCase(d),
		Complete: NewCompleteOrderUseCase(d),
	}
}

var (
	_ application.UseCase[CreateOrderInput, *domain.Order]     = (*CreateOrderUseCase)(nil)
	_ application.UseCase[UpdateOrderInput, *domain.Order]     = (*UpdateOrderUseCase)(nil)
	_ application.UseCase[DeleteOrderInput, DeleteOrderResult] = (*DeleteOrderUseCase)(nil)
	_ application.UseCase[string, *domain.Order]               = (*GetOrderUseCase)(nil)
	_ application.UseCase[ListOrdersInput, []*domain.Order]    = (*ListOrdersUseCase)(nil)
	_ application.UseCase[CompleteOrderInput, *domain.Order]   = (*CompleteOrderUseCase)(nil)
)

// core holds what the mutating use cases share: persistence with outbox
// records, retries on version conflicts, and post-commit notification.
type core struct {
	repo      domain.Repository
	ids       IDGenerator
	notifier  Notifier
	publisher domoutbox.Publisher
	instr     *application.Instrument
}

func newCore(d Deps) core {
	return core{
		repo:      d.Repo,
		ids:       d.IDs,
		notifier:  d.Notifier,
		publisher: d.Publisher,
		instr:     application.NewInstrument(d.Tel, orderService),
	}
}

// mutation is the outcome of a committed change.
type mutation struct {
	order   *domain.Order
	from    domain.Status
	records []domoutbox.Record
}

// mutate loads the order, applies change and writes the result together with
// its outbox records, starting over when the stored version moved.
func (c *core) mutate(
	ctx context.Context,
	run *application.Run,
	load func(context.Context) (*domain.Order, error),
	change func(*domain.Order) (domain.Effects, error),
) (mutation, error) {
	for attempt := 1; ; attempt++ {
		entity, err := load(ctx)
		if err != nil {
			return mutation{}, run.Fail("ORDER_LOAD_FAILED", wrapRepositoryError(err))
		}
		from := entity.Status

		eff, err := change(entity)
		if err != nil {
			return mutation{}, run.Fail("TRANSITION_REJECTED", err)
		}
		records, err := planEffects(c.ids, entity, eff)
		if err != nil {
			return mutation{}, run.Fail("EFFECT_PLANNING_FAILED", err)
		}

		err = c.repo.Update(ctx, entity, records...)
		if errors.Is(err, domainerr.ErrConflict) && attempt < maxUpdateAttempts {
			run.Span().AddEvent("order.version_conflict", trace.WithAttributes(
				attribute.String("order.id", entity.ID),
				attribute.Int("attempt", attempt),
			))
			continue
		}
		if err != nil {
			return mutation{}, run.Fail("REPO_UPDATE_FAILED", wrapRepositoryError(err))
		}
		run.Field("attempts", attempt)
		return mutation{order: entity, from: from, records: records}, nil
	}
}

// afterCommit wakes the relay and announces lifecycle events. Neither step
// can undo the committed change, and neither depends on the caller's context
// staying alive.
func (c *core) afterCommit(ctx context.Context, run *application.Run, records []domoutbox.Record, events ...domoutbox.Event) {
	if len(records) > 0 && c.notifier != nil {
		c.notifier.Notify()
	}
	if c.publisher == nil || len(events) == 0 {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, e := range events {
		if err := c.publisher.Publish(pubCtx, e); err != nil {
			run.Span().RecordError(err)
			run.SetStatus("EVENT_PUBLISH_FAILED")
			run.Logger().Warn("event_publish_failed",
				observability.F("event", e.EventName()),
				observability.F("error", err.Error()),
			)
		}
	}
}

type LineItemInput struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

func buildItems(in []LineItemInput) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, len(in))
	for i, it := range in {
		li, err := domain.NewLineItem(it.ProductID, it.ProductName, it.Quantity, it.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, li)
	}
	return items, nil
}

// CreateOrderUseCase mints a code and persists a new order at DRAFT or COMPLETED.
type CreateOrderUseCase struct {
	core
	seq sequence.Generator
}

func NewCreateOrderUseCase(d Deps) *CreateOrderUseCase {
	return &CreateOrderUseCase{core: newCore(d), seq: d.Sequence}
}

type CreateOrderInput struct {
	// Status defaults to DRAFT.
	Status         string
	Items          []LineItemInput
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	PaymentMethod  string
	CustomerName   string
	Notes          string
}

func (uc *CreateOrderUseCase) Execute(ctx context.Context, cmd CreateOrderInput) (_ *domain.Order, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseOrderCreate, "CreateOrder",
		attribute.String("order.requested_status", cmd.Status),
		attribute.Int("order.items", len(cmd.Items)),
	)
	defer func() { run.End(err) }()

	status := domain.StatusDraft
	if cmd.Status != "" {
		status, err = domain.ParseStatus(cmd.Status)
		if err != nil {
			return nil, run.Fail("STATUS_INVALID", err)
		}
	}
	if status != domain.StatusDraft && status != domain.StatusCompleted {
		return nil, run.Fail("STATUS_INVALID", newValidation("an order starts as DRAFT or COMPLETED"))
	}
	items, err := buildItems(cmd.Items)
	if err != nil {
		return nil, run.Fail("ITEMS_INVALID", err)
	}

	entity, eff, err := domain.New(uc.ids.NewID(), "", domain.Draft{
		Status:         status,
		Items:          items,
		TaxAmount:      cmd.TaxAmount,
		DiscountAmount: cmd.DiscountAmount,
		PaymentMethod:  cmd.PaymentMethod,
		CustomerName:   cmd.CustomerName,
		Notes:          cmd.Notes,
	})
	if err != nil {
		return nil, run.Fail("DOMAIN_CONSTRUCTION_FAILED", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, run.Fail("CONTEXT_CANCELED", err)
	}

	// codes are minted only for orders that passed validation
	code, err := uc.seq.Next(ctx, sequence.OrderPrefix)
	if err != nil {
		return nil, run.Fail("SEQUENCE_FAILED", err)
	}
	entity.Code = code

	records, err := planEffects(uc.ids, entity, eff)
	if err != nil {
		return nil, run.Fail("EFFECT_PLANNING_FAILED", err)
	}
	if err := uc.repo.Insert(ctx, entity, records...); err != nil {
		return nil, run.Fail("REPO_INSERT_FAILED", wrapRepositoryError(err))
	}

	run.Field("order_id", entity.ID)
	run.Field("order_code", entity.Code)
	run.Field("effects", len(records))
	run.Span().SetAttributes(
		attribute.String("order.id", entity.ID),
		attribute.String("order.status", string(entity.Status)),
	)
	run.Span().AddEvent("order.created", trace.WithAttributes(attribute.String("order.code", entity.Code)))

	uc.afterCommit(ctx, run, records, domain.NewCreatedEvent(entity))
	return entity, nil
}

// UpdateOrderUseCase applies a patch and the side effects of any status change.
type UpdateOrderUseCase struct {
	core
}

func NewUpdateOrderUseCase(d Deps) *UpdateOrderUseCase {
	return &UpdateOrderUseCase{core: newCore(d)}
}

// PatchInput mirrors domain.Patch with unparsed status and line items.
type PatchInput struct {
	Status         *string
	Items          *[]LineItemInput
	TaxAmount      *decimal.Decimal
	DiscountAmount *decimal.Decimal
	PaymentMethod  *string
	CustomerName   *string
	Notes          *string
	ReturnReason   *string
}

func (p PatchInput) toDomain() (domain.Patch, error) {
	out := domain.Patch{
		TaxAmount:      p.TaxAmount,
		DiscountAmount: p.DiscountAmount,
		PaymentMethod:  p.PaymentMethod,
		CustomerName:   p.CustomerName,
		Notes:          p.Notes,
		ReturnReason:   p.ReturnReason,
	}
	if p.Status != nil {
		st, err := domain.ParseStatus(*p.Status)
		if err != nil {
			return domain.Patch{}, err
		}
		out.Status = &st
	}
	if p.Items != nil {
		items, err := buildItems(*p.Items)
		if err != nil {
			return domain.Patch{}, err
		}
		out.Items = &items
	}
	return out, nil
}

type UpdateOrderInput struct {
	ID    string
	Patch PatchInput
}

func (uc *UpdateOrderUseCase) Execute(ctx context.Context, cmd UpdateOrderInput) (_ *domain.Order, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseOrderUpdate, "UpdateOrder",
		attribute.String("order.id", cmd.ID),
	)
	defer func() { run.End(err) }()

	if cmd.ID == "" {
		return nil, run.Fail("ORDER_ID_REQUIRED", newValidation("order id is required"))
	}
	patch, err := cmd.Patch.toDomain()
	if err != nil {
		return nil, run.Fail("PATCH_INVALID", err)
	}

	m, err := uc.mutate(ctx, run,
		func(ctx context.Context) (*domain.Order, error) { return uc.repo.Get(ctx, cmd.ID) },
		func(o *domain.Order) (domain.Effects, error) { return o.Apply(patch) },
	)
	if err != nil {
		return nil, err
	}

	run.Field("order_id", m.order.ID)
	run.Field("from", string(m.from))
	run.Field("to", string(m.order.Status))
	run.Field("effects", len(m.records))
	run.Span().SetAttributes(
		attribute.String("order.from", string(m.from)),
		attribute.String("order.status", string(m.order.Status)),
	)

	var events []domoutbox.Event
	if m.from != m.order.Status {
		events = append(events, domain.NewStatusChangedEvent(m.order, m.from))
	}
	uc.afterCommit(ctx, run, m.records, events...)
	return m.order, nil
}

// DeleteOrderUseCase hard-deletes DRAFT orders, releasing their stock, and
// flags every other order as deleted by the user.
type DeleteOrderUseCase struct {
	core
}

func NewDeleteOrderUseCase(d Deps) *DeleteOrderUseCase {
	return &DeleteOrderUseCase{core: newCore(d)}
}

type DeleteOrderInput struct {
	ID string
	// RequireHard rejects the call unless the order can be removed outright.
	RequireHard bool
}

type DeleteOrderResult struct {
	Order *domain.Order
	Hard  bool
}

func (uc *DeleteOrderUseCase) Execute(ctx context.Context, cmd DeleteOrderInput) (_ DeleteOrderResult, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseOrderDelete, "DeleteOrder",
		attribute.String("order.id", cmd.ID),
		attribute.Bool("order.require_hard", cmd.RequireHard),
	)
	defer func() { run.End(err) }()

	if cmd.ID == "" {
		return DeleteOrderResult{}, run.Fail("ORDER_ID_REQUIRED", newValidation("order id is required"))
	}

	for attempt := 1; ; attempt++ {
		entity, loadErr := uc.repo.Get(ctx, cmd.ID)
		if loadErr != nil {
			return DeleteOrderResult{}, run.Fail("ORDER_LOAD_FAILED", wrapRepositoryError(loadErr))
		}
		if cmd.RequireHard && entity.Status != domain.StatusDraft {
			return DeleteOrderResult{}, run.Fail("HARD_DELETE_REJECTED", ErrHardDeleteNotDraft)
		}

		alreadyDeleted := entity.DeletedByUser
		hard, eff := entity.Delete()

		var (
			records  []domoutbox.Record
			writeErr error
		)
		switch {
		case hard:
			records, writeErr = planEffects(uc.ids, entity, eff)
			if writeErr != nil {
				return DeleteOrderResult{}, run.Fail("EFFECT_PLANNING_FAILED", writeErr)
			}
			writeErr = uc.repo.Delete(ctx, entity, records...)
		case alreadyDeleted:
			run.SetStatus("ALREADY_DELETED")
			return DeleteOrderResult{Order: entity}, nil
		default:
			writeErr = uc.repo.Update(ctx, entity)
		}

		if errors.Is(writeErr, domainerr.ErrConflict) && attempt < maxUpdateAttempts {
			run.Span().AddEvent("order.version_conflict", trace.WithAttributes(attribute.Int("attempt", attempt)))
			continue
		}
		if writeErr != nil {
			return DeleteOrderResult{}, run.Fail("REPO_DELETE_FAILED", wrapRepositoryError(writeErr))
		}

		run.Field("order_id", entity.ID)
		run.Field("hard", hard)
		run.Field("effects", len(records))
		run.Span().SetAttributes(attribute.Bool("order.hard_deleted", hard))

		uc.afterCommit(ctx, run, records, domain.NewDeletedEvent(entity, hard))
		return DeleteOrderResult{Order: entity, Hard: hard}, nil
	}
}

type GetOrderUseCase struct {
	core
}

func NewGetOrderUseCase(d Deps) *GetOrderUseCase {
	return &GetOrderUseCase{core: newCore(d)}
}

func (uc *GetOrderUseCase) Execute(ctx context.Context, id string) (_ *domain.Order, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseOrderGet, "GetOrder", attribute.String("order.id", id))
	defer func() { run.End(err) }()

	if id == "" {
		return nil, run.Fail("ORDER_ID_REQUIRED", newValidation("order id is required"))
	}
	entity, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, run.Fail("ORDER_LOAD_FAILED", wrapRepositoryError(err))
	}
	return entity, nil
}

type ListOrdersUseCase struct {
	core
}

func NewListOrdersUseCase(d Deps) *ListOrdersUseCase {
	return &ListOrdersUseCase{core: newCore(d)}
}

// ListOrdersInput selects the user view by default; IncludeDeleted gives the
// administrative view that also shows orders deleted by the user.
type ListOrdersInput struct {
	Status         string
	IncludeDeleted bool
}

func (uc *ListOrdersUseCase) Execute(ctx context.Context, cmd ListOrdersInput) (_ []*domain.Order, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseOrderList, "ListOrders",
		attribute.String("order.status", cmd.Status),
		attribute.Bool("order.include_deleted", cmd.IncludeDeleted),
	)
	defer func() { run.End(err) }()

	filter := domain.Filter{IncludeDeleted: cmd.IncludeDeleted}
	if cmd.Status != "" {
		filter.Status, err = domain.ParseStatus(cmd.Status)
		if err != nil {
			return nil, run.Fail("STATUS_INVALID", err)
		}
	}
	orders, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, run.Fail("REPO_LIST_FAILED", wrapRepositoryError(err))
	}
	run.Field("count", len(orders))
	return orders, nil
}

// CompleteOrderUseCase confirms payment for the order with the given code.
type CompleteOrderUseCase struct {
	core
}

func NewCompleteOrderUseCase(d Deps) *CompleteOrderUseCase {
	return &CompleteOrderUseCase{core: newCore(d)}
}

type CompleteOrderInput struct {
	Code string
	// PaidAmount is checked against the order total unless zero.
	PaidAmount decimal.Decimal
}

func (uc *CompleteOrderUseCase) Execute(ctx context.Context, cmd CompleteOrderInput) (_ *domain.Order, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseOrderComplete, "CompleteOrder",
		attribute.String("order.code", cmd.Code),
	)
	defer func() { run.End(err) }()

	if cmd.Code == "" {
		return nil, run.Fail("ORDER_CODE_REQUIRED", newValidation("order code is required"))
	}

	current, err := uc.repo.GetByCode(ctx, cmd.Code)
	if err != nil {
		return nil, run.Fail("ORDER_LOAD_FAILED", wrapRepositoryError(err))
	}
	if current.Status == domain.StatusCompleted {
		run.SetStatus("ALREADY_COMPLETED")
		return current, nil
	}

	completed := domain.StatusCompleted
	m, err := uc.mutate(ctx, run,
		func(ctx context.Context) (*domain.Order, error) { return uc.repo.GetByCode(ctx, cmd.Code) },
		func(o *domain.Order) (domain.Effects, error) {
			if !cmd.PaidAmount.IsZero() && !cmd.PaidAmount.Equal(o.TotalAmount) {
				return domain.Effects{}, ErrAmountMismatch
			}
			return o.Apply(domain.Patch{Status: &completed})
		},
	)
	if err != nil {
		return nil, err
	}

	run.Field("order_id", m.order.ID)
	run.Field("effects", len(m.records))

	var events []domoutbox.Event
	if m.from != m.order.Status {
		events = append(events, domain.NewStatusChangedEvent(m.order, m.from))
	}
	uc.afterCommit(ctx, run, m.records, events...)
	return m.order, nil
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domainerr.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domainerr.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}

func newValidation(msg string) error {
	return fmt.Errorf("order: %w: %s", domainerr.ErrValidation, msg)
}
