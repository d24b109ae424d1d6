package inventory

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const (
	inventoryService = "inventory-service"

	useCaseAdjust   = "inventory.adjust"
	useCaseStock    = "inventory.stock"
	useCaseSetStock = "inventory.set_stock"
)

var (
	_ application.UseCase[AdjustInput, AdjustResult]   = (*AdjustStockUseCase)(nil)
	_ application.UseCase[string, *dominv.Item]        = (*GetStockUseCase)(nil)
	_ application.UseCase[SetStockInput, *dominv.Item] = (*SetStockUseCase)(nil)
)

// Service groups the stock use cases served on the inventory endpoints.
type Service struct {
	Adjust   *AdjustStockUseCase
	Stock    *GetStockUseCase
	SetStock *SetStockUseCase
}

func NewService(repo dominv.Repository, tel observability.Observability) *Service {
	instr := application.NewInstrument(tel, inventoryService)
	return &Service{
		Adjust:   &AdjustStockUseCase{repo: repo, instr: instr},
		Stock:    &GetStockUseCase{repo: repo, instr: instr},
		SetStock: &SetStockUseCase{repo: repo, instr: instr},
	}
}

type AdjustInput struct {
	// IdempotencyKey makes a retried batch a no-op once it was applied.
	IdempotencyKey string
	Items          []dominv.Adjustment
}

type AdjustResult struct {
	// Applied is false when the key had already been used.
	Applied bool
}

// AdjustStockUseCase applies a batch of stock adjustments all-or-nothing.
type AdjustStockUseCase struct {
	repo  dominv.Repository
	instr *application.Instrument
}

func (uc *AdjustStockUseCase) Execute(ctx context.Context, cmd AdjustInput) (_ AdjustResult, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseAdjust, "AdjustStock",
		attribute.Int("inventory.items", len(cmd.Items)),
		attribute.Bool("inventory.keyed", cmd.IdempotencyKey != ""),
	)
	defer func() { run.End(err) }()

	if err := dominv.ValidateBatch(cmd.Items); err != nil {
		return AdjustResult{}, run.Fail("BATCH_INVALID", err)
	}
	applied, err := uc.repo.ApplyBatch(ctx, cmd.IdempotencyKey, cmd.Items)
	if err != nil {
		return AdjustResult{}, run.Fail("APPLY_FAILED", fmt.Errorf("inventory: apply batch: %w", err))
	}
	if !applied {
		run.SetStatus("ALREADY_APPLIED")
	}
	run.Field("items", len(cmd.Items))
	run.Field("applied", applied)
	return AdjustResult{Applied: applied}, nil
}

type GetStockUseCase struct {
	repo  dominv.Repository
	instr *application.Instrument
}

func (uc *GetStockUseCase) Execute(ctx context.Context, productID string) (_ *dominv.Item, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseStock, "GetStock", attribute.String("product.id", productID))
	defer func() { run.End(err) }()

	if productID == "" {
		return nil, run.Fail("PRODUCT_ID_REQUIRED", fmt.Errorf("inventory: %w: product id is required", domain.ErrValidation))
	}
	item, err := uc.repo.Get(ctx, productID)
	if err != nil {
		return nil, run.Fail("STOCK_LOAD_FAILED", err)
	}
	return item, nil
}

type SetStockInput struct {
	ProductID string
	Quantity  int
}

// SetStockUseCase overwrites a stock level, creating the product if needed.
type SetStockUseCase struct {
	repo  dominv.Repository
	instr *application.Instrument
}

func (uc *SetStockUseCase) Execute(ctx context.Context, cmd SetStockInput) (_ *dominv.Item, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseSetStock, "SetStock",
		attribute.String("product.id", cmd.ProductID),
		attribute.Int("inventory.quantity", cmd.Quantity),
	)
	defer func() { run.End(err) }()

	if cmd.ProductID == "" {
		return nil, run.Fail("PRODUCT_ID_REQUIRED", fmt.Errorf("inventory: %w: product id is required", domain.ErrValidation))
	}
	if cmd.Quantity < 0 {
		return nil, run.Fail("QUANTITY_INVALID", dominv.ErrInvalidQuantity)
	}
	if err := uc.repo.Set(ctx, cmd.ProductID, cmd.Quantity); err != nil {
		return nil, run.Fail("STOCK_SAVE_FAILED", err)
	}
	item, err := uc.repo.Get(ctx, cmd.ProductID)
	if err != nil {
		return nil, run.Fail("STOCK_LOAD_FAILED", err)
	}
	return item, nil
}
