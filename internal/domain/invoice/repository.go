package invoice

import "context"

type Repository interface {
	// Insert fails with ErrDuplicate when (OrderID, Type) already exists.
	Insert(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	FindByOrderAndType(ctx context.Context, orderID string, t Type) (*Invoice, error)
	List(ctx context.Context, orderID string) ([]*Invoice, error)
	Summarize(ctx context.Context, p Period) (Summary, error)
}
