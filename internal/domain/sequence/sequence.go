package sequence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
)

// OrderPrefix is the code prefix minted for orders ("DH42").
const OrderPrefix = "DH"

var (
	ErrUnavailable   = fmt.Errorf("sequence: %w", domain.ErrDependencyUnavailable)
	ErrPrefixMissing = fmt.Errorf("sequence: %w: prefix is required", domain.ErrValidation)
)

// Generator issues strictly increasing codes per prefix. Implementations must
// be backed by a shared store; the counter is never held in process memory.
type Generator interface {
	Next(ctx context.Context, prefix string) (string, error)
}

func Format(prefix string, n int64) string {
	return prefix + strconv.FormatInt(n, 10)
}
