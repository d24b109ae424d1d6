package order

import (
	"fmt"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
)

// Effects is what a status change obliges the system to do outside the order store.
type Effects struct {
	// Inventory is zero when stock is untouched.
	Inventory inventory.Operation
	// Invoice is empty when no invoice is due.
	Invoice invoice.Type
}

func (e Effects) None() bool { return e.Inventory == 0 && e.Invoice == "" }

// orderState implements the state pattern for the lifecycle: each state
// answers which targets it accepts and what leaving for them costs.
type orderState interface {
	Status() Status
	To(target Status) (Effects, bool)
}

type noneState struct{}

func (noneState) Status() Status { return StatusNone }

func (noneState) To(target Status) (Effects, bool) {
	switch target {
	case StatusDraft:
		return Effects{}, true
	case StatusCompleted:
		return Effects{Inventory: inventory.Decrement, Invoice: invoice.TypeCompleted}, true
	}
	return Effects{}, false
}

type draftState struct{}

func (draftState) Status() Status { return StatusDraft }

func (draftState) To(target Status) (Effects, bool) {
	switch target {
	case StatusDraft:
		return Effects{}, true
	case StatusCompleted:
		return Effects{Inventory: inventory.Decrement, Invoice: invoice.TypeCompleted}, true
	case StatusCancelled:
		return Effects{Inventory: inventory.Increment}, true
	}
	return Effects{}, false
}

type completedState struct{}

func (completedState) Status() Status { return StatusCompleted }

func (completedState) To(target Status) (Effects, bool) {
	switch target {
	case StatusCompleted:
		return Effects{}, true
	case StatusCancelled:
		return Effects{Inventory: inventory.Increment, Invoice: invoice.TypeCancelled}, true
	case StatusReturned:
		return Effects{Inventory: inventory.Increment, Invoice: invoice.TypeReturned}, true
	}
	return Effects{}, false
}

// terminalState only accepts staying where it is.
type terminalState struct{ status Status }

func (s terminalState) Status() Status { return s.status }

func (s terminalState) To(target Status) (Effects, bool) {
	return Effects{}, target == s.status
}

var states = map[Status]orderState{
	StatusNone:      noneState{},
	StatusDraft:     draftState{},
	StatusCompleted: completedState{},
	StatusCancelled: terminalState{status: StatusCancelled},
	StatusReturned:  terminalState{status: StatusReturned},
}

// Transition evaluates the lifecycle table for from -> to.
func Transition(from, to Status) (Effects, error) {
	st, ok := states[from]
	if !ok {
		return Effects{}, fmt.Errorf("%w: %q", ErrInvalidStatus, from)
	}
	if _, ok := validStatuses[to]; !ok {
		return Effects{}, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	eff, ok := st.To(to)
	if !ok {
		return Effects{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, displayStatus(from), to)
	}
	return eff, nil
}

func displayStatus(s Status) string {
	if s == StatusNone {
		return "(none)"
	}
	return string(s)
}
