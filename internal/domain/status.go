package domain

import "fmt"

// OrderStatus is the processing state of an order.
type OrderStatus string

const (
	StatusNew        OrderStatus = "new"
	StatusInProgress OrderStatus = "in_progress"
	StatusCompleted  OrderStatus = "completed"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Priority orders the manager report: new orders first, then in-progress.
func (s OrderStatus) Priority() int {
	switch s {
	case StatusNew:
		return 0
	case StatusInProgress:
		return 1
	default:
		return 2
	}
}

// AssignTransition returns the status an order moves to once a restaurant is
// chosen for it.
func AssignTransition(s OrderStatus) (OrderStatus, error) {
	switch s {
	case StatusNew, StatusInProgress:
		return StatusInProgress, nil
	default:
		return s, fmt.Errorf("%w: assign restaurant to %s order", ErrInvalidTransition, s)
	}
}

// CompleteTransition returns the status of a delivered order.
func CompleteTransition(s OrderStatus) (OrderStatus, error) {
	switch s {
	case StatusNew, StatusInProgress:
		return StatusCompleted, nil
	default:
		return s, fmt.Errorf("%w: complete %s order", ErrInvalidTransition, s)
	}
}
