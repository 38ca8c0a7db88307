package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrUnknownProduct        = errors.New("unknown product")
	ErrRestaurantNotEligible = errors.New("restaurant cannot fulfil order")
	ErrInvalidTransition     = errors.New("invalid order status transition")
)

// UnknownProductError reports an order line naming a product that does not exist.
type UnknownProductError struct {
	ProductID int64
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product %d", e.ProductID)
}

func (e *UnknownProductError) Is(target error) bool { return target == ErrUnknownProduct }

// ValidationError lists the offending fields of a rejected order submission.
type ValidationError struct {
	Fields map[string][]string
}

// Add appends a message for field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], " "))
	}
	return "invalid order: " + strings.Join(parts, "; ")
}
