package click

import (
	"errors"
	"fmt"
)

// ErrNoAddress is returned by Get without an address when no tags are
// loaded.
var ErrNoAddress = errors.New("an address must be supplied")

// CapacityError is returned when a list of values runs past the last
// address of its category.
type CapacityError struct {
	Start     string
	Count     int
	Available int
}

// Error implements the Golang error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("data list longer than available addresses: %d values from %s, %d available",
		e.Count, e.Start, e.Available)
}

// TypeMismatchError is returned when a value doesn't match the type of the
// address it is written to.
type TypeMismatchError struct {
	Address  string
	Expected string
	Value    interface{}
}

// Error implements the Golang error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("expected %s as a %s, got %T", e.Address, e.Expected, e.Value)
}
