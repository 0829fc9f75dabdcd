package core

import "fmt"

var (
	// ErrInvalidInput is returned when admit arguments are malformed (empty
	// content, importance outside [0,1]). Caller's fault, never retried.
	ErrInvalidInput = fmt.Errorf("invalid input")

	// ErrNotFound is returned for operations addressing an unknown id or an
	// archived item. Archived items are tombstones; touching one is a lookup
	// failure, not a revival.
	ErrNotFound = fmt.Errorf("memory item not found")
)
