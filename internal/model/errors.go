package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a symbol does not resolve or an upstream series is empty.
var ErrNotFound = errors.New("not found")

// ErrUpstream matches every *UpstreamError via errors.Is.
var ErrUpstream = errors.New("upstream error")

// UpstreamError describes a failed or malformed provider response.
type UpstreamError struct {
	Op     string // e.g. "TaiwanStockPrice"
	Status int    // HTTP or payload status, 0 if unknown
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }
