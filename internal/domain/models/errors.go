package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when a series is too short for the configured window.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrModelNotReady is returned when prediction is requested before fit or load.
	ErrModelNotReady = errors.New("model not ready")
	// ErrInvalidPrice is returned for a non-positive or non-finite price.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrMalformedSeries is returned for missing fields, non-finite values or unsortable timestamps.
	ErrMalformedSeries = errors.New("malformed series")
	// ErrRunCancelled marks a backtest aborted between steps. Results returned with it are partial.
	ErrRunCancelled = errors.New("run cancelled")
	// ErrAgentNotFound is returned by agent stores for unknown ids.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrInvalidRequest marks caller input that can never succeed, such as a
	// malformed agent id or an inconsistent position.
	ErrInvalidRequest = errors.New("invalid request")
)

// SeriesError locates an ingestion failure inside a series.
// Kind is ErrMalformedSeries or ErrInvalidPrice.
type SeriesError struct {
	Index  int
	Field  string
	Reason string
	Kind   error
}

func (e *SeriesError) Error() string {
	kind := ErrMalformedSeries
	if e.Kind != nil {
		kind = e.Kind
	}
	if e.Index < 0 {
		return fmt.Sprintf("%v: %s: %s", kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("%v: bar %d: %s: %s", kind, e.Index, e.Field, e.Reason)
}

func (e *SeriesError) Unwrap() error {
	if e.Kind == nil {
		return ErrMalformedSeries
	}
	return e.Kind
}
