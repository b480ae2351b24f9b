package models

import "errors"

var (
	// ErrNotFound — запись не найдена (план, зона и т.п.).
	ErrNotFound = errors.New("not found")

	// ErrConcurrencyConflict is returned when a geometry write loses the race
	// against a concurrent recompute of the same plan.
	ErrConcurrencyConflict = errors.New("geometry version conflict")
)
