package models

import "errors"

var (
	// ErrServiceUnavailable is returned when an embedding or advisory backend
	// cannot be reached or does not answer within the deadline.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrDimensionMismatch is returned when chunk and vector counts disagree
	// or a vector has the wrong length.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrNotFound is returned when a persisted index artifact is missing.
	ErrNotFound = errors.New("not found")

	// ErrCorruptIndex is returned when the two index artifacts disagree.
	ErrCorruptIndex = errors.New("corrupt index")

	ErrEmptyText         = errors.New("empty text")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)
