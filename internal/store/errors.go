package store

import "errors"

var (
	// ErrConflict reports that a transaction could not commit because a key it read
	// was changed concurrently, and the retry budget was exhausted.
	ErrConflict = errors.New("store: transaction conflict")
	// ErrUnavailable wraps backend I/O failures. It is transient and distinct from
	// every logical outcome produced by a transaction function.
	ErrUnavailable = errors.New("store: backend unavailable")
	// ErrWrongType is returned when a primitive is applied to a key holding another type.
	ErrWrongType = errors.New("store: operation against a key holding the wrong kind of value")
	// ErrNotInteger is returned by increments against non-integer values.
	ErrNotInteger = errors.New("store: value is not an integer")
	// ErrInvalidScore is returned when a sorted set score is NaN or infinite.
	ErrInvalidScore = errors.New("store: score is not a finite number")
	// ErrReadOnly is returned by write primitives inside View.
	ErrReadOnly = errors.New("store: write attempted in read-only transaction")
	// ErrLeaseBusy is returned when a lease is currently held by someone else.
	ErrLeaseBusy = errors.New("store: lease busy")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)
