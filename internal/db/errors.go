package db

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrAlreadyResolved is returned by the conditional review update
	// when the row left the pending state before this writer got there.
	ErrAlreadyResolved = errors.New("review already resolved")
)
