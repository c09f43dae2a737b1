package pool

import "errors"

var (
	// ErrPoolClosed is returned when submitting to a released pool.
	ErrPoolClosed = errors.New("pool closed")

	// ErrPoolNotFound is returned by Get/Submit for an unregistered pool name.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrPoolAlreadyExists is returned by Register for a duplicate name.
	ErrPoolAlreadyExists = errors.New("pool already exists")

	// ErrManagerNotInitialized is returned by the package-level helpers when the global manager could not be initialized.
	ErrManagerNotInitialized = errors.New("pool manager not initialized")
)
