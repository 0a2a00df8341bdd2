package stage

import "errors"

var (
	// ErrObjectNotFound is returned for an unknown object ID.
	ErrObjectNotFound = errors.New("stage: object not found")

	// ErrClosed is returned by methods called after Close.
	ErrClosed = errors.New("stage: engine closed")

	// ErrNoWorkers is returned by Execute when the engine has no worker pool.
	ErrNoWorkers = errors.New("stage: no worker pool configured")

	// ErrNoAssets is returned by Image when the engine has no asset store.
	ErrNoAssets = errors.New("stage: no asset store configured")
)
