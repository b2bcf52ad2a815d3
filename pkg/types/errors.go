package types

import "errors"

// Pipeline errors shared across components.
var (
	// ErrNoTiles reports that no elevation tiles intersect a watershed's
	// bounding box. The watershed is unresolvable, not the batch.
	ErrNoTiles = errors.New("no elevation tiles intersect bounding box")

	// ErrUnmetDependency reports that a task could not run because an
	// upstream task failed or was never going to complete.
	ErrUnmetDependency = errors.New("unmet task dependency")

	// ErrSchedulerClosed reports a task submitted after Close.
	ErrSchedulerClosed = errors.New("scheduler is closed")

	// ErrShapeMismatch reports raster algebra inputs that do not share
	// shape, bounds, and pixel size.
	ErrShapeMismatch = errors.New("input rasters are not aligned")

	// ErrStoreClosed reports an operation on a closed result store.
	ErrStoreClosed = errors.New("result store is closed")
)
