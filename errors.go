package ssgi

import "errors"

// Sentinel errors returned by the pipeline.
var (
	// ErrInvalidOption is returned by New when an option value is out of range.
	ErrInvalidOption = errors.New("ssgi: invalid option")

	// ErrPipelineClosed is returned when closing a pipeline twice.
	ErrPipelineClosed = errors.New("ssgi: pipeline closed")
)
