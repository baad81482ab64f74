package models

import "errors"

var (
	// ErrInvalidRange is returned for a filter with min > max, or a negative radius.
	ErrInvalidRange = errors.New("invalid range")

	// ErrLabelNotFound is returned when an object has no annotation record.
	// Losing a record silently would corrupt an output row, so callers must abort the image.
	ErrLabelNotFound = errors.New("label not found")

	// ErrDuplicateID is returned when two objects annotated together share an ID.
	ErrDuplicateID = errors.New("duplicate object id")

	// ErrSegmentationUnavailable wraps failures of the external segmenter, including
	// malformed output (wrong shape).
	ErrSegmentationUnavailable = errors.New("segmentation unavailable")
)
