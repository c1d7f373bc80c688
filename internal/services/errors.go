package services

import (
	"fmt"

	"github.com/pkg/errors"
)

// Service-level failure classes. Handlers map these onto HTTP statuses;
// everything else surfaces as an internal error.
var (
	// ErrNotFound marks a lookup of an order or sub-resource that does
	// not exist within the caller's location.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a guarded write that lost to a concurrent
	// transition even after a re-read and retry.
	ErrConflict = errors.New("order was modified concurrently")

	// ErrPermissionDenied marks a caller lacking the permission class
	// the requested action requires.
	ErrPermissionDenied = errors.New("permission denied")
)

// ReferenceNotFoundError marks an action parameter that points at a
// missing or inactive reference row (rider, courier, hold reason,
// sample product).
type ReferenceNotFoundError struct {
	Kind string
	ID   string
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found or inactive", e.Kind, e.ID)
}

// IngestionError wraps a reconciliation failure with the classification
// stored on the captured event record.
type IngestionError struct {
	Reason string
	Err    error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed (%s): %v", e.Reason, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// Ingestion failure classifications persisted on captured events
const (
	IngestReasonMalformed = "malformed_payload"
	IngestReasonReference = "reference_resolution"
	IngestReasonStorage   = "storage"
)
