// Package artifact persists generated booking-form documents. The
// orchestrator writes each artifact exactly once; the sweeper only ever
// reads, which is what keeps a retried notification byte-identical to the
// original.
package artifact

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound indicates no artifact exists at the requested path.
var ErrNotFound = errors.New("artifact not found")

// Store is a minimal object store for rendered documents.
type Store interface {
	// Put writes data at path, overwriting any existing object.
	Put(ctx context.Context, path string, data []byte) error
	// Get reads the object at path, or ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)
}

// namespace is the fixed prefix all booking-form artifacts live under.
const namespace = "booking-forms"

// BookingFormPath returns the deterministic storage path for an invoice's
// booking form.
func BookingFormPath(invoiceID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", namespace, invoiceID, filename)
}
