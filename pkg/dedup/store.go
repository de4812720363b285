// Package dedup provides the processed-message-id store shared across
// restarts. Identifiers are append-only: entries are never removed, an
// accepted tradeoff for an audit trail of everything the relay has handled.
package dedup

import (
	"context"
	"io"
)

// Store is the contract for the deduplication set. A message identifier
// present in the store must never be processed again by the pipeline.
type Store interface {
	// Seen reports whether the identifier has already been marked processed.
	Seen(ctx context.Context, id string) (bool, error)
	// Mark records the identifier durably. It must not return until the
	// record is persisted: a Mark failure is fatal for the message being
	// processed and must be surfaced by the caller.
	Mark(ctx context.Context, id string) error
	// Closer is included for implementations that manage files or network
	// connections.
	io.Closer
}
