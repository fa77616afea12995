package receipt

import (
	"context"
	"fmt"
	"time"
)

// Repository is the uniform asynchronous CRUD+list contract over receipts
// and their items, regardless of backend.
type Repository interface {
	// Initialize ensures the schema or storage key exists. Idempotent and
	// safe to call from multiple call sites.
	Initialize(ctx context.Context) error

	// ListAll returns every receipt with its items attached, most recently
	// created first.
	ListAll(ctx context.Context) ([]Receipt, error)

	// GetByID returns one receipt with items, or nil when the id does not
	// resolve. A missing id is not an error.
	GetByID(ctx context.Context, id string) (*Receipt, error)

	// Save assigns a new id and writes the receipt and its items. Callers
	// observe the assigned id by re-listing.
	Save(ctx context.Context, draft ReceiptDraft) error

	// Update replaces the stored record, using the existing one for every
	// field the patch omits, and fully replaces the item set. Returns
	// ErrNotFound when the id does not resolve.
	Update(ctx context.Context, id string, patch ReceiptPatch) error

	// Delete removes the receipt and its items. Deleting a missing id is a
	// no-op.
	Delete(ctx context.Context, id string) error

	// Close releases the backend handle.
	Close() error
}

// Backend selects a Repository implementation. The choice is made once at
// startup; business logic never branches on it.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendBolt   Backend = "bolt"
)

// NewRepository is the backend factory.
func NewRepository(backend Backend, path string) (Repository, error) {
	switch backend {
	case BackendSQLite:
		return NewSQLiteRepository(path), nil
	case BackendBolt:
		return NewBoltRepository(path)
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// IDGenerator generates unique IDs for records on backends without
// native id assignment.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamps.
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTimeSource provides the current wall-clock time.
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}
