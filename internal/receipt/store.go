package receipt

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Store is the process-wide holder of the canonical receipt list and chat
// message log.
//
// Every mutating call writes through the Repository and then reloads the
// full set from it rather than patching memory in place, so after any
// mutation resolves the in-memory list equals a fresh ListAll. Overlapping
// mutations are not serialized against each other; if two race, the last
// reload to land determines the visible state.
type Store struct {
	repo       Repository
	snapshots  Snapshotter
	timeSource TimeSource

	mu       sync.RWMutex
	receipts []Receipt
	messages []ChatMessage
	loading  bool
	lastErr  string
}

// NewStore builds a store and restores the previous snapshot if one
// exists. Restored data is provisional until InitializeDatabase completes
// a real load.
func NewStore(repo Repository, snapshots Snapshotter) *Store {
	s := &Store{
		repo:       repo,
		snapshots:  snapshots,
		timeSource: &defaultTimeSource{},
		receipts:   []Receipt{},
		messages:   []ChatMessage{},
	}
	if snapshots != nil {
		snapshot, err := snapshots.Load()
		if err != nil {
			slog.Warn("Failed to restore snapshot", "error", err)
		} else if snapshot != nil {
			s.receipts = snapshot.Receipts
			s.messages = snapshot.ChatMessages
			if s.receipts == nil {
				s.receipts = []Receipt{}
			}
			if s.messages == nil {
				s.messages = []ChatMessage{}
			}
		}
	}
	return s
}

// NewStoreWithDeps builds a store with a custom time source for testing.
func NewStoreWithDeps(repo Repository, snapshots Snapshotter, timeSource TimeSource) *Store {
	s := NewStore(repo, snapshots)
	s.timeSource = timeSource
	return s
}

// InitializeDatabase initializes the backend then performs the first full
// load.
func (s *Store) InitializeDatabase(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	if err := s.repo.Initialize(ctx); err != nil {
		s.recordError(err)
		return err
	}
	return s.reload(ctx)
}

// LoadReceipts refreshes the in-memory list from the backend.
func (s *Store) LoadReceipts(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)
	return s.reload(ctx)
}

// AddReceipt persists a draft then reloads the full set.
func (s *Store) AddReceipt(ctx context.Context, draft ReceiptDraft) error {
	s.setLoading(true)
	defer s.setLoading(false)

	if err := s.repo.Save(ctx, draft); err != nil {
		s.recordError(err)
		return err
	}
	return s.reload(ctx)
}

// UpdateReceipt applies a partial update then reloads the full set.
func (s *Store) UpdateReceipt(ctx context.Context, id string, patch ReceiptPatch) error {
	s.setLoading(true)
	defer s.setLoading(false)

	if err := s.repo.Update(ctx, id, patch); err != nil {
		s.recordError(err)
		return err
	}
	return s.reload(ctx)
}

// DeleteReceipt removes a receipt then reloads the full set.
func (s *Store) DeleteReceipt(ctx context.Context, id string) error {
	s.setLoading(true)
	defer s.setLoading(false)

	if err := s.repo.Delete(ctx, id); err != nil {
		s.recordError(err)
		return err
	}
	return s.reload(ctx)
}

// reload replaces the published list with a fresh ListAll. On failure the
// previously loaded list stays untouched and the error is recorded.
func (s *Store) reload(ctx context.Context) error {
	receipts, err := s.repo.ListAll(ctx)
	if err != nil {
		s.recordError(err)
		return err
	}

	s.mu.Lock()
	s.receipts = receipts
	s.lastErr = ""
	s.mu.Unlock()

	s.persistSnapshot()
	return nil
}

// Receipts returns the current canonical list.
func (s *Store) Receipts() []Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out
}

// ChatMessages returns the current chat log.
func (s *Store) ChatMessages() []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// IsLoading reports whether a store operation is in flight.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the human-readable error from the last failed operation, or
// empty after a successful load.
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// GetReceiptByID returns the in-memory receipt with the given id, or nil.
// Synchronous and side-effect-free.
func (s *Store) GetReceiptByID(id string) *Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.receipts {
		if s.receipts[i].ID == id {
			r := s.receipts[i]
			return &r
		}
	}
	return nil
}

// GetReceiptsByCategory returns the in-memory receipts tagged with the
// given receipt-level category.
func (s *Store) GetReceiptsByCategory(category Category) []Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Receipt, 0)
	for _, r := range s.receipts {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// GetTotalSpending returns the summed effective total of every receipt.
func (s *Store) GetTotalSpending() float64 {
	return s.GetSpendingInsights().TotalSpending
}

// GetCategorySpending returns receipt-level spending by category.
func (s *Store) GetCategorySpending() map[string]float64 {
	return s.GetSpendingInsights().CategorySpending
}

// GetSpendingInsights recomputes the full analytics over the current list.
func (s *Store) GetSpendingInsights() Insights {
	s.mu.RLock()
	receipts := make([]Receipt, len(s.receipts))
	copy(receipts, s.receipts)
	s.mu.RUnlock()
	return ComputeInsights(receipts)
}

// AddChatMessage appends to the chat log and returns the stored message.
func (s *Store) AddChatMessage(text string, isUser bool) ChatMessage {
	message := ChatMessage{
		ID:        uuid.NewString(),
		Text:      text,
		IsUser:    isUser,
		Timestamp: s.timeSource.Now(),
	}

	s.mu.Lock()
	s.messages = append(s.messages, message)
	s.mu.Unlock()

	s.persistSnapshot()
	return message
}

// ClearChatHistory empties the chat log.
func (s *Store) ClearChatHistory() {
	s.mu.Lock()
	s.messages = []ChatMessage{}
	s.mu.Unlock()

	s.persistSnapshot()
}

// persistSnapshot writes the current state to the snapshot slot. Failures
// are logged, not surfaced; the durable source of truth is the Repository.
func (s *Store) persistSnapshot() {
	if s.snapshots == nil {
		return
	}

	s.mu.RLock()
	snapshot := Snapshot{
		Receipts:     make([]Receipt, len(s.receipts)),
		ChatMessages: make([]ChatMessage, len(s.messages)),
	}
	copy(snapshot.Receipts, s.receipts)
	copy(snapshot.ChatMessages, s.messages)
	s.mu.RUnlock()

	if err := s.snapshots.Save(snapshot); err != nil {
		slog.Warn("Failed to persist snapshot", "error", err)
	}
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

func (s *Store) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}
