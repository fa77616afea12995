package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	documentBucket = "documents"
	collectionKey  = "receipts"
)

// BoltRepository is the document-blob backend: the entire receipt
// collection is serialized as one JSON array under a single key. Every
// operation reads the whole array, mutates it in memory, and writes the
// whole array back, so the last writer's full rewrite wins.
type BoltRepository struct {
	db          *bbolt.DB
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewBoltRepository opens the bolt file and prepares the document bucket.
func NewBoltRepository(path string) (*BoltRepository, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	return &BoltRepository{
		db:          db,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}, nil
}

// Initialize ensures the bucket and collection key exist. Calling it again
// never duplicates side effects.
func (b *BoltRepository) Initialize(ctx context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(documentBucket))
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		if bucket.Get([]byte(collectionKey)) == nil {
			if err := bucket.Put([]byte(collectionKey), []byte("[]")); err != nil {
				return fmt.Errorf("seeding collection: %w", err)
			}
		}
		return nil
	})
}

// readCollection loads and decodes the whole array. A missing key reads as
// an empty collection.
func (b *BoltRepository) readCollection(tx *bbolt.Tx) ([]storedReceipt, error) {
	bucket := tx.Bucket([]byte(documentBucket))
	if bucket == nil {
		return []storedReceipt{}, nil
	}
	data := bucket.Get([]byte(collectionKey))
	if data == nil {
		return []storedReceipt{}, nil
	}
	var records []storedReceipt
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshaling receipts: %w", err)
	}
	return records, nil
}

// writeCollection rewrites the whole array under the collection key.
func (b *BoltRepository) writeCollection(tx *bbolt.Tx, records []storedReceipt) error {
	bucket, err := tx.CreateBucketIfNotExists([]byte(documentBucket))
	if err != nil {
		return fmt.Errorf("creating bucket: %w", err)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshaling receipts: %w", err)
	}
	return bucket.Put([]byte(collectionKey), data)
}

// ListAll returns every receipt, most recently created first.
func (b *BoltRepository) ListAll(ctx context.Context) ([]Receipt, error) {
	var receipts []Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		records, err := b.readCollection(tx)
		if err != nil {
			return err
		}
		receipts = make([]Receipt, 0, len(records))
		for _, rec := range records {
			receipts = append(receipts, normalize(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].CreatedAt.After(receipts[j].CreatedAt)
	})
	return receipts, nil
}

// GetByID returns the receipt or nil when the id does not resolve.
func (b *BoltRepository) GetByID(ctx context.Context, id string) (*Receipt, error) {
	var found *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		records, err := b.readCollection(tx)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.ID == id {
				normalized := normalize(rec)
				found = &normalized
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Save assigns a time-based id, applies draft defaults, and prepends the
// record to the collection.
func (b *BoltRepository) Save(ctx context.Context, draft ReceiptDraft) error {
	now := b.timeSource.Now()
	normalized, err := draft.normalized(now)
	if err != nil {
		return err
	}

	rec := b.recordFromDraft(b.idGenerator.Generate(), normalized, now, now)
	return b.db.Update(func(tx *bbolt.Tx) error {
		records, err := b.readCollection(tx)
		if err != nil {
			return err
		}
		records = append([]storedReceipt{rec}, records...)
		return b.writeCollection(tx, records)
	})
}

// Update replaces the stored record, keeping existing values for omitted
// fields and fully replacing the item set.
func (b *BoltRepository) Update(ctx context.Context, id string, patch ReceiptPatch) error {
	now := b.timeSource.Now()
	return b.db.Update(func(tx *bbolt.Tx) error {
		records, err := b.readCollection(tx)
		if err != nil {
			return err
		}
		for i, rec := range records {
			if rec.ID != id {
				continue
			}
			existing := normalize(rec)
			draft, err := patch.merged(existing, now)
			if err != nil {
				return err
			}
			updated := b.recordFromDraft(id, draft, existing.CreatedAt, now)
			records[i] = updated
			return b.writeCollection(tx, records)
		}
		return fmt.Errorf("updating receipt %s: %w", id, ErrNotFound)
	})
}

// Delete filters the receipt out of the top-level array. Items are
// embedded, so no separate step is needed.
func (b *BoltRepository) Delete(ctx context.Context, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		records, err := b.readCollection(tx)
		if err != nil {
			return err
		}
		kept := records[:0]
		for _, rec := range records {
			if rec.ID != id {
				kept = append(kept, rec)
			}
		}
		return b.writeCollection(tx, kept)
	})
}

// Close closes the bolt handle.
func (b *BoltRepository) Close() error {
	return b.db.Close()
}

// recordFromDraft builds the stored shape for a normalized draft, assigning
// time-based item ids.
func (b *BoltRepository) recordFromDraft(id string, draft ReceiptDraft, createdAt, updatedAt time.Time) storedReceipt {
	items := make([]storedItem, 0, len(draft.Items))
	for i, item := range draft.Items {
		items = append(items, storedItem{
			ID:       fmt.Sprintf("%s-%d", b.idGenerator.Generate(), i),
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			Category: item.Category,
		})
	}
	return storedReceipt{
		ID:           id,
		MerchantName: draft.MerchantName,
		Date:         draft.Date,
		TotalAmount:  draft.TotalAmount,
		TaxAmount:    &draft.TaxAmount,
		ImageURI:     draft.ImageURI,
		Category:     string(draft.Category),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		Items:        items,
	}
}
