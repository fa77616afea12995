package receipt

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// connectRetryDelay is the pause before the single reconnect attempt.
const connectRetryDelay = 250 * time.Millisecond

// SQLiteRepository is the relational backend: a receipts table plus a
// receipt_items table foreign-keyed to it with cascading delete. One
// shared handle is opened lazily on first use and reused by every
// operation.
type SQLiteRepository struct {
	dsn        string
	timeSource TimeSource

	mu sync.Mutex
	db *sqlx.DB
}

// NewSQLiteRepository prepares a repository for the given DSN. The
// connection is not opened until the first operation needs it.
func NewSQLiteRepository(dsn string) *SQLiteRepository {
	return &SQLiteRepository{
		dsn:        dsn,
		timeSource: &defaultTimeSource{},
	}
}

// conn returns the shared handle, opening it on first use. A failed first
// attempt is retried once after a short delay; if both fail the error
// wraps ErrConnection and must be surfaced upward, not retried in-call.
func (s *SQLiteRepository) conn(ctx context.Context) (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", s.dsn)
	if err != nil || db == nil {
		slog.Warn("Database connection failed, retrying", "error", err)
		time.Sleep(connectRetryDelay)
		db, err = sqlx.ConnectContext(ctx, "sqlite", s.dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if db == nil {
		return nil, fmt.Errorf("%w: no usable handle", ErrConnection)
	}

	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s.db = db
	return s.db, nil
}

// Initialize creates the schema if absent and runs the forward migration
// that adds the category column to pre-existing tables. The migration
// failing because the column already exists is a no-op.
func (s *SQLiteRepository) Initialize(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS receipts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            merchant_name TEXT NOT NULL,
            date TEXT NOT NULL,
            total_amount REAL NOT NULL DEFAULT 0,
            tax_amount REAL NOT NULL DEFAULT 0,
            image_uri TEXT,
            category TEXT DEFAULT 'Other',
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS receipt_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            receipt_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            quantity INTEGER NOT NULL DEFAULT 1,
            price REAL NOT NULL DEFAULT 0,
            category TEXT,
            FOREIGN KEY (receipt_id) REFERENCES receipts(id) ON DELETE CASCADE
        );`,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `ALTER TABLE receipts ADD COLUMN category TEXT DEFAULT 'Other'`); err != nil {
		slog.Debug("Category column migration skipped", "reason", err)
	}
	return nil
}

// receiptRow mirrors one receipts row.
type receiptRow struct {
	ID           int64          `db:"id"`
	MerchantName string         `db:"merchant_name"`
	Date         string         `db:"date"`
	TotalAmount  float64        `db:"total_amount"`
	TaxAmount    float64        `db:"tax_amount"`
	ImageURI     sql.NullString `db:"image_uri"`
	Category     sql.NullString `db:"category"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// itemRow mirrors one receipt_items row.
type itemRow struct {
	ID        int64          `db:"id"`
	ReceiptID int64          `db:"receipt_id"`
	Name      string         `db:"name"`
	Quantity  int            `db:"quantity"`
	Price     float64        `db:"price"`
	Category  sql.NullString `db:"category"`
}

// stored converts a row pair into the boundary shape feeding the shared
// normalizer, so relational reads follow the same alias rules as
// document reads.
func stored(row receiptRow, items []itemRow) storedReceipt {
	total := row.TotalAmount
	tax := row.TaxAmount
	rec := storedReceipt{
		ID:           strconv.FormatInt(row.ID, 10),
		MerchantName: row.MerchantName,
		Date:         row.Date,
		TotalAmount:  &total,
		TaxAmount:    &tax,
		ImageURI:     row.ImageURI.String,
		Category:     row.Category.String,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	for _, item := range items {
		rec.Items = append(rec.Items, storedItem{
			ID:       strconv.FormatInt(item.ID, 10),
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			Category: item.Category.String,
		})
	}
	return rec
}

// ListAll returns every receipt with items attached, most recent first.
func (s *SQLiteRepository) ListAll(ctx context.Context) ([]Receipt, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []receiptRow
	if err := db.SelectContext(ctx, &rows, `SELECT * FROM receipts ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}

	receipts := make([]Receipt, 0, len(rows))
	for _, row := range rows {
		items, err := s.itemsFor(ctx, db, row.ID)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, normalize(stored(row, items)))
	}
	return receipts, nil
}

// GetByID returns the receipt or nil when the id does not resolve.
func (s *SQLiteRepository) GetByID(ctx context.Context, id string) (*Receipt, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, nil
	}

	var row receiptRow
	if err := db.GetContext(ctx, &row, `SELECT * FROM receipts WHERE id = ?`, numericID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("getting receipt: %w", err)
	}

	items, err := s.itemsFor(ctx, db, row.ID)
	if err != nil {
		return nil, err
	}
	receipt := normalize(stored(row, items))
	return &receipt, nil
}

func (s *SQLiteRepository) itemsFor(ctx context.Context, db *sqlx.DB, receiptID int64) ([]itemRow, error) {
	var items []itemRow
	if err := db.SelectContext(ctx, &items, `SELECT * FROM receipt_items WHERE receipt_id = ? ORDER BY id`, receiptID); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// Save writes the receipt then its items in one transaction.
func (s *SQLiteRepository) Save(ctx context.Context, draft ReceiptDraft) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	now := s.timeSource.Now()
	normalized, err := draft.normalized(now)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO receipts (merchant_name, date, total_amount, tax_amount, image_uri, category, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		normalized.MerchantName, normalized.Date, *normalized.TotalAmount, normalized.TaxAmount,
		nullable(normalized.ImageURI), string(normalized.Category), now, now)
	if err != nil {
		return fmt.Errorf("inserting receipt: %w", err)
	}
	receiptID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted id: %w", err)
	}

	if err := insertItems(ctx, tx, receiptID, normalized.Items); err != nil {
		return err
	}
	return tx.Commit()
}

// Update fetches the existing record to supply fallbacks for omitted
// fields, fully replaces the item set, and refreshes updated_at.
func (s *SQLiteRepository) Update(ctx context.Context, id string, patch ReceiptPatch) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("updating receipt %s: %w", id, ErrNotFound)
	}

	now := s.timeSource.Now()
	draft, err := patch.merged(*existing, now)
	if err != nil {
		return err
	}

	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	numericID, _ := strconv.ParseInt(id, 10, 64)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE receipts SET merchant_name = ?, date = ?, total_amount = ?, tax_amount = ?, image_uri = ?, category = ?, updated_at = ?
         WHERE id = ?`,
		draft.MerchantName, draft.Date, *draft.TotalAmount, draft.TaxAmount,
		nullable(draft.ImageURI), string(draft.Category), now, numericID); err != nil {
		return fmt.Errorf("updating receipt: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM receipt_items WHERE receipt_id = ?`, numericID); err != nil {
		return fmt.Errorf("clearing items: %w", err)
	}
	if err := insertItems(ctx, tx, numericID, draft.Items); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes the receipt; cascading delete covers its items.
func (s *SQLiteRepository) Delete(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM receipts WHERE id = ?`, numericID); err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	return nil
}

// Close closes the shared handle if it was ever opened.
func (s *SQLiteRepository) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func insertItems(ctx context.Context, tx *sqlx.Tx, receiptID int64, items []ItemDraft) error {
	for _, item := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO receipt_items (receipt_id, name, quantity, price, category) VALUES (?, ?, ?, ?, ?)`,
			receiptID, item.Name, item.Quantity, item.Price, item.Category); err != nil {
			return fmt.Errorf("inserting item: %w", err)
		}
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
