package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/roelvdh/marktwatch/migrations"
	"github.com/roelvdh/marktwatch/pkg/models"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

const listingColumns = `id, target, title, price, url, image_url, description,
	seller, location, posted, condition, category, attributes, created_at`

// ListingsByTarget returns all stored listings for one target.
func (s *SQLite) ListingsByTarget(ctx context.Context, target string) ([]models.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE target = ? ORDER BY id`, target,
	)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanListings(rows)
}

// AllListings returns every stored listing across all targets, newest first.
func (s *SQLite) AllListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query all listings: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanListings(rows)
}

// ReplaceListings replaces the target's stored set in one transaction:
// delete everything for the target, then bulk-insert the extracted batch
// deduplicated by (title, price, url) against itself and against any row still
// present in the table. Returns the number of rows written.
//
// Callers needing the previous snapshot for diffing must read it with
// ListingsByTarget before calling; the delete here destroys it.
func (s *SQLite) ReplaceListings(ctx context.Context, target string, extracted []models.Listing) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE target = ?`, target); err != nil {
		return 0, fmt.Errorf("delete listings: %w", err)
	}

	exists, err := tx.PrepareContext(ctx,
		`SELECT COUNT(*) FROM listings WHERE target = ? AND title = ? AND price = ? AND url = ?`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare exists: %w", err)
	}
	defer func() { _ = exists.Close() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO listings (target, title, price, url, image_url, description,
		 seller, location, posted, condition, category, attributes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	inserted := 0
	batch := make(map[models.ListingKey]bool, len(extracted))
	for _, l := range extracted {
		key := l.Key()
		if batch[key] {
			continue
		}
		batch[key] = true

		// Belt and braces: the delete above normally leaves nothing to match,
		// but the check keeps the uniqueness invariant if the write order
		// ever changes.
		var count int
		if err := exists.QueryRowContext(ctx, target, l.Title, l.Price, l.URL).Scan(&count); err != nil {
			return inserted, fmt.Errorf("check existing listing: %w", err)
		}
		if count > 0 {
			continue
		}

		attrs, err := json.Marshal(l.Attributes)
		if err != nil {
			return inserted, fmt.Errorf("marshal attributes: %w", err)
		}
		createdAt := l.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			target, l.Title, l.Price, l.URL, l.ImageURL, l.Description,
			l.Seller, l.Location, l.Posted, l.Condition, l.Category,
			string(attrs), createdAt.Format(timeLayout),
		); err != nil {
			return inserted, fmt.Errorf("insert listing: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// LatestListingTime returns the creation time of the most recent stored
// listing, or the zero time when the store is empty.
func (s *SQLite) LatestListingTime(ctx context.Context) (time.Time, error) {
	var created sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM listings`).Scan(&created)
	if err != nil {
		return time.Time{}, fmt.Errorf("query latest listing time: %w", err)
	}
	if !created.Valid || created.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, created.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse latest listing time: %w", err)
	}
	return t, nil
}

// GetSetting loads one JSON-serialized settings section into out.
// Returns false when the key has never been written.
func (s *SQLite) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query setting %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("decode setting %q: %w", key, err)
	}
	return true, nil
}

// SetSetting stores one settings section as JSON under key.
func (s *SQLite) SetSetting(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, string(data),
	)
	if err != nil {
		return fmt.Errorf("store setting %q: %w", key, err)
	}
	return nil
}

func scanListings(rows *sql.Rows) ([]models.Listing, error) {
	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		var attrs, created string
		err := rows.Scan(&l.ID, &l.Target, &l.Title, &l.Price, &l.URL, &l.ImageURL,
			&l.Description, &l.Seller, &l.Location, &l.Posted, &l.Condition,
			&l.Category, &attrs, &created)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &l.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		l.CreatedAt, _ = time.Parse(timeLayout, created)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
