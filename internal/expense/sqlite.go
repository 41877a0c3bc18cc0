package expense

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dbPath and brings its schema up to
// date.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; concurrent commits queue on the pool.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create inserts a record and reads it back.
func (s *SQLiteStore) Create(ctx context.Context, r *Record) (string, error) {
	if r.ID == "" {
		return "", errors.New("expense id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, description, amount, category, type, date, user_id, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Description, r.Amount, r.Category, r.Type,
		r.Date.UTC().Format(timeLayout), r.UserID, r.Note, r.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert expense: %w", err)
	}

	if _, err := s.Get(ctx, r.ID); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCreateNotVerified, r.ID, err)
	}
	return r.ID, nil
}

// Get retrieves a record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, description, amount, category, type, date, user_id, note, created_at
		 FROM expenses WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return r, nil
}

// List returns records newest first.
func (s *SQLiteStore) List(ctx context.Context, userID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, amount, category, type, date, user_id, note, created_at
		 FROM expenses WHERE (? = '' OR user_id = ?)
		 ORDER BY date DESC, created_at DESC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Delete removes a record and checks both the affected row count and the
// table afterwards.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var remaining int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses WHERE id = ?`, id).Scan(&remaining); err != nil {
		return fmt.Errorf("verify delete: %w", err)
	}
	if remaining != 0 {
		return fmt.Errorf("%w: %s", ErrDeleteNotVerified, id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		r               Record
		date, createdAt string
	)
	if err := row.Scan(&r.ID, &r.Description, &r.Amount, &r.Category, &r.Type, &date, &r.UserID, &r.Note, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if r.Date, err = time.Parse(timeLayout, date); err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}
	if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &r, nil
}
