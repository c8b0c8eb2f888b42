package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gpio-remote/internal/infrastructure/database"
)

const (
	insertQuery = `INSERT INTO mqtt_logs (created_at, topic, message, "user") VALUES (?, ?, ?, ?)`
	selectQuery = `SELECT id, created_at, topic, message, "user" FROM mqtt_logs ORDER BY created_at DESC, id DESC`
)

// Repository reads and writes mqtt_logs through database.DB.
type Repository struct {
	db  *database.DB
	now func() time.Time
}

// NewRepository returns a repository over an open, migrated database.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Insert validates rec, stamps CreatedAt when unset and stores it. The
// stored record, including its generated ID, is returned.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}

	// lib/pq does not implement LastInsertId.
	if r.db.Driver() == database.DriverPostgres {
		err := r.db.QueryRowContext(ctx, insertQuery+" RETURNING id",
			rec.CreatedAt, rec.Topic, rec.Message, rec.User,
		).Scan(&rec.ID)
		if err != nil {
			return Record{}, fmt.Errorf("%w: inserting log: %w", ErrWriteFailed, err)
		}
		return rec, nil
	}

	result, err := r.db.ExecContext(ctx, insertQuery, rec.CreatedAt, rec.Topic, rec.Message, rec.User)
	if err != nil {
		return Record{}, fmt.Errorf("%w: inserting log: %w", ErrWriteFailed, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("%w: reading log id: %w", ErrWriteFailed, err)
	}
	rec.ID = id
	return rec, nil
}

// Write implements Writer.
func (r *Repository) Write(ctx context.Context, rec Record) error {
	_, err := r.Insert(ctx, rec)
	return err
}

// List returns records newest first. A limit of zero or less returns every
// row. The result is never nil.
func (r *Repository) List(ctx context.Context, limit int) ([]Record, error) {
	query := selectQuery
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Topic, &rec.Message, &rec.User); err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating logs: %w", err)
	}
	return records, nil
}
