package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kjstillabower/daymate-service/internal/models"
)

// SQLiteStore is a PlanStore backed by a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_plans (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			location_name TEXT NOT NULL,
			plan          TEXT NOT NULL,
			created_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_daily_plans_user ON daily_plans(user_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Save inserts rec. created_at is stored as unix nanoseconds.
func (s *SQLiteStore) Save(ctx context.Context, rec models.PlanRecord) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	planJSON, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("encoding plan %s: %w", rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO daily_plans (id, user_id, location_name, plan, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.LocationName, string(planJSON), rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving plan %s: %w", rec.ID, err)
	}
	return nil
}

// FindByOwner returns the owner's records, newest first.
func (s *SQLiteStore) FindByOwner(ctx context.Context, ownerID string) ([]models.PlanRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, location_name, plan, created_at FROM daily_plans
		 WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying plans: %w", err)
	}
	defer rows.Close()

	var out []models.PlanRecord
	for rows.Next() {
		var (
			rec      models.PlanRecord
			planJSON string
			created  int64
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.LocationName, &planJSON, &created); err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		if err := json.Unmarshal([]byte(planJSON), &rec.Plan); err != nil {
			return nil, fmt.Errorf("decoding plan %s: %w", rec.ID, err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
