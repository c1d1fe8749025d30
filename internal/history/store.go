package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		pro INTEGER NOT NULL,
		documentIds TEXT NOT NULL DEFAULT '[]',
		proDocumentId TEXT NOT NULL DEFAULT '',
		documentName TEXT NOT NULL DEFAULT '',
		query TEXT NOT NULL,
		status TEXT NOT NULL,
		modelUsed TEXT NOT NULL DEFAULT '',
		result TEXT,
		findings TEXT,
		createdAt REAL,
		position INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS analyses_position ON analyses(pro, position);
`

// Store is the local SQLite mirror of analysis history. It keeps the last
// list seen from the backend so history survives a backend outage.
type Store struct {
	db *sql.DB
}

// Open opens or creates the mirror at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Replace swaps the mirrored list for one mode. entries are most recent
// first.
func (s *Store) Replace(ctx context.Context, pro bool, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM analyses WHERE pro = ?`, pro); err != nil {
		return fmt.Errorf("clear analyses: %w", err)
	}
	n := len(entries)
	for i, e := range entries {
		if err := insert(ctx, tx, pro, e, n-i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Save inserts or updates one entry and makes it the most recent.
func (s *Store) Save(ctx context.Context, pro bool, e Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var top int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM analyses WHERE pro = ?`, pro,
	).Scan(&top); err != nil {
		return fmt.Errorf("query position: %w", err)
	}
	if err := insert(ctx, tx, pro, e, top+1); err != nil {
		return err
	}
	return tx.Commit()
}

func insert(ctx context.Context, tx *sql.Tx, pro bool, e Entry, position int) error {
	docIDs, err := json.Marshal(nonNil(e.DocumentIDs))
	if err != nil {
		return fmt.Errorf("marshal document ids: %w", err)
	}
	var createdAt sql.NullFloat64
	if !e.CreatedAt.IsZero() {
		createdAt = sql.NullFloat64{Float64: unixFromTime(e.CreatedAt), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO analyses
			(id, pro, documentIds, proDocumentId, documentName, query, status,
			 modelUsed, result, findings, createdAt, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, pro, string(docIDs), e.ProDocumentID, e.DocumentName, e.Query, e.Status,
		e.ModelUsed, nullJSON(e.Result), nullJSON(e.Findings), createdAt, position)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// List returns the mirrored entries for one mode, most recent first.
func (s *Store) List(ctx context.Context, pro bool) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, documentIds, proDocumentId, documentName, query, status,
			modelUsed, result, findings, createdAt
		FROM analyses
		WHERE pro = ?
		ORDER BY position DESC
	`, pro)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one entry, or nil if it is not mirrored.
func (s *Store) Get(ctx context.Context, pro bool, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, documentIds, proDocumentId, documentName, query, status,
			modelUsed, result, findings, createdAt
		FROM analyses
		WHERE pro = ? AND id = ?
	`, pro, id)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Delete removes one entry. Deleting a missing entry is not an error.
func (s *Store) Delete(ctx context.Context, pro bool, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE pro = ? AND id = ?`, pro, id); err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	return nil
}

// MostRecentComplete returns the newest complete entry covering documentID,
// or nil.
func (s *Store) MostRecentComplete(ctx context.Context, pro bool, documentID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, documentIds, proDocumentId, documentName, query, status,
			modelUsed, result, findings, createdAt
		FROM analyses
		WHERE pro = ? AND status = ?
			AND (proDocumentId = ?
				OR EXISTS (SELECT 1 FROM json_each(analyses.documentIds) WHERE value = ?))
		ORDER BY position DESC
		LIMIT 1
	`, pro, StatusComplete, documentID, documentID)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var e Entry
	var docIDs string
	var result, findings sql.NullString
	var createdAt sql.NullFloat64

	if err := sc.Scan(&e.ID, &docIDs, &e.ProDocumentID, &e.DocumentName, &e.Query,
		&e.Status, &e.ModelUsed, &result, &findings, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan analysis: %w", err)
	}

	if err := json.Unmarshal([]byte(docIDs), &e.DocumentIDs); err != nil {
		return Entry{}, fmt.Errorf("unmarshal document ids: %w", err)
	}
	if len(e.DocumentIDs) == 0 {
		e.DocumentIDs = nil
	}
	if result.Valid {
		e.Result = json.RawMessage(result.String)
	}
	if findings.Valid {
		e.Findings = json.RawMessage(findings.String)
	}
	if createdAt.Valid {
		e.CreatedAt = timeFromUnix(createdAt.Float64)
	}
	return e, nil
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
