package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/boardharvest/internal/model"
)

// insertChunk bounds the rows per INSERT statement
const insertChunk = 200

var recordColumns = []string{"board", "id", "sequence", "sort_time", "url", "fields", "enriched", "enrichment", "updated_at"}

// SQLiteStore keeps every board in one SQLite database
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens or creates the database at path
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Single writer; saves are whole-board transactions
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		board TEXT NOT NULL,
		id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		sort_time TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		fields TEXT,
		enriched INTEGER NOT NULL DEFAULT 0,
		enrichment TEXT,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (board, id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_board_sequence ON records(board, sequence);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads all rows of board in sequence order. Rows with undecodable JSON columns are skipped.
func (s *SQLiteStore) Load(ctx context.Context, board string) (*Collection, error) {
	query, args, err := sq.Select("id", "sequence", "sort_time", "url", "fields", "enriched", "enrichment").
		From("records").
		Where(sq.Eq{"board": board}).
		OrderBy("sequence").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", board, err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.Record
	skipped := 0
	for rows.Next() {
		var (
			rec        model.Record
			fields     sql.NullString
			enrichment sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Sequence, &rec.SortTime, &rec.URL, &fields, &rec.Enriched, &enrichment); err != nil {
			return nil, fmt.Errorf("scan %s: %w", board, err)
		}
		if fields.Valid && fields.String != "" {
			if err := json.Unmarshal([]byte(fields.String), &rec.Fields); err != nil {
				skipped++
				continue
			}
		}
		if enrichment.Valid && enrichment.String != "" {
			if err := json.Unmarshal([]byte(enrichment.String), &rec.Enrichment); err != nil {
				skipped++
				continue
			}
		}
		// enriched without data cannot be trusted
		if rec.Enriched && rec.Enrichment == nil {
			rec.Enriched = false
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", board, err)
	}

	if skipped > 0 {
		s.logger.Warn("skipped corrupt records", "board", board, "count", skipped)
	}

	c := NewCollection(board, records)
	if n := c.Renumbered(); n > 0 {
		s.logger.Warn("renumbered out-of-order sequences", "board", board, "count", n)
	}
	return c, nil
}

// Save replaces the rows of the collection's board in one transaction
func (s *SQLiteStore) Save(ctx context.Context, c *Collection) error {
	ctx = context.WithoutCancel(ctx)
	board := c.Board()
	records := c.Records()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := sq.Delete("records").Where(sq.Eq{"board": board}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear %s: %w", board, err)
	}

	for start := 0; start < len(records); start += insertChunk {
		end := start + insertChunk
		if end > len(records) {
			end = len(records)
		}

		insert := sq.Insert("records").Columns(recordColumns...)
		for i := start; i < end; i++ {
			rec := &records[i]
			fields, err := encodeNullable(rec.Fields, len(rec.Fields) > 0)
			if err != nil {
				return fmt.Errorf("encode fields of %s: %w", rec.ID, err)
			}
			enrichment, err := encodeNullable(rec.Enrichment, rec.Enrichment != nil)
			if err != nil {
				return fmt.Errorf("encode enrichment of %s: %w", rec.ID, err)
			}
			insert = insert.Values(board, rec.ID, rec.Sequence, rec.SortTime, rec.URL, fields, rec.Enriched, enrichment, now)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert %s: %w", board, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Boards lists the boards present in the database
func (s *SQLiteStore) Boards(ctx context.Context) ([]string, error) {
	query, args, err := sq.Select("DISTINCT board").From("records").OrderBy("board").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var boards []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeNullable(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
