package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/boardharvest/internal/model"
)

const documentVersion = 1

// document is the on-disk shape of one board
type document struct {
	Version   int               `json:"version"`
	Board     string            `json:"board"`
	UpdatedAt time.Time         `json:"updated_at"`
	Records   []json.RawMessage `json:"records"`
}

// JSONStore keeps one JSON document per board under dir
type JSONStore struct {
	dir    string
	logger *slog.Logger
}

// NewJSONStore creates the store directory if needed
func NewJSONStore(dir string, logger *slog.Logger) (*JSONStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &JSONStore{dir: dir, logger: logger}, nil
}

// Path returns the document path of board
func (s *JSONStore) Path(board string) string {
	return filepath.Join(s.dir, sanitizeBoard(board)+".json")
}

// Load reads the board document.
// A missing document yields an empty collection. An unparseable document is moved aside
// and an empty collection is returned; individual undecodable records are skipped.
func (s *JSONStore) Load(_ context.Context, board string) (*Collection, error) {
	path := s.Path(board)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewCollection(board, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store %s: %w", path, err)
	}

	rawRecords, err := decodeDocument(data)
	if err != nil {
		quarantine := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if renameErr := os.Rename(path, quarantine); renameErr != nil {
			return nil, fmt.Errorf("quarantine corrupt store %s: %w", path, renameErr)
		}
		s.logger.Warn("store document unreadable, starting empty",
			"board", board,
			"moved_to", quarantine,
			"error", err)
		return NewCollection(board, nil), nil
	}

	records, skipped := decodeRecords(rawRecords)
	if skipped > 0 {
		s.logger.Warn("skipped corrupt records", "board", board, "count", skipped)
	}

	c := NewCollection(board, records)
	if n := c.Renumbered(); n > 0 {
		s.logger.Warn("renumbered out-of-order sequences", "board", board, "count", n)
	}
	return c, nil
}

// Save writes the whole collection to a temp file and renames it over the document
func (s *JSONStore) Save(_ context.Context, c *Collection) error {
	records := c.Records()
	doc := document{
		Version:   documentVersion,
		Board:     c.Board(),
		UpdatedAt: time.Now().UTC(),
		Records:   make([]json.RawMessage, 0, len(records)),
	}
	for i := range records {
		raw, err := marshalRecord(&records[i])
		if err != nil {
			return fmt.Errorf("encode record %s: %w", records[i].ID, err)
		}
		doc.Records = append(doc.Records, raw)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	if err := writeFileAtomic(s.Path(c.Board()), buf.Bytes()); err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	return nil
}

// Boards lists the boards that have a document in the store directory
func (s *JSONStore) Boards(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	boards := make([]string, 0, len(matches))
	for _, m := range matches {
		boards = append(boards, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	sort.Strings(boards)
	return boards, nil
}

// Close is a no-op; every Save is already durable
func (s *JSONStore) Close() error {
	return nil
}

// decodeDocument accepts the versioned document or a bare array of records
func decodeDocument(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}

	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	}

	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	if doc.Version > documentVersion {
		return nil, fmt.Errorf("unsupported document version %d", doc.Version)
	}
	return doc.Records, nil
}

func decodeRecords(raw []json.RawMessage) ([]model.Record, int) {
	records := make([]model.Record, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(r, &fields); err != nil || fields == nil {
			skipped++
			continue
		}
		if isLegacyRecord(fields) {
			rec, ok := decodeLegacyRecord(fields)
			if !ok {
				skipped++
				continue
			}
			records = append(records, rec)
			continue
		}

		var rec model.Record
		if err := json.Unmarshal(r, &rec); err != nil || rec.ID == "" {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

func marshalRecord(rec *model.Record) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// writeFileAtomic replaces path with data so a crash leaves either the old or the new content
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	// Persist the rename itself
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// sanitizeBoard keeps board names from escaping the store directory
func sanitizeBoard(board string) string {
	board = strings.TrimSpace(board)
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	if board == "" {
		return "_"
	}
	return replacer.Replace(board)
}
