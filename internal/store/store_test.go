package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/boardharvest/internal/model"
)

func intPtr(n int) *int { return &n }

func sampleRecord(id string) model.Record {
	return model.Record{
		ID:       id,
		SortTime: "2024-01-02T03:04:05Z",
		URL:      "https://www.ptt.cc/bbs/Stock/" + id + ".html",
		Fields: map[string]any{
			model.PostFieldTitle:  "title " + id,
			model.PostFieldNumber: nil,
		},
	}
}

func TestCollection_AppendAssignsSequence(t *testing.T) {
	c := NewCollection("Stock", nil)

	for i, id := range []string{"a", "b", "c"} {
		rec, ok := c.Append(sampleRecord(id))
		if !ok {
			t.Fatalf("append %s failed", id)
		}
		if rec.Sequence != int64(i+1) {
			t.Errorf("expected sequence %d for %s, got %d", i+1, id, rec.Sequence)
		}
		if rec.Fields[model.PostFieldNumber] != rec.Sequence {
			t.Errorf("expected number field to mirror sequence, got %v", rec.Fields[model.PostFieldNumber])
		}
	}

	if _, ok := c.Append(sampleRecord("b")); ok {
		t.Error("expected duplicate id to be rejected")
	}
	if _, ok := c.Append(model.Record{}); ok {
		t.Error("expected empty id to be rejected")
	}
	if c.Len() != 3 {
		t.Errorf("expected 3 records, got %d", c.Len())
	}
	if c.NextSequence() != 4 {
		t.Errorf("expected next sequence 4, got %d", c.NextSequence())
	}
}

func TestNewCollection_RepairsLoadedRecords(t *testing.T) {
	c := NewCollection("Stock", []model.Record{
		{ID: "a", Sequence: 5},
		{ID: "b", Sequence: 0},
		{ID: "a", Sequence: 9},
		{ID: "", Sequence: 3},
		{ID: "c", Sequence: 7},
	})

	if c.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", c.Len())
	}
	a, _ := c.Get("a")
	if a.Sequence != 5 {
		t.Errorf("expected first occurrence of a to win, got sequence %d", a.Sequence)
	}
	b, _ := c.Get("b")
	if b.Sequence != 6 {
		t.Errorf("expected b to follow a with 6, got %d", b.Sequence)
	}
	if c.Renumbered() != 1 {
		t.Errorf("expected 1 renumbered record, got %d", c.Renumbered())
	}

	rec, _ := c.Append(model.Record{ID: "d"})
	if rec.Sequence != 8 {
		t.Errorf("expected new sequence 8, got %d", rec.Sequence)
	}
}

func TestNewCollection_SequencesStrictlyIncrease(t *testing.T) {
	tests := []struct {
		name string
		in   []int64
		want []int64
	}{
		{"missing in the middle", []int64{5, 0, 3}, []int64{5, 6, 7}},
		{"duplicate sequence", []int64{1, 2, 2, 3}, []int64{1, 2, 3, 4}},
		{"out of order", []int64{3, 1, 2, 10}, []int64{3, 4, 5, 10}},
		{"all missing", []int64{0, 0, 0}, []int64{1, 2, 3}},
		{"already valid", []int64{2, 4, 9}, []int64{2, 4, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := make([]model.Record, len(tt.in))
			for i, seq := range tt.in {
				records[i] = model.Record{ID: fmt.Sprintf("s%03d", i), Sequence: seq}
			}

			got := NewCollection("Stock", records).Records()
			for i, rec := range got {
				if rec.Sequence != tt.want[i] {
					t.Errorf("record %d: expected sequence %d, got %d", i, tt.want[i], rec.Sequence)
				}
			}
		})
	}
}

func TestCollection_PendingAndAttach(t *testing.T) {
	c := NewCollection("Stock", []model.Record{
		{ID: "early", Sequence: 1},
		{ID: "done", Sequence: 2, Enriched: true, Enrichment: &model.Enrichment{}},
		{ID: "late", Sequence: 3},
	})

	pending := c.Pending()
	if len(pending) != 2 || pending[0].ID != "early" || pending[1].ID != "late" {
		t.Fatalf("expected [early late], got %+v", pending)
	}

	if err := c.Attach("early", &model.Enrichment{TotalComments: intPtr(2)}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if err := c.Attach("early", &model.Enrichment{}); err == nil {
		t.Error("expected second attach to fail")
	}
	if err := c.Attach("missing", &model.Enrichment{}); err == nil {
		t.Error("expected attach to unknown id to fail")
	}

	st := c.Status()
	if st.Records != 3 || st.Enriched != 2 || st.Pending != 1 || st.LastSequence != 3 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestCollection_CountOld(t *testing.T) {
	c := NewCollection("Stock", []model.Record{
		{ID: "a", Sequence: 1, SortTime: "2023-12-01"},
		{ID: "b", Sequence: 2, SortTime: "2024-01-01"},
		{ID: "c", Sequence: 3},
		{ID: "d", Sequence: 4, SortTime: "2023-12-31"},
	})

	n := c.CountOld(func(s string) bool { return strings.HasPrefix(s, "2023-12") })
	if n != 2 {
		t.Errorf("expected 2 old records, got %d", n)
	}
}

func TestJSONStore_MissingIsEmpty(t *testing.T) {
	s, err := NewJSONStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.Load(context.Background(), "Stock")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty collection, got %d", c.Len())
	}
}

func TestJSONStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	c := NewCollection("Stock", nil)
	c.Append(sampleRecord("a"))
	c.Append(sampleRecord("b"))
	content := "<b>body</b>"
	if err := c.Attach("a", &model.Enrichment{
		TotalComments: intPtr(2),
		Content:       &content,
		Comments:      []model.Comment{{Tag: "推", Content: "nice"}},
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(s.Path("Stock"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<b>body</b>") {
		t.Error("expected HTML to be written unescaped")
	}
	if !strings.Contains(string(data), `"version": 1`) {
		t.Error("expected versioned document")
	}

	loaded, err := s.Load(ctx, "Stock")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", loaded.Len())
	}
	a, _ := loaded.Get("a")
	if !a.Enriched || a.Enrichment == nil || *a.Enrichment.TotalComments != 2 {
		t.Errorf("enrichment lost on reload: %+v", a)
	}
	if a.SortTime != "2024-01-02T03:04:05Z" {
		t.Errorf("sort time lost on reload: %q", a.SortTime)
	}
	if len(a.Enrichment.Comments) != 1 || a.Enrichment.Comments[0].Tag != "推" {
		t.Errorf("comments lost on reload: %+v", a.Enrichment.Comments)
	}
	if loaded.NextSequence() != 3 {
		t.Errorf("expected next sequence 3, got %d", loaded.NextSequence())
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("expected no temp files, found %v", matches)
	}

	boards, err := s.Boards(ctx)
	if err != nil || len(boards) != 1 || boards[0] != "Stock" {
		t.Errorf("unexpected boards: %v (%v)", boards, err)
	}
}

func TestJSONStore_BareArray(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewJSONStore(dir, nil)

	array := `[{"id":"x","sequence":1},{"id":"y","sequence":2},{"id":"x","sequence":3}]`
	if err := os.WriteFile(s.Path("NBA"), []byte(array), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := s.Load(context.Background(), "NBA")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 unique records, got %d", c.Len())
	}
}

func TestJSONStore_LegacyExport(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewJSONStore(dir, nil)

	export := `[
  {"_id": "p1", "title": "first", "url": "https://www.ptt.cc/bbs/NBA/M.1.A.1.html",
   "hits": 12, "acceptedDate": "2024-01-02T00:00:00Z", "number": 1,
   "comments_data": {"total_comments": 2, "like_count": 1, "dislike_count": 1, "neutral_count": 0,
                     "content": "body", "comments": [{"tag": "推", "content": "nice"}]}},
  {"_id": "p2", "_post_time": "2023-12-30T08:00:00Z", "title": "second",
   "url": "https://www.ptt.cc/bbs/NBA/M.2.A.2.html", "number": 2},
  {"_id": 7, "title": "bad id"}
]`
	if err := os.WriteFile(s.Path("NBA"), []byte(export), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := s.Load(context.Background(), "NBA")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", c.Len())
	}

	p1, _ := c.Get("p1")
	if p1.Sequence != 1 || p1.SortTime != "2024-01-02T00:00:00Z" || p1.URL == "" {
		t.Errorf("unexpected p1: %+v", p1)
	}
	if p1.Fields[model.PostFieldTitle] != "first" {
		t.Errorf("expected title field, got %v", p1.Fields)
	}
	if !p1.Enriched || p1.Enrichment == nil || *p1.Enrichment.TotalComments != 2 || len(p1.Enrichment.Comments) != 1 {
		t.Errorf("expected comments_data as enrichment, got %+v", p1.Enrichment)
	}

	p2, _ := c.Get("p2")
	if p2.Sequence != 2 || p2.SortTime != "2023-12-30T08:00:00Z" || p2.Enriched {
		t.Errorf("unexpected p2: %+v", p2)
	}
	if _, ok := p2.Fields["_post_time"]; ok {
		t.Error("internal _post_time must not become a field")
	}

	// the next harvested item continues the legacy numbering
	if next, _ := c.Append(model.Record{ID: "p3"}); next.Sequence != 3 {
		t.Errorf("expected sequence 3, got %d", next.Sequence)
	}
	if len(c.Pending()) != 2 {
		t.Errorf("expected p2 and p3 pending, got %d", len(c.Pending()))
	}
}

func TestJSONStore_CorruptRecordsSkipped(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewJSONStore(dir, nil)

	doc := `{"version":1,"board":"NBA","records":[{"id":"ok","sequence":1},{"id":""},"garbage",{"id":42}]}`
	if err := os.WriteFile(s.Path("NBA"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := s.Load(context.Background(), "NBA")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 1 || !c.Has("ok") {
		t.Errorf("expected only the valid record, got %+v", c.Records())
	}
}

func TestJSONStore_CorruptDocumentQuarantined(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewJSONStore(dir, nil)
	path := s.Path("NBA")

	if err := os.WriteFile(path, []byte(`{"records": [truncated`), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := s.Load(context.Background(), "NBA")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty collection, got %d", c.Len())
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected corrupt document to be moved aside")
	}
	matches, _ := filepath.Glob(path + ".corrupt-*")
	if len(matches) != 1 {
		t.Errorf("expected one quarantined file, found %v", matches)
	}
}

func TestJSONStore_ReadError(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewJSONStore(dir, nil)

	// A directory in place of the document cannot be read
	if err := os.Mkdir(s.Path("Stock"), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(context.Background(), "Stock"); err == nil {
		t.Error("expected read error to be returned")
	}
}

func TestJSONStore_SaveAfterCancel(t *testing.T) {
	s, _ := NewJSONStore(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCollection("Stock", nil)
	c.Append(sampleRecord("a"))
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("Save with cancelled context failed: %v", err)
	}
}

func TestSanitizeBoard(t *testing.T) {
	if got := sanitizeBoard("../etc/passwd"); strings.Contains(got, "/") || strings.Contains(got, "..") {
		t.Errorf("board name escaped directory: %s", got)
	}
	if got := sanitizeBoard("  "); got != "_" {
		t.Errorf("expected placeholder for blank board, got %q", got)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "records.db")
	s, err := NewSQLiteStore(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	stock := NewCollection("Stock", nil)
	for i := 0; i < insertChunk+25; i++ {
		stock.Append(model.Record{ID: fmt.Sprintf("s%03d", i)})
	}
	first := stock.Records()[0].ID
	if err := stock.Attach(first, &model.Enrichment{LikeCount: intPtr(4)}); err != nil {
		t.Fatal(err)
	}
	nba := NewCollection("NBA", nil)
	nba.Append(sampleRecord("n1"))

	if err := s.Save(ctx, stock); err != nil {
		t.Fatalf("Save Stock failed: %v", err)
	}
	if err := s.Save(ctx, nba); err != nil {
		t.Fatalf("Save NBA failed: %v", err)
	}
	// Saving twice replaces rather than duplicates
	if err := s.Save(ctx, stock); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := s.Load(ctx, "Stock")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != stock.Len() {
		t.Errorf("expected %d records, got %d", stock.Len(), loaded.Len())
	}
	rec, ok := loaded.Get(first)
	if !ok || !rec.Enriched || rec.Enrichment == nil || *rec.Enrichment.LikeCount != 4 {
		t.Errorf("enrichment lost: %+v", rec)
	}
	records := loaded.Records()
	for i := 1; i < len(records); i++ {
		if records[i].Sequence <= records[i-1].Sequence {
			t.Fatalf("sequence not increasing at %d", i)
		}
	}

	other, err := s.Load(ctx, "NBA")
	if err != nil {
		t.Fatalf("Load NBA failed: %v", err)
	}
	n1, _ := other.Get("n1")
	if n1.Fields[model.PostFieldTitle] != "title n1" {
		t.Errorf("fields lost: %+v", n1.Fields)
	}

	boards, err := s.Boards(ctx)
	if err != nil || len(boards) != 2 || boards[0] != "NBA" || boards[1] != "Stock" {
		t.Errorf("unexpected boards: %v (%v)", boards, err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(model.StoreConfig{Backend: model.BackendJSON, Dir: dir}, nil)
	if err != nil {
		t.Fatalf("Open json failed: %v", err)
	}
	if _, ok := st.(*JSONStore); !ok {
		t.Errorf("expected JSONStore, got %T", st)
	}

	st, err = Open(model.StoreConfig{Backend: model.BackendSQLite, SQLitePath: filepath.Join(dir, "x.db")}, nil)
	if err != nil {
		t.Fatalf("Open sqlite failed: %v", err)
	}
	_ = st.Close()

	if _, err := Open(model.StoreConfig{Backend: "mongo"}, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}
