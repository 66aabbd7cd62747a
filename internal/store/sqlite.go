package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteStore is the embedded SQLite backend. Segments live in a plain table;
// an external-content FTS5 table kept in sync by triggers provides BM25.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	name   string
	path   string
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS segments (
	id            INTEGER PRIMARY KEY,
	doc_id        TEXT NOT NULL UNIQUE,
	video_id      TEXT NOT NULL,
	language_code TEXT NOT NULL DEFAULT '',
	start_time    REAL NOT NULL,
	end_time      REAL NOT NULL,
	text          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_segments_video
	ON segments(video_id, language_code, start_time);

CREATE VIRTUAL TABLE IF NOT EXISTS segments_fts USING fts5(
	text,
	content='segments',
	content_rowid='id',
	tokenize='unicode61'
);

CREATE TRIGGER IF NOT EXISTS segments_ai AFTER INSERT ON segments BEGIN
	INSERT INTO segments_fts(rowid, text) VALUES (new.id, new.text);
END;

CREATE TRIGGER IF NOT EXISTS segments_ad AFTER DELETE ON segments BEGIN
	INSERT INTO segments_fts(segments_fts, rowid, text) VALUES ('delete', old.id, old.text);
END;

CREATE TRIGGER IF NOT EXISTS segments_au AFTER UPDATE ON segments BEGIN
	INSERT INTO segments_fts(segments_fts, rowid, text) VALUES ('delete', old.id, old.text);
	INSERT INTO segments_fts(rowid, text) VALUES (new.id, new.text);
END;

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// columns maps query fields to SQL columns.
var columns = map[string]string{
	FieldVideoID:      "s.video_id",
	FieldLanguageCode: "s.language_code",
	FieldStartTime:    "s.start_time",
	FieldEndTime:      "s.end_time",
}

// validateSQLiteIntegrity checks an existing database before opening it.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name IN ('segments', 'segments_fts')`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count != 2 {
		return fmt.Errorf("segment tables missing")
	}
	return nil
}

// NewSQLiteStore opens or creates the database at path. An empty path
// creates an in-memory database.
func NewSQLiteStore(path, name string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("segment_db_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("database corrupted at %s and cannot remove: %w", path, err)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("segment_db_cleared", slog.String("path", path), slog.String("reason", "reindex required"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: one writer, and :memory: must not fan out.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, name: name, path: path}, nil
}

// Index upserts segments in one transaction.
func (s *SQLiteStore) Index(ctx context.Context, segments []Segment) error {
	if len(segments) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (doc_id, video_id, language_code, start_time, end_time, text)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			video_id = excluded.video_id,
			language_code = excluded.language_code,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			text = excluded.text`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, seg := range segments {
		if err := seg.Validate(); err != nil {
			return fmt.Errorf("segment %s: %w", seg.DocID(), err)
		}
		_, err := stmt.ExecContext(ctx, seg.DocID(), seg.VideoID, seg.LanguageCode, seg.StartTime, seg.EndTime, seg.Text)
		if err != nil {
			return fmt.Errorf("failed to index segment %s: %w", seg.DocID(), err)
		}
	}

	return tx.Commit()
}

// DeleteVideo removes every segment of videoID.
func (s *SQLiteStore) DeleteVideo(ctx context.Context, videoID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM segments WHERE video_id = ?`, videoID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete segments of %s: %w", videoID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// sqlQuery accumulates the pieces of a compiled Query.
type sqlQuery struct {
	match []string
	where []string
	args  []any
	empty bool
}

func (c *sqlQuery) compile(q Query) error {
	switch q := q.(type) {
	case nil, MatchAllQuery:
		return nil

	case MatchQuery:
		if q.Field != FieldText {
			return fmt.Errorf("match on %q is not supported", q.Field)
		}
		terms := Terms(q.Text)
		if len(terms) == 0 {
			c.empty = true
			return nil
		}
		quoted := make([]string, len(terms))
		for i, t := range terms {
			quoted[i] = `"` + t + `"`
		}
		c.match = append(c.match, "("+strings.Join(quoted, " OR ")+")")
		return nil

	case PhrasePrefixQuery:
		if q.Field != FieldText {
			return fmt.Errorf("match_phrase_prefix on %q is not supported", q.Field)
		}
		terms := Terms(q.Text)
		if len(terms) == 0 {
			c.empty = true
			return nil
		}
		// FTS5 has no expansion cap; MaxExpansions is not enforced here.
		c.match = append(c.match, `"`+strings.Join(terms, " ")+`" *`)
		return nil

	case TermQuery:
		col, ok := columns[q.Field]
		if !ok {
			return fmt.Errorf("term on %q is not supported", q.Field)
		}
		c.where = append(c.where, col+" = ?")
		c.args = append(c.args, q.Value)
		return nil

	case RangeQuery:
		col, ok := columns[q.Field]
		if !ok {
			return fmt.Errorf("range on %q is not supported", q.Field)
		}
		bounds := []struct {
			v  *float64
			op string
		}{{q.GT, ">"}, {q.GTE, ">="}, {q.LT, "<"}, {q.LTE, "<="}}
		for _, b := range bounds {
			if b.v != nil {
				c.where = append(c.where, col+" "+b.op+" ?")
				c.args = append(c.args, *b.v)
			}
		}
		return nil

	case BoolQuery:
		for _, sub := range q.Must {
			if err := c.compile(sub); err != nil {
				return err
			}
		}
		for _, sub := range q.Filter {
			if err := c.compile(sub); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported query type %T", q)
	}
}

// Search compiles req into SQL over segments, joined to segments_fts when
// the query has a text clause.
func (s *SQLiteStore) Search(ctx context.Context, req Request) (*Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if req.Index != "" && req.Index != s.name {
		return nil, fmt.Errorf("unknown index %q", req.Index)
	}

	var c sqlQuery
	if err := c.compile(req.Query); err != nil {
		return nil, err
	}
	if c.empty {
		return &Response{}, nil
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	from := "segments s"
	score := "0.0"
	where := append([]string{}, c.where...)
	args := append([]any{}, c.args...)
	if len(c.match) > 0 {
		from = "segments_fts JOIN segments s ON s.id = segments_fts.rowid"
		score = "-bm25(segments_fts)"
		where = append([]string{"segments_fts MATCH ?"}, where...)
		args = append([]any{strings.Join(c.match, " AND ")}, args...)
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	order, err := orderBy(req.Sort, len(c.match) > 0)
	if err != nil {
		return nil, err
	}

	size := req.Size
	if size <= 0 {
		size = 10
	}

	started := time.Now()
	query := fmt.Sprintf(`SELECT s.video_id, s.language_code, s.start_time, s.end_time, s.text, %s
		FROM %s%s ORDER BY %s LIMIT ?`, score, from, whereSQL, order)
	rows, err := s.db.QueryContext(ctx, query, append(args, size)...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	resp := &Response{Hits: []Hit{}}
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.VideoID, &h.LanguageCode, &h.StartTime, &h.EndTime, &h.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := h.Validate(); err != nil {
			slog.Debug("segment_skipped", slog.String("id", h.DocID()), slog.String("error", err.Error()))
			continue
		}
		resp.Hits = append(resp.Hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", from, whereSQL)
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&resp.Total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}
	resp.Took = time.Since(started)
	return resp, nil
}

func orderBy(sort []SortField, scored bool) (string, error) {
	if len(sort) == 0 {
		if scored {
			return "bm25(segments_fts), s.id", nil
		}
		return "s.video_id, s.start_time", nil
	}
	parts := make([]string, 0, len(sort))
	for _, f := range sort {
		col, ok := columns[f.Field]
		if !ok {
			return "", fmt.Errorf("sort on %q is not supported", f.Field)
		}
		if f.Desc {
			col += " DESC"
		}
		parts = append(parts, col)
	}
	return strings.Join(parts, ", "), nil
}

// Count returns the number of stored segments.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count segments: %w", err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database. Safe to call twice.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
