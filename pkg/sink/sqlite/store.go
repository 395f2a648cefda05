// Package sqlite is the default sink: comments and checkpoints in one
// SQLite database, written through a single serialised connection.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"
	"commentharvest/pkg/sink"

	sq "github.com/Masterminds/squirrel"
)

const (
	tableComments    = "comments"
	tableCheckpoints = "checkpoints"
)

const (
	commentFieldPlatform    = "platform"
	commentFieldPostID      = "post_id"
	commentFieldCommentID   = "comment_id"
	commentFieldAuthor      = "author"
	commentFieldText        = "text"
	commentFieldLikeCount   = "like_count"
	commentFieldCreatedAt   = "created_at"
	commentFieldParentID    = "parent_comment_id"
	commentFieldHarvestedAt = "harvested_at"
)

const (
	checkpointFieldPlatform      = "platform"
	checkpointFieldPostID        = "post_id"
	checkpointFieldCursor        = "cursor"
	checkpointFieldDone          = "done"
	checkpointFieldEmittedCount  = "emitted_count"
	checkpointFieldLastAttemptAt = "last_attempt_at"
	checkpointFieldUpdatedAt     = "updated_at"
)

var _ sink.Sink = (*Store)(nil)

func commentColumns() []string {
	return []string{
		commentFieldPlatform,
		commentFieldPostID,
		commentFieldCommentID,
		commentFieldAuthor,
		commentFieldText,
		commentFieldLikeCount,
		commentFieldCreatedAt,
		commentFieldParentID,
	}
}

func checkpointColumns() []string {
	return []string{
		checkpointFieldPlatform,
		checkpointFieldPostID,
		checkpointFieldCursor,
		checkpointFieldDone,
		checkpointFieldEmittedCount,
		checkpointFieldLastAttemptAt,
		checkpointFieldUpdatedAt,
	}
}

// Store is a SQLite-backed sink
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	logger logger.Logger
	now    func() time.Time
}

// Open creates the database file if needed, applies migrations and
// returns a ready store. path may be a file path or a full DSN.
func Open(ctx context.Context, path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if dir := filepath.Dir(path); path != "" && !isDSN(path) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := NewDB(ctx, dsnFor(path))
	if err != nil {
		return nil, err
	}
	if err := MigrateUp(db, log); err != nil {
		db.Close()
		return nil, err
	}

	log.InfoWithFields("SQLite sink opened", map[string]interface{}{"path": path})
	return &Store{db: db, logger: log, now: time.Now}, nil
}

func isDSN(path string) bool {
	return dsnFor(path) == path
}

// Append inserts records in one transaction
func (s *Store) Append(ctx context.Context, records []models.CommentRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	harvestedAt := s.now().UnixMilli()
	q := sq.Insert(tableComments).Columns(append(commentColumns(), commentFieldHarvestedAt)...)
	for _, r := range records {
		q = q.Values(
			string(r.Platform),
			r.PostID,
			r.CommentID,
			r.Author,
			r.Text,
			r.LikeCount,
			unixOrZero(r.CreatedAt),
			r.ParentCommentID,
			harvestedAt,
		)
	}

	if _, err := q.RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to exec insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit comments: %w", err)
	}
	return nil
}

// Checkpoint upserts a post's progress
func (s *Store) Checkpoint(ctx context.Context, cp models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp.UpdatedAt = s.now().UTC()
	q := sq.Insert(tableCheckpoints).
		Columns(checkpointColumns()...).
		Values(
			string(cp.Platform),
			cp.PostID,
			cp.Cursor,
			cp.Done,
			cp.EmittedCount,
			unixMilliOrZero(cp.LastAttemptAt),
			cp.UpdatedAt.UnixMilli(),
		).
		Suffix("ON CONFLICT (platform, post_id) DO UPDATE SET " +
			"cursor = excluded.cursor, done = excluded.done, emitted_count = excluded.emitted_count, " +
			"last_attempt_at = excluded.last_attempt_at, updated_at = excluded.updated_at")

	if _, err := q.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the stored checkpoint of a post
func (s *Store) LoadCheckpoint(ctx context.Context, platform models.Platform, postID string) (models.Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := sq.Select(checkpointColumns()...).
		From(tableCheckpoints).
		Where(sq.Eq{checkpointFieldPlatform: string(platform), checkpointFieldPostID: postID}).
		RunWith(s.db).
		QueryRowContext(ctx)

	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return models.Checkpoint{}, false, nil
	}
	if err != nil {
		return models.Checkpoint{}, false, err
	}
	return cp, true, nil
}

// Checkpoints lists every checkpoint for a platform, ordered by post id
func (s *Store) Checkpoints(ctx context.Context, platform models.Platform) ([]models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := sq.Select(checkpointColumns()...).
		From(tableCheckpoints).
		Where(sq.Eq{checkpointFieldPlatform: string(platform)}).
		OrderBy(checkpointFieldPostID + " ASC").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []models.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// EmittedIDs returns every comment id stored for a post
func (s *Store) EmittedIDs(ctx context.Context, platform models.Platform, postID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := sq.Select(commentFieldCommentID).
		From(tableComments).
		Where(sq.Eq{commentFieldPlatform: string(platform), commentFieldPostID: postID}).
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExportCSV writes every stored comment of platform as CSV, in insertion
// order, and returns the number of rows written.
func (s *Store) ExportCSV(ctx context.Context, platform models.Platform, w io.Writer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := sq.Select(commentColumns()...).
		From(tableComments).
		Where(sq.Eq{commentFieldPlatform: string(platform)}).
		OrderBy("seq ASC").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(sink.Header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	n := 0
	for rows.Next() {
		r, err := scanComment(rows)
		if err != nil {
			return n, err
		}
		if err := cw.Write(sink.Row(r)); err != nil {
			return n, fmt.Errorf("failed to write row: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}

	cw.Flush()
	return n, cw.Error()
}

// Close closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func scanComment(row sq.RowScanner) (models.CommentRecord, error) {
	var (
		r        models.CommentRecord
		platform string
		created  int64
	)
	err := row.Scan(
		&platform,
		&r.PostID,
		&r.CommentID,
		&r.Author,
		&r.Text,
		&r.LikeCount,
		&created,
		&r.ParentCommentID,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan row: %w", err)
	}
	r.Platform = models.Platform(platform)
	if created > 0 {
		r.CreatedAt = time.Unix(created, 0).UTC()
	}
	return r, nil
}

func scanCheckpoint(row sq.RowScanner) (models.Checkpoint, error) {
	var (
		cp          models.Checkpoint
		platform    string
		lastAttempt int64
		updated     int64
	)
	err := row.Scan(
		&platform,
		&cp.PostID,
		&cp.Cursor,
		&cp.Done,
		&cp.EmittedCount,
		&lastAttempt,
		&updated,
	)
	if err == sql.ErrNoRows {
		return cp, err
	}
	if err != nil {
		return cp, fmt.Errorf("failed to scan row: %w", err)
	}
	cp.Platform = models.Platform(platform)
	if lastAttempt > 0 {
		cp.LastAttemptAt = time.UnixMilli(lastAttempt).UTC()
	}
	cp.UpdatedAt = time.UnixMilli(updated).UTC()
	return cp, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
