// Package csvfile is a flat-file sink: one append-only CSV per platform
// plus JSON checkpoint files, matching the layout analysts already load.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"commentharvest/pkg/checkpoint"
	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"
	"commentharvest/pkg/sink"
)

const fileSuffix = "_comments.csv"

// Store appends comments to <dir>/<platform>_comments.csv and keeps
// checkpoints under <dir>/checkpoints.
type Store struct {
	dir         string
	checkpoints *checkpoint.Manager
	logger      logger.Logger

	mu      sync.Mutex
	files   map[models.Platform]*os.File
	emitted map[string][]string
}

var _ sink.Sink = (*Store)(nil)

// NewStore creates the output directory and indexes comment ids already
// present in existing CSV files.
func NewStore(dir string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	cps, err := checkpoint.NewManager(filepath.Join(dir, "checkpoints"), log)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:         dir,
		checkpoints: cps,
		logger:      log,
		files:       make(map[models.Platform]*os.File),
		emitted:     make(map[string][]string),
	}

	if err := s.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return s, nil
}

// Path returns the CSV file used for platform
func (s *Store) Path(platform models.Platform) string {
	return filepath.Join(s.dir, string(platform)+fileSuffix)
}

// scanExistingFiles rebuilds the per-post id index from earlier runs
func (s *Store) scanExistingFiles() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		if err := s.scanFile(filepath.Join(s.dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) scanFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	rows, skipped := 0, 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if len(rec) < len(sink.Header) {
			skipped++
			continue
		}
		if rec[sink.ColCommentID] == "comment_id" {
			continue
		}
		k := postKey(models.Platform(rec[sink.ColPlatform]), rec[sink.ColPostID])
		s.emitted[k] = append(s.emitted[k], rec[sink.ColCommentID])
		rows++
	}

	s.logger.DebugWithFields("Indexed existing comments", map[string]interface{}{
		"file":    filepath.Base(path),
		"rows":    rows,
		"skipped": skipped,
	})
	return nil
}

// file returns the open append handle for platform. A new file gets the
// header row; a file whose last line was cut short gets a newline first.
func (s *Store) file(platform models.Platform) (*os.File, error) {
	if f, ok := s.files[platform]; ok {
		return f, nil
	}

	path := s.Path(platform)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		w.Write(sink.Header)
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	} else {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err == nil && last[0] != '\n' {
			if _, err := f.Write([]byte("\n")); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to repair %s: %w", path, err)
			}
		}
	}

	s.files[platform] = f
	return f, nil
}

// Append writes records and fsyncs each touched file before returning
func (s *Store) Append(ctx context.Context, records []models.CommentRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[models.Platform]*csv.Writer)
	for _, r := range records {
		w, ok := touched[r.Platform]
		if !ok {
			f, err := s.file(r.Platform)
			if err != nil {
				return err
			}
			w = csv.NewWriter(f)
			touched[r.Platform] = w
		}
		if err := w.Write(sink.Row(r)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	for platform, w := range touched {
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("failed to flush %s: %w", platform, err)
		}
		if err := s.files[platform].Sync(); err != nil {
			return fmt.Errorf("failed to sync %s: %w", platform, err)
		}
	}

	for _, r := range records {
		k := postKey(r.Platform, r.PostID)
		s.emitted[k] = append(s.emitted[k], r.CommentID)
	}
	return nil
}

// Checkpoint saves the post's progress file
func (s *Store) Checkpoint(_ context.Context, cp models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints.Save(cp)
}

// LoadCheckpoint reads the post's progress file
func (s *Store) LoadCheckpoint(_ context.Context, platform models.Platform, postID string) (models.Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints.Load(platform, postID)
}

// Checkpoints lists the stored checkpoints of platform
func (s *Store) Checkpoints(_ context.Context, platform models.Platform) ([]models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints.List(platform)
}

// EmittedIDs returns ids already written for the post
func (s *Store) EmittedIDs(_ context.Context, platform models.Platform, postID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.emitted[postKey(platform, postID)]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// Close closes every open CSV file
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for platform, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", platform, err))
		}
		delete(s.files, platform)
	}
	return errors.Join(errs...)
}

func postKey(platform models.Platform, postID string) string {
	return string(platform) + ":" + postID
}
