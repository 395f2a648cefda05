package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"
)

const fileSuffix = ".checkpoint.json"

// Manager handles checkpoint files for every post under one directory
type Manager struct {
	dir    string
	logger logger.Logger
	now    func() time.Time
}

// NewManager creates a checkpoint manager rooted at dir
func NewManager(dir string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &Manager{dir: dir, logger: log, now: time.Now}, nil
}

// Dir returns the directory checkpoints live in
func (m *Manager) Dir() string { return m.dir }

func (m *Manager) path(platform models.Platform, postID string) string {
	return filepath.Join(m.dir, string(platform), safeName(postID)+fileSuffix)
}

// Load reads the checkpoint of a post. ok is false when none exists.
func (m *Manager) Load(platform models.Platform, postID string) (cp models.Checkpoint, ok bool, err error) {
	file, err := os.Open(m.path(platform, postID))
	if err != nil {
		if os.IsNotExist(err) {
			return models.Checkpoint{}, false, nil
		}
		return models.Checkpoint{}, false, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return models.Checkpoint{}, false, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return cp, true, nil
}

// Save writes the checkpoint atomically: temp file, fsync, rename.
func (m *Manager) Save(cp models.Checkpoint) error {
	if cp.PostID == "" {
		return fmt.Errorf("checkpoint has no post id")
	}
	cp.UpdatedAt = m.now().UTC()

	target := m.path(cp.Platform, cp.PostID)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tempPath := target + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"platform":      cp.Platform,
		"post_id":       cp.PostID,
		"cursor":        cp.CursorOrDone(),
		"emitted_count": cp.EmittedCount,
	})
	return nil
}

// Delete removes a post's checkpoint so the next run starts over
func (m *Manager) Delete(platform models.Platform, postID string) error {
	if err := os.Remove(m.path(platform, postID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns every checkpoint stored for platform, ordered by post id
func (m *Manager) List(platform models.Platform) ([]models.Checkpoint, error) {
	entries, err := os.ReadDir(filepath.Join(m.dir, string(platform)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoints directory: %w", err)
	}

	var out []models.Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, string(platform), entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoint %s: %w", entry.Name(), err)
		}
		var cp models.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			m.logger.WarnWithFields("Skipping unreadable checkpoint", map[string]interface{}{
				"file":  entry.Name(),
				"error": err.Error(),
			})
			continue
		}
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PostID < out[j].PostID })
	return out, nil
}

// safeName keeps ids usable as file names
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}
