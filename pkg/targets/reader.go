// Package targets reads the list of posts to harvest.
package targets

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"commentharvest/pkg/models"
)

var (
	tiktokURL    = regexp.MustCompile(`/video/(\d+)`)
	tiktokID     = regexp.MustCompile(`^\d+$`)
	instagramURL = regexp.MustCompile(`/(?:p|reel|reels|tv)/([A-Za-z0-9_-]+)`)
	instagramID  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// idColumns lists, per platform, the header names that hold the post id
var idColumns = map[models.Platform][]string{
	models.PlatformTikTok:    {"aweme_id", "video_id", "id", "url"},
	models.PlatformInstagram: {"shortcode", "post_id", "id", "url"},
}

// Load reads targets from a CSV file. See Read.
func Load(path string, platform models.Platform) ([]models.PostTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Read(f, platform)
}

// Read parses a CSV whose first row is a header. The id column is found
// by name for the platform, falling back to the first column. A
// "platform" column, when present, overrides platform per row. Rows
// holding a post URL are reduced to the id; blank or unrecognizable rows
// are skipped, and repeated ids keep their first position.
func Read(r io.Reader, platform models.Platform) ([]models.PostTarget, error) {
	cr := csv.NewReader(stripBOM(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idCol, platformCol := columns(header, platform)

	var targets []models.PostTarget
	seen := make(map[models.PostTarget]bool)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read targets: %w", err)
		}

		rowPlatform := platform
		if platformCol >= 0 && platformCol < len(record) {
			if p, err := models.ParsePlatform(record[platformCol]); err == nil {
				rowPlatform = p
			}
		}
		if idCol >= len(record) {
			continue
		}
		id, ok := ExtractID(rowPlatform, record[idCol])
		if !ok {
			continue
		}

		target := models.PostTarget{Platform: rowPlatform, PostID: id}
		if seen[target] {
			continue
		}
		seen[target] = true
		targets = append(targets, target)
	}
	return targets, nil
}

func columns(header []string, platform models.Platform) (idCol, platformCol int) {
	idCol, platformCol = 0, -1
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	if i, ok := index["platform"]; ok {
		platformCol = i
	}
	for _, name := range idColumns[platform] {
		if i, ok := index[name]; ok {
			return i, platformCol
		}
	}
	return idCol, platformCol
}

// ExtractID returns the post id in value, which may be a bare id or a
// post URL.
func ExtractID(platform models.Platform, value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}

	switch platform {
	case models.PlatformTikTok:
		if m := tiktokURL.FindStringSubmatch(value); m != nil {
			return m[1], true
		}
		return value, tiktokID.MatchString(value)
	case models.PlatformInstagram:
		if m := instagramURL.FindStringSubmatch(value); m != nil {
			return m[1], true
		}
		return value, instagramID.MatchString(value)
	default:
		return "", false
	}
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	rdr, _, err := br.ReadRune()
	if err != nil {
		return br
	}
	if rdr != '\uFEFF' {
		_ = br.UnreadRune()
	}
	return br
}
