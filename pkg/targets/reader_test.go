package targets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"commentharvest/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tt(id string) models.PostTarget {
	return models.PostTarget{Platform: models.PlatformTikTok, PostID: id}
}

func ig(id string) models.PostTarget {
	return models.PostTarget{Platform: models.PlatformInstagram, PostID: id}
}

func TestReadPicksColumnByName(t *testing.T) {
	input := "title,aweme_id\nfirst,7301\nsecond,7302\n"

	got, err := Read(strings.NewReader(input), models.PlatformTikTok)
	require.NoError(t, err)
	assert.Equal(t, []models.PostTarget{tt("7301"), tt("7302")}, got)
}

func TestReadFallsBackToFirstColumn(t *testing.T) {
	input := "\uFEFFlinks\nhttps://www.instagram.com/p/Cabc123/\nhttps://www.instagram.com/reel/Dxyz_9-/?igsh=1\nCplain\n\n"

	got, err := Read(strings.NewReader(input), models.PlatformInstagram)
	require.NoError(t, err)
	assert.Equal(t, []models.PostTarget{ig("Cabc123"), ig("Dxyz_9-"), ig("Cplain")}, got)
}

func TestReadSkipsInvalidAndDuplicates(t *testing.T) {
	input := "video_id\n7301\nnot-a-number\n7301\nhttps://www.tiktok.com/@user/video/7305?lang=en\n7302,extra,cells\n"

	got, err := Read(strings.NewReader(input), models.PlatformTikTok)
	require.NoError(t, err)
	assert.Equal(t, []models.PostTarget{tt("7301"), tt("7305"), tt("7302")}, got)
}

func TestReadMixedPlatforms(t *testing.T) {
	input := "platform,id\ntiktok,7301\ninstagram,Cabc123\n,7302\nInstagram,https://www.instagram.com/p/Cdef456/\n"

	got, err := Read(strings.NewReader(input), models.PlatformTikTok)
	require.NoError(t, err)
	assert.Equal(t, []models.PostTarget{tt("7301"), ig("Cabc123"), tt("7302"), ig("Cdef456")}, got)
}

func TestReadEmpty(t *testing.T) {
	got, err := Read(strings.NewReader(""), models.PlatformTikTok)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Read(strings.NewReader("aweme_id\n"), models.PlatformTikTok)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.csv")
	require.NoError(t, os.WriteFile(path, []byte("shortcode\nCabc123\n"), 0644))

	got, err := Load(path, models.PlatformInstagram)
	require.NoError(t, err)
	assert.Equal(t, []models.PostTarget{ig("Cabc123")}, got)

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"), models.PlatformInstagram)
	assert.Error(t, err)
}

func TestExtractID(t *testing.T) {
	id, ok := ExtractID(models.PlatformTikTok, " 7301 ")
	assert.True(t, ok)
	assert.Equal(t, "7301", id)

	_, ok = ExtractID(models.PlatformInstagram, "has space")
	assert.False(t, ok)

	_, ok = ExtractID(models.Platform("myspace"), "1")
	assert.False(t, ok)
}
