package sink

import (
	"strconv"
	"time"

	"commentharvest/pkg/models"
)

// Header is the column order of tabular comment output
var Header = []string{
	"platform",
	"post_id",
	"comment_id",
	"author",
	"text",
	"like_count",
	"created_at",
	"parent_comment_id",
}

// Column positions within Header
const (
	ColPlatform = iota
	ColPostID
	ColCommentID
	ColAuthor
	ColText
	ColLikeCount
	ColCreatedAt
	ColParentCommentID
)

// Row renders a record in Header order. created_at is RFC 3339 in UTC,
// empty when unknown.
func Row(r models.CommentRecord) []string {
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		string(r.Platform),
		r.PostID,
		r.CommentID,
		r.Author,
		r.Text,
		strconv.FormatInt(r.LikeCount, 10),
		created,
		r.ParentCommentID,
	}
}
