package models

import (
	"fmt"
	"strings"
	"time"
)

// Platform tags which source a post belongs to
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
)

// ParsePlatform normalizes a platform name from input or flags
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformTikTok:
		return PlatformTikTok, nil
	case PlatformInstagram:
		return PlatformInstagram, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// PostTarget is a platform + identifier pair to harvest
type PostTarget struct {
	Platform Platform `json:"platform"`
	PostID   string   `json:"post_id"`
}

func (t PostTarget) String() string {
	return string(t.Platform) + ":" + t.PostID
}

// CommentRecord is the normalized unit of output.
// ParentCommentID is empty for top-level comments.
type CommentRecord struct {
	Platform        Platform  `json:"platform"`
	PostID          string    `json:"post_id"`
	CommentID       string    `json:"comment_id"`
	Author          string    `json:"author"`
	Text            string    `json:"text"`
	LikeCount       int64     `json:"like_count"`
	CreatedAt       time.Time `json:"created_at"`
	ParentCommentID string    `json:"parent_comment_id,omitempty"`
}

// Page is one decoded response: the comments it carried, where the next
// page starts, and how many comment entries were unusable.
// NextCursor is meaningful only when HasMore is true.
// Threads lists comments whose replies were only partly inlined.
type Page struct {
	Comments   []CommentRecord
	NextCursor string
	HasMore    bool
	Malformed  int
	Threads    []ReplyThread
}

// ReplyThread is a top-level comment with more replies than its page carried
type ReplyThread struct {
	ParentID string
	Total    int
	Inline   int
}

// Checkpoint is the persisted progress marker for one post.
// When Done is true, Cursor holds the last cursor fetched.
type Checkpoint struct {
	Platform      Platform  `json:"platform"`
	PostID        string    `json:"post_id"`
	Cursor        string    `json:"cursor"`
	Done          bool      `json:"done"`
	EmittedCount  int       `json:"emitted_count"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CursorOrDone renders the checkpoint's position for tabular output
func (c Checkpoint) CursorOrDone() string {
	if c.Done {
		return "done"
	}
	return c.Cursor
}

// OutcomeStatus is the terminal state of one post within a run
type OutcomeStatus string

const (
	OutcomeDone      OutcomeStatus = "done"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeAborted   OutcomeStatus = "aborted"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// PostOutcome summarises one post's harvest
type PostOutcome struct {
	Target     PostTarget    `json:"target"`
	Status     OutcomeStatus `json:"status"`
	Pages      int           `json:"pages"`
	Comments   int           `json:"comments"`
	Duplicates int           `json:"duplicates"`
	Malformed  int           `json:"malformed"`
	Retries    int           `json:"retries"`
	ReplyPages int           `json:"reply_pages"`
	Error      string        `json:"error,omitempty"`
}

// Summary is the run-level report consumed by downstream tooling
type Summary struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	PostsTotal int           `json:"posts_total"`
	Succeeded  int           `json:"posts_succeeded"`
	Skipped    int           `json:"posts_skipped"`
	Aborted    int           `json:"posts_aborted"`
	Cancelled  int           `json:"posts_cancelled"`
	Comments   int           `json:"comments_emitted"`
	Duplicates int           `json:"duplicates_dropped"`
	Malformed  int           `json:"malformed_dropped"`
	Retries    int           `json:"retries"`
	ReplyPages int           `json:"reply_pages"`
	AuthFailed bool          `json:"auth_failed"`
	Posts      []PostOutcome `json:"posts"`
}

// Add folds one post outcome into the totals
func (s *Summary) Add(o PostOutcome) {
	s.Posts = append(s.Posts, o)
	switch o.Status {
	case OutcomeDone:
		s.Succeeded++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeAborted:
		s.Aborted++
	case OutcomeCancelled:
		s.Cancelled++
	}
	s.Comments += o.Comments
	s.Duplicates += o.Duplicates
	s.Malformed += o.Malformed
	s.Retries += o.Retries
	s.ReplyPages += o.ReplyPages
}

// Outcome returns the outcome recorded for target, if any
func (s *Summary) Outcome(target PostTarget) (PostOutcome, bool) {
	for _, o := range s.Posts {
		if o.Target == target {
			return o, true
		}
	}
	return PostOutcome{}, false
}
