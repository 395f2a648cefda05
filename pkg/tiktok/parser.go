package tiktok

import (
	"strconv"
	"time"

	errs "commentharvest/pkg/errors"
	"commentharvest/pkg/models"

	"github.com/tidwall/gjson"
)

// ParsePage decodes one comment-list response. Only an unrecognizable
// envelope fails the page; individual comments without an id are
// skipped and counted in Page.Malformed.
func ParsePage(postID, cursor string, body []byte) (models.Page, error) {
	var page models.Page

	root, err := decodeEnvelope(body, "comment list")
	if err != nil {
		return page, err
	}

	topLevel := 0
	root.Get("comments").ForEach(func(_, c gjson.Result) bool {
		topLevel++
		rec, ok := parseComment(c, postID, "")
		if !ok {
			page.Malformed++
			return true
		}
		page.Comments = append(page.Comments, rec)

		inline := 0
		c.Get("reply_comment").ForEach(func(_, r gjson.Result) bool {
			inline++
			reply, ok := parseComment(r, postID, rec.CommentID)
			if !ok {
				page.Malformed++
				return true
			}
			page.Comments = append(page.Comments, reply)
			return true
		})

		if total := int(c.Get("reply_comment_total").Int()); total > inline {
			page.Threads = append(page.Threads, models.ReplyThread{
				ParentID: rec.CommentID,
				Total:    total,
				Inline:   inline,
			})
		}
		return true
	})

	page.HasMore = root.Get("has_more").Bool()
	if page.HasMore {
		page.NextCursor = nextCursor(root.Get("cursor"), cursor, topLevel)
	}

	return page, nil
}

// ParseReplyPage decodes one reply-list response for parentID. Replies
// are kept one level deep: nested reply previews are ignored.
func ParseReplyPage(postID, parentID, cursor string, body []byte) (models.Page, error) {
	var page models.Page

	root, err := decodeEnvelope(body, "reply list")
	if err != nil {
		return page, err
	}

	n := 0
	root.Get("comments").ForEach(func(_, c gjson.Result) bool {
		n++
		reply, ok := parseComment(c, postID, parentID)
		if !ok {
			page.Malformed++
			return true
		}
		page.Comments = append(page.Comments, reply)
		return true
	})

	page.HasMore = root.Get("has_more").Bool()
	if page.HasMore {
		page.NextCursor = nextCursor(root.Get("cursor"), cursor, n)
	}

	return page, nil
}

func decodeEnvelope(body []byte, what string) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errs.New(errs.ErrorTypeParsing, 0, "response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return gjson.Result{}, errs.New(errs.ErrorTypeParsing, 0, "response is not a JSON object")
	}

	status := root.Get("status_code")
	if !status.Exists() && !root.Get("comments").Exists() {
		return gjson.Result{}, errs.New(errs.ErrorTypeParsing, 0, "unrecognized %s envelope", what)
	}
	if status.Exists() && status.Int() != 0 {
		return gjson.Result{}, errs.New(errs.ErrorTypeParsing, 0, "%s failed: status_code=%d %s",
			what, status.Int(), root.Get("status_msg").String())
	}
	return root, nil
}

// nextCursor prefers the server's cursor and falls back to offset paging,
// where n is the number of entries the server counted on this page
func nextCursor(server gjson.Result, current string, n int) string {
	if server.Exists() && server.String() != "" {
		return server.String()
	}
	offset, _ := strconv.Atoi(current)
	return strconv.Itoa(offset + n)
}

func parseComment(c gjson.Result, postID, parentID string) (models.CommentRecord, bool) {
	if !c.IsObject() {
		return models.CommentRecord{}, false
	}
	id := c.Get("cid").String()
	if id == "" {
		return models.CommentRecord{}, false
	}

	author := c.Get("user.unique_id").String()
	if author == "" {
		author = c.Get("user.nickname").String()
	}

	var created time.Time
	if ts := c.Get("create_time").Int(); ts > 0 {
		created = time.Unix(ts, 0).UTC()
	}

	return models.CommentRecord{
		Platform:        models.PlatformTikTok,
		PostID:          postID,
		CommentID:       id,
		Author:          author,
		Text:            c.Get("text").String(),
		LikeCount:       c.Get("digg_count").Int(),
		CreatedAt:       created,
		ParentCommentID: parentID,
	}, true
}
