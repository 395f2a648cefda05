package instagram

import (
	"net/http"
	"strings"
	"time"

	errs "commentharvest/pkg/errors"
	"commentharvest/pkg/models"

	"github.com/tidwall/gjson"
)

// ParsePage decodes one comments query response. Top-level comments come
// from edge_media_to_parent_comment and each node's threaded replies are
// emitted one level deep with ParentCommentID set.
func ParsePage(shortcode string, body []byte) (models.Page, error) {
	var page models.Page

	root, err := envelope(body)
	if err != nil {
		return page, err
	}

	media := root.Get("data.shortcode_media")
	if !media.Exists() {
		return page, errs.New(errs.ErrorTypeParsing, 0, "response has no shortcode_media")
	}
	if media.Type == gjson.Null {
		return page, errs.New(errs.ErrorTypeNotFound, http.StatusNotFound, "post %s is unavailable", shortcode)
	}

	comments := media.Get("edge_media_to_parent_comment")
	if !comments.Exists() {
		comments = media.Get("edge_media_to_comment")
	}

	comments.Get("edges").ForEach(func(_, edge gjson.Result) bool {
		node := edge.Get("node")
		rec, ok := parseNode(node, shortcode, "")
		if !ok {
			page.Malformed++
			return true
		}
		page.Comments = append(page.Comments, rec)

		node.Get("edge_threaded_comments.edges").ForEach(func(_, r gjson.Result) bool {
			reply, ok := parseNode(r.Get("node"), shortcode, rec.CommentID)
			if !ok {
				page.Malformed++
				return true
			}
			page.Comments = append(page.Comments, reply)
			return true
		})
		return true
	})

	info := comments.Get("page_info")
	page.NextCursor = info.Get("end_cursor").String()
	page.HasMore = info.Get("has_next_page").Bool() && page.NextCursor != ""

	return page, nil
}

// envelope validates the outer response shape shared by every endpoint
func envelope(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errs.New(errs.ErrorTypeParsing, 0, "response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return root, errs.New(errs.ErrorTypeParsing, 0, "response is not a JSON object")
	}

	message := root.Get("message").String()
	if root.Get("require_login").Bool() || root.Get("requires_to_login").Bool() || message == "login_required" ||
		root.Get("checkpoint_url").Exists() {
		return root, errs.New(errs.ErrorTypeAuth, http.StatusUnauthorized, "session is not logged in")
	}

	if status := root.Get("status").String(); status != "ok" {
		lower := strings.ToLower(message)
		if strings.Contains(lower, "wait a few minutes") || strings.Contains(lower, "rate limit") {
			return root, errs.New(errs.ErrorTypeRateLimit, http.StatusTooManyRequests, "throttled: %s", message)
		}
		return root, errs.New(errs.ErrorTypeParsing, 0, "unexpected status %q: %s", status, message)
	}

	return root, nil
}

func parseNode(node gjson.Result, shortcode, parentID string) (models.CommentRecord, bool) {
	if !node.IsObject() {
		return models.CommentRecord{}, false
	}
	id := node.Get("id").String()
	if id == "" {
		return models.CommentRecord{}, false
	}

	var created time.Time
	if ts := node.Get("created_at").Int(); ts > 0 {
		created = time.Unix(ts, 0).UTC()
	}

	return models.CommentRecord{
		Platform:        models.PlatformInstagram,
		PostID:          shortcode,
		CommentID:       id,
		Author:          node.Get("owner.username").String(),
		Text:            node.Get("text").String(),
		LikeCount:       node.Get("edge_liked_by.count").Int(),
		CreatedAt:       created,
		ParentCommentID: parentID,
	}, true
}
