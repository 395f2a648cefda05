package tiktok

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// BaseURL is the public web origin
	BaseURL = "https://www.tiktok.com"

	// CommentListEndpoint returns one page of top-level comments
	CommentListEndpoint = "/api/comment/list/"

	// ReplyListEndpoint returns one page of replies to a comment
	ReplyListEndpoint = "/api/comment/list/reply/"

	// DefaultAID is the web application id the comment API expects
	DefaultAID = "1988"

	// DefaultPageSize is the number of comments requested per page
	DefaultPageSize = 50

	// MaxPageSize is the largest page the API serves
	MaxPageSize = 50
)

// CommentListURL builds the URL for one page of a video's comments.
// An empty cursor starts from the beginning.
func CommentListURL(baseURL, aid, awemeID, cursor string, count int) string {
	if count <= 0 || count > MaxPageSize {
		count = DefaultPageSize
	}
	if cursor == "" {
		cursor = "0"
	}

	params := url.Values{}
	params.Set("aid", aid)
	params.Set("aweme_id", awemeID)
	params.Set("count", strconv.Itoa(count))
	params.Set("cursor", cursor)

	return fmt.Sprintf("%s%s?%s", baseURL, CommentListEndpoint, params.Encode())
}

// ReplyListURL builds the URL for one page of replies to commentID
func ReplyListURL(baseURL, aid, awemeID, commentID, cursor string, count int) string {
	if count <= 0 || count > MaxPageSize {
		count = DefaultPageSize
	}
	if cursor == "" {
		cursor = "0"
	}

	params := url.Values{}
	params.Set("aid", aid)
	params.Set("item_id", awemeID)
	params.Set("comment_id", commentID)
	params.Set("count", strconv.Itoa(count))
	params.Set("cursor", cursor)

	return fmt.Sprintf("%s%s?%s", baseURL, ReplyListEndpoint, params.Encode())
}

// VideoURL returns the public page of a video
func VideoURL(baseURL, awemeID string) string {
	return fmt.Sprintf("%s/video/%s", baseURL, awemeID)
}
