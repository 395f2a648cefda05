// Package tiktok implements the public cursor-paged comment source.
package tiktok

import (
	"fmt"
	"net/http"
	"net/url"

	"commentharvest/pkg/models"
	"commentharvest/pkg/transport"
)

// Config holds the request parameters for the public comment API
type Config struct {
	BaseURL   string
	AID       string
	PageSize  int
	UserAgent string
}

// Source builds comment-list requests and parses their responses
type Source struct {
	cfg  Config
	host string
}

// NewSource creates a TikTok source
func NewSource(cfg Config) (*Source, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.AID == "" {
		cfg.AID = DefaultAID
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid tiktok base url %q", cfg.BaseURL)
	}
	return &Source{cfg: cfg, host: u.Host}, nil
}

// Platform returns the platform tag this source serves
func (s *Source) Platform() models.Platform { return models.PlatformTikTok }

// Host returns the host all requests go to
func (s *Source) Host() string { return s.host }

// NewRequest builds the request for the page starting at cursor
func (s *Source) NewRequest(target models.PostTarget, cursor string) (*http.Request, error) {
	return transport.NewGetRequest(
		CommentListURL(s.cfg.BaseURL, s.cfg.AID, target.PostID, cursor, s.cfg.PageSize),
		s.headers(target),
	)
}

// NewReplyRequest builds the request for the reply page of parentID
// starting at cursor
func (s *Source) NewReplyRequest(target models.PostTarget, parentID, cursor string) (*http.Request, error) {
	return transport.NewGetRequest(
		ReplyListURL(s.cfg.BaseURL, s.cfg.AID, target.PostID, parentID, cursor, s.cfg.PageSize),
		s.headers(target),
	)
}

func (s *Source) headers(target models.PostTarget) map[string]string {
	headers := map[string]string{
		"Referer": VideoURL(s.cfg.BaseURL, target.PostID),
	}
	if s.cfg.UserAgent != "" {
		headers["User-Agent"] = s.cfg.UserAgent
	}
	return headers
}

// ParsePage decodes a response for target fetched at cursor
func (s *Source) ParsePage(target models.PostTarget, cursor string, body []byte) (models.Page, error) {
	return ParsePage(target.PostID, cursor, body)
}

// ParseReplyPage decodes a reply-list response for parentID
func (s *Source) ParseReplyPage(target models.PostTarget, parentID, cursor string, body []byte) (models.Page, error) {
	return ParseReplyPage(target.PostID, parentID, cursor, body)
}
