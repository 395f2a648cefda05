package instagram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"commentharvest/pkg/auth"
	errs "commentharvest/pkg/errors"
	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"
	"commentharvest/pkg/transport"
)

// Config holds request parameters for the GraphQL comment source
type Config struct {
	BaseURL   string
	AppID     string
	UserAgent string
	PageSize  int
}

// Source builds authenticated comment queries and parses their responses
type Source struct {
	cfg     Config
	host    string
	session auth.Session
	logger  logger.Logger
}

// NewSource creates an Instagram source bound to session
func NewSource(cfg Config, session auth.Session, log logger.Logger) (*Source, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.AppID == "" {
		cfg.AppID = DefaultAppID
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultCommentLimit
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid instagram base url %q", cfg.BaseURL)
	}

	return &Source{cfg: cfg, host: u.Host, session: session, logger: log}, nil
}

// Platform returns the platform tag this source serves
func (s *Source) Platform() models.Platform { return models.PlatformInstagram }

// Host returns the host all requests go to
func (s *Source) Host() string { return s.host }

// headers returns the per-request headers, cookie included
func (s *Source) headers(referer string) map[string]string {
	h := map[string]string{
		"Accept":           "*/*",
		"X-Requested-With": "XMLHttpRequest",
		"X-IG-App-ID":      s.cfg.AppID,
		"X-CSRFToken":      s.session.CSRFToken,
		"Cookie":           s.session.CookieHeader(),
		"Referer":          referer,
	}
	if s.cfg.UserAgent != "" {
		h["User-Agent"] = s.cfg.UserAgent
	}
	return h
}

// NewRequest builds the comments query for the page after cursor
func (s *Source) NewRequest(target models.PostTarget, cursor string) (*http.Request, error) {
	return transport.NewGetRequest(
		CommentsURL(s.cfg.BaseURL, target.PostID, cursor, s.cfg.PageSize),
		s.headers(PostURL(s.cfg.BaseURL, target.PostID)),
	)
}

// ParsePage decodes a comments query response for target
func (s *Source) ParsePage(target models.PostTarget, cursor string, body []byte) (models.Page, error) {
	return ParsePage(target.PostID, body)
}

// ValidateSession checks the session is complete and that Instagram
// accepts it, before any per-post work starts.
func (s *Source) ValidateSession(ctx context.Context, fetcher transport.Fetcher) error {
	if err := s.session.Validate(); err != nil {
		return errs.Wrap(errs.ErrorTypeAuth, 0, err, "instagram session incomplete")
	}

	req, err := transport.NewGetRequest(ProfileURL(s.cfg.BaseURL, sessionCheckUsername), s.headers(s.cfg.BaseURL+"/"))
	if err != nil {
		return err
	}

	body, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if _, err := envelope(body); err != nil {
		return err
	}

	s.logger.InfoWithFields("instagram session accepted", map[string]interface{}{
		"session": s.session.String(),
	})
	return nil
}
