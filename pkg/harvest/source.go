package harvest

import (
	"context"
	"net/http"

	"commentharvest/pkg/models"
	"commentharvest/pkg/transport"
)

// Source is one platform's comment API: how to ask for a page and how
// to read the answer. Implementations hold no per-post state.
type Source interface {
	Platform() models.Platform
	Host() string
	NewRequest(target models.PostTarget, cursor string) (*http.Request, error)
	ParsePage(target models.PostTarget, cursor string, body []byte) (models.Page, error)
}

// ReplySource is implemented by sources that can page through the replies
// to one comment. The driver walks every Page.Threads entry through it
// before checkpointing the page the thread was found on.
type ReplySource interface {
	NewReplyRequest(target models.PostTarget, parentID, cursor string) (*http.Request, error)
	ParseReplyPage(target models.PostTarget, parentID, cursor string, body []byte) (models.Page, error)
}

// SessionValidator is implemented by sources that need credentials.
// The orchestrator calls it once per run before harvesting any post.
type SessionValidator interface {
	ValidateSession(ctx context.Context, fetcher transport.Fetcher) error
}
