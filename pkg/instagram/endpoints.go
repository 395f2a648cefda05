package instagram

import (
	"encoding/json"
	"fmt"
	"net/url"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// ProfileEndpoint is used to check whether a session is accepted
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// GraphQLEndpoint serves persisted GraphQL queries
	GraphQLEndpoint = "/graphql/query/"

	// CommentsQueryHash selects top-level comments of a post, each with
	// its first page of threaded replies
	CommentsQueryHash = "97b41c52301f77ce508f55e66d17620e"

	// DefaultAppID is the web app id sent in X-IG-App-ID
	DefaultAppID = "936619743392459"

	// DefaultCommentLimit is the number of comments requested per page
	DefaultCommentLimit = 50

	// MaxCommentLimit is the largest page the endpoint serves
	MaxCommentLimit = 50

	// sessionCheckUsername is a public account used for session checks
	sessionCheckUsername = "instagram"
)

// commentVariables is the GraphQL variables object of CommentsQueryHash
type commentVariables struct {
	Shortcode string `json:"shortcode"`
	First     int    `json:"first"`
	After     string `json:"after,omitempty"`
}

// CommentsURL constructs the URL for one page of a post's comments
func CommentsURL(baseURL, shortcode, after string, limit int) string {
	if limit <= 0 || limit > MaxCommentLimit {
		limit = DefaultCommentLimit
	}

	variables, _ := json.Marshal(commentVariables{Shortcode: shortcode, First: limit, After: after})

	params := url.Values{}
	params.Set("query_hash", CommentsQueryHash)
	params.Set("variables", string(variables))

	return fmt.Sprintf("%s%s?%s", baseURL, GraphQLEndpoint, params.Encode())
}

// ProfileURL constructs the URL for fetching a user's profile
func ProfileURL(baseURL, username string) string {
	params := url.Values{}
	params.Set("username", username)

	return fmt.Sprintf("%s%s?%s", baseURL, ProfileEndpoint, params.Encode())
}

// PostURL constructs the URL for a specific post
func PostURL(baseURL, shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", baseURL, shortcode)
}
