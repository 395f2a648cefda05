package instagram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"commentharvest/pkg/auth"
	errs "commentharvest/pkg/errors"
	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"
	"commentharvest/pkg/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() auth.Session {
	return auth.Session{
		SessionID: "sess-0123456789",
		UserID:    "8900000000",
		CSRFToken: "csrf-abcdefghij",
		ClientID:  "mid-zyxwvutsrq",
	}
}

func TestParsePage(t *testing.T) {
	body, err := os.ReadFile(filepath.Join("testdata", "comments_page.json"))
	require.NoError(t, err)

	page, err := ParsePage("Cabc123", body)
	require.NoError(t, err)

	require.Len(t, page.Comments, 3)
	assert.Equal(t, 2, page.Malformed)
	assert.True(t, page.HasMore)
	assert.Equal(t, "QVFDcursor1", page.NextCursor)

	assert.Equal(t, models.CommentRecord{
		Platform:  models.PlatformInstagram,
		PostID:    "Cabc123",
		CommentID: "17900000000000001",
		Author:    "alice",
		Text:      "great shot",
		LikeCount: 3,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}, page.Comments[0])

	reply := page.Comments[1]
	assert.Equal(t, "17900000000000011", reply.CommentID)
	assert.Equal(t, "17900000000000001", reply.ParentCommentID)
	assert.Equal(t, "bob", reply.Author)

	assert.Equal(t, "17900000000000002", page.Comments[2].CommentID)
	assert.Empty(t, page.Comments[2].ParentCommentID)
}

func TestParseLastPage(t *testing.T) {
	body := `{"status":"ok","data":{"shortcode_media":{"edge_media_to_parent_comment":{
		"page_info":{"has_next_page":false,"end_cursor":null},
		"edges":[{"node":{"id":"1","text":"only"}}]}}}}`

	page, err := ParsePage("C1", []byte(body))
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Len(t, page.Comments, 1)
}

func TestParseEnvelopeFailures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected errs.ErrorType
	}{
		{"html", `<!DOCTYPE html><html></html>`, errs.ErrorTypeParsing},
		{"login required", `{"message":"login_required","require_login":true,"status":"fail"}`, errs.ErrorTypeAuth},
		{"checkpoint", `{"message":"checkpoint_required","checkpoint_url":"/challenge/","status":"fail"}`, errs.ErrorTypeAuth},
		{"throttled", `{"message":"Please wait a few minutes before you try again.","status":"fail"}`, errs.ErrorTypeRateLimit},
		{"failed status", `{"message":"execution failure","status":"fail"}`, errs.ErrorTypeParsing},
		{"missing media", `{"data":{},"status":"ok"}`, errs.ErrorTypeParsing},
		{"deleted post", `{"data":{"shortcode_media":null},"status":"ok"}`, errs.ErrorTypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePage("C1", []byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, tt.expected, errs.TypeOf(err))
		})
	}
}

func TestNewRequestCarriesSession(t *testing.T) {
	src, err := NewSource(Config{BaseURL: "https://ig.example", UserAgent: "ua", PageSize: 25}, testSession(), logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "ig.example", src.Host())

	req, err := src.NewRequest(models.PostTarget{Platform: models.PlatformInstagram, PostID: "Cabc123"}, "QVFD")
	require.NoError(t, err)

	assert.Equal(t, "/graphql/query/", req.URL.Path)
	assert.Equal(t, CommentsQueryHash, req.URL.Query().Get("query_hash"))

	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(req.URL.Query().Get("variables")), &vars))
	assert.Equal(t, "Cabc123", vars["shortcode"])
	assert.Equal(t, float64(25), vars["first"])
	assert.Equal(t, "QVFD", vars["after"])

	sess := testSession()
	assert.Equal(t, sess.CookieHeader(), req.Header.Get("Cookie"))
	assert.Equal(t, "csrf-abcdefghij", req.Header.Get("X-CSRFToken"))
	assert.Equal(t, DefaultAppID, req.Header.Get("X-IG-App-ID"))
	assert.Equal(t, "XMLHttpRequest", req.Header.Get("X-Requested-With"))
	assert.Equal(t, "https://ig.example/p/Cabc123/", req.Header.Get("Referer"))
}

func TestFirstPageOmitsAfter(t *testing.T) {
	raw := CommentsURL(BaseURL, "C1", "", 0)
	req, err := http.NewRequest(http.MethodGet, raw, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"shortcode":"C1","first":50}`, req.URL.Query().Get("variables"))
}

func TestValidateSession(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr errs.ErrorType
	}{
		{"accepted", http.StatusOK, `{"data":{"user":{"id":"25025320"}},"status":"ok"}`, ""},
		{"forbidden", http.StatusForbidden, ``, errs.ErrorTypeAuth},
		{"logged out body", http.StatusOK, `{"message":"login_required","require_login":true,"status":"fail"}`, errs.ErrorTypeAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, ProfileEndpoint, r.URL.Path)
				assert.Contains(t, r.Header.Get("Cookie"), "sessionid=sess-0123456789")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			tl := logger.NewTestLogger()
			src, err := NewSource(Config{BaseURL: server.URL}, testSession(), tl)
			require.NoError(t, err)

			err = src.ValidateSession(context.Background(), transport.NewClient(5*time.Second, tl))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.False(t, tl.Contains("sess-0123456789"))
				return
			}
			assert.Equal(t, tt.wantErr, errs.TypeOf(err))
		})
	}
}

func TestValidateSessionIncomplete(t *testing.T) {
	src, err := NewSource(Config{}, auth.Session{SessionID: "only"}, logger.NewNopLogger())
	require.NoError(t, err)

	err = src.ValidateSession(context.Background(), transport.NewClient(time.Second, logger.NewNopLogger()))
	assert.True(t, errs.IsAuth(err))
}
