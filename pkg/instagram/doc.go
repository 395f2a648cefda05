// Package instagram implements the authenticated GraphQL comment source.
//
// Requests carry the four session cookies (sessionid, ds_user_id,
// csrftoken, mid) plus the web app headers the endpoint expects. Pages
// are cursor-linked through page_info.end_cursor; replies embedded in
// each comment node are emitted one level deep.
//
// A response that says the session is logged out is classified as an
// auth failure, which halts the whole run rather than the one post.
package instagram
