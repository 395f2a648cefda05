// Package checkpoint persists per-post harvest progress as JSON files.
//
// Each post gets one file under <dir>/<platform>/<post_id>.checkpoint.json
// holding the last completed cursor (or done), the number of comments
// emitted and the last attempt time. Files are replaced atomically so a
// crash leaves either the previous or the new checkpoint, never a torn one.
package checkpoint
