// Package lastfm is a read-only client for the Last.fm API 2.0.
//
// Responses are returned as raw JSON; the server caches them without
// decoding. Every call is paced to the per-key request budget and retried on
// transient failures through the resilience package.
//
//	client, err := lastfm.New(lastfm.Config{APIKey: key})
//	body, err := client.Execute(ctx, "get_recent_tracks", map[string]string{"user": "rj"})
package lastfm
