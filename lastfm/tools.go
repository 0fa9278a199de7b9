package lastfm

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jonwraymond/musicops/cache"
)

// Tool maps an exposed tool name to a Last.fm API method and the cache entry
// type its results are stored under.
type Tool struct {
	Name      string
	Method    string
	EntryType cache.EntryType

	// Required lists parameters that must be non-empty. Of each "a|b" group,
	// at least one must be set.
	Required []string

	// Optional lists the other parameters the method accepts.
	Optional []string

	// Tags feed cache.SkipRule; read-only tools carry "read".
	Tags []string
}

var (
	paging  = []string{"limit", "page"}
	chart   = []string{"period", "limit", "page"}
	lookups = []string{"username", "autocorrect", "lang"}
)

var tools = []Tool{
	{Name: "get_recent_tracks", Method: "user.getrecenttracks", EntryType: cache.UserRecentTracks, Required: []string{"user"}, Optional: []string{"limit", "page", "from", "to", "extended"}},
	{Name: "get_top_artists", Method: "user.gettopartists", EntryType: cache.UserTopArtists, Required: []string{"user"}, Optional: chart},
	{Name: "get_top_albums", Method: "user.gettopalbums", EntryType: cache.UserTopAlbums, Required: []string{"user"}, Optional: chart},
	{Name: "get_top_tracks", Method: "user.gettoptracks", EntryType: cache.UserTopTracks, Required: []string{"user"}, Optional: chart},
	{Name: "get_loved_tracks", Method: "user.getlovedtracks", EntryType: cache.UserLovedTracks, Required: []string{"user"}, Optional: paging},
	{Name: "get_user_info", Method: "user.getinfo", EntryType: cache.UserInfo, Required: []string{"user"}},
	{Name: "get_weekly_track_chart", Method: "user.getweeklytrackchart", EntryType: cache.UserListeningStats, Required: []string{"user"}, Optional: []string{"from", "to"}},
	{Name: "get_track_info", Method: "track.getinfo", EntryType: cache.TrackInfo, Required: []string{"artist|mbid", "track|mbid"}, Optional: lookups},
	{Name: "get_artist_info", Method: "artist.getinfo", EntryType: cache.ArtistInfo, Required: []string{"artist|mbid"}, Optional: lookups},
	{Name: "get_album_info", Method: "album.getinfo", EntryType: cache.AlbumInfo, Required: []string{"artist|mbid", "album|mbid"}, Optional: lookups},
	{Name: "get_similar_artists", Method: "artist.getsimilar", EntryType: cache.SimilarArtists, Required: []string{"artist|mbid"}, Optional: []string{"limit", "autocorrect"}},
	{Name: "get_similar_tracks", Method: "track.getsimilar", EntryType: cache.SimilarTracks, Required: []string{"artist|mbid", "track|mbid"}, Optional: []string{"limit", "autocorrect"}},
	{Name: "search_artists", Method: "artist.search", EntryType: cache.Search, Required: []string{"artist"}, Optional: paging},
	{Name: "search_albums", Method: "album.search", EntryType: cache.Search, Required: []string{"album"}, Optional: paging},
	{Name: "search_tracks", Method: "track.search", EntryType: cache.Search, Required: []string{"track"}, Optional: []string{"artist", "limit", "page"}},
}

func init() {
	for i := range tools {
		tools[i].Tags = []string{"read"}
	}
}

// Tools returns the tool table sorted by name.
func Tools() []Tool {
	out := slices.Clone(tools)
	slices.SortFunc(out, func(a, b Tool) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// LookupTool returns the tool named name.
func LookupTool(name string) (Tool, bool) {
	i := slices.IndexFunc(tools, func(t Tool) bool { return t.Name == name })
	if i < 0 {
		return Tool{}, false
	}
	return tools[i], true
}

// EntryTypes maps every tool name to its cache entry type, for
// cache.NewToolCache.
func EntryTypes() map[string]cache.EntryType {
	m := make(map[string]cache.EntryType, len(tools))
	for _, t := range tools {
		m[t.Name] = t.EntryType
	}
	return m
}

// Accepts reports whether name is a required or optional parameter of t.
func (t Tool) Accepts(name string) bool {
	if slices.Contains(t.Optional, name) {
		return true
	}
	return slices.ContainsFunc(t.Required, func(req string) bool {
		return slices.Contains(strings.Split(req, "|"), name)
	})
}

// Params returns the subset of params the tool accepts.
func (t Tool) Params(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if t.Accepts(k) {
			out[k] = v
		}
	}
	return out
}

// Validate checks that params satisfy the tool's required parameters.
func (t Tool) Validate(params map[string]string) error {
	for _, req := range t.Required {
		alternatives := strings.Split(req, "|")
		if !slices.ContainsFunc(alternatives, func(p string) bool { return strings.TrimSpace(params[p]) != "" }) {
			return fmt.Errorf("%w: %s needs %s", ErrMissingParam, t.Name, strings.Join(alternatives, " or "))
		}
	}
	return nil
}

// Execute runs tool against the API. It has the cache.ToolExecutor shape.
func (c *Client) Execute(ctx context.Context, tool string, params map[string]string) (any, error) {
	t, ok := LookupTool(tool)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}
	params = t.Params(params)
	if err := t.Validate(params); err != nil {
		return nil, err
	}
	return c.Call(ctx, t.Method, params)
}

var _ cache.ToolExecutor = (*Client)(nil).Execute
