package cache

import "time"

// EntryType names a family of cached upstream responses. Each type carries its
// own TTL.
type EntryType string

// Last.fm entry types.
const (
	UserRecentTracks    EntryType = "userRecentTracks"
	UserTopArtists      EntryType = "userTopArtists"
	UserTopAlbums       EntryType = "userTopAlbums"
	UserTopTracks       EntryType = "userTopTracks"
	UserLovedTracks     EntryType = "userLovedTracks"
	UserInfo            EntryType = "userInfo"
	UserListeningStats  EntryType = "userListeningStats"
	UserRecommendations EntryType = "userRecommendations"
	TrackInfo           EntryType = "trackInfo"
	ArtistInfo          EntryType = "artistInfo"
	AlbumInfo           EntryType = "albumInfo"
	SimilarArtists      EntryType = "similarArtists"
	SimilarTracks       EntryType = "similarTracks"
	Search              EntryType = "search"
)

// Discogs entry types.
const (
	Collection       EntryType = "collection"
	Release          EntryType = "release"
	CollectionSearch EntryType = "collectionSearch"
)

// Policy configures entry lifetimes.
type Policy struct {
	// TTLs maps entry types to their lifetime.
	TTLs map[EntryType]time.Duration

	// DefaultTTL applies to entry types missing from TTLs.
	DefaultTTL time.Duration

	// MaxTTL clamps every lifetime. If zero, no maximum is enforced.
	MaxTTL time.Duration
}

// DefaultTTLs returns the built-in lifetimes. User activity changes
// continuously and is cached for minutes; catalog metadata for a day.
func DefaultTTLs() map[EntryType]time.Duration {
	return map[EntryType]time.Duration{
		UserRecentTracks:    5 * time.Minute,
		UserTopArtists:      time.Hour,
		UserTopAlbums:       time.Hour,
		UserTopTracks:       time.Hour,
		UserLovedTracks:     30 * time.Minute,
		UserInfo:            time.Hour,
		UserListeningStats:  30 * time.Minute,
		UserRecommendations: time.Hour,
		TrackInfo:           24 * time.Hour,
		ArtistInfo:          24 * time.Hour,
		AlbumInfo:           24 * time.Hour,
		SimilarArtists:      24 * time.Hour,
		SimilarTracks:       24 * time.Hour,
		Search:              time.Hour,

		Collection:       30 * time.Minute,
		Release:          24 * time.Hour,
		CollectionSearch: 15 * time.Minute,
	}
}

// DefaultPolicy returns the default policy.
// DefaultTTL: 5 minutes, MaxTTL: 24 hours.
func DefaultPolicy() Policy {
	return Policy{
		TTLs:       DefaultTTLs(),
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     24 * time.Hour,
	}
}

// TTL returns the lifetime of entries of type t, applying the default and
// clamping to MaxTTL.
func (p Policy) TTL(t EntryType) time.Duration {
	ttl, ok := p.TTLs[t]
	if !ok || ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}
