package domain

import (
	"errors"
	"strings"

	"github.com/StarfishJ/SceneSound/internal/textnorm"
)

// DefaultMaxPlaylistSize caps the number of tracks returned for one request.
const DefaultMaxPlaylistSize = 12

// DefaultMinPlaylistSize is the size below which the diversity rule is relaxed.
const DefaultMinPlaylistSize = 6

var (
	ErrDuplicateTrack = errors.New("domain: duplicate track")
	ErrPlaylistFull   = errors.New("domain: playlist is full")
)

// Playlist is the ordered, de-duplicated, size-capped result of one request.
type Playlist struct {
	Tracks []Track
	max    int
	ids    map[string]struct{}
	keys   map[string]struct{}
}

// NewPlaylist returns an empty playlist holding at most maxSize tracks.
// A non-positive maxSize falls back to DefaultMaxPlaylistSize.
func NewPlaylist(maxSize int) *Playlist {
	if maxSize <= 0 {
		maxSize = DefaultMaxPlaylistSize
	}
	return &Playlist{
		Tracks: []Track{},
		max:    maxSize,
		ids:    make(map[string]struct{}),
		keys:   make(map[string]struct{}),
	}
}

// AddTrack appends a track unless it duplicates one already present, either by
// catalog id or by normalised title and artist, or the playlist is full.
func (p *Playlist) AddTrack(t Track) error {
	if len(p.Tracks) >= p.max {
		return ErrPlaylistFull
	}
	if p.Contains(t) {
		return ErrDuplicateTrack
	}
	p.Tracks = append(p.Tracks, t)
	p.ids[t.ID] = struct{}{}
	if k := titleKey(t); k != "" {
		p.keys[k] = struct{}{}
	}
	return nil
}

// Contains reports whether t is a hard duplicate of a track in the playlist.
func (p *Playlist) Contains(t Track) bool {
	if _, ok := p.ids[t.ID]; ok {
		return true
	}
	k := titleKey(t)
	if k == "" {
		return false
	}
	_, ok := p.keys[k]
	return ok
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	return len(p.Tracks)
}

// CurationPolicy configures Curate.
type CurationPolicy struct {
	MaxSize int
	MinSize int
}

// Curate builds a playlist from candidates given in merge order.
//
// Hard duplicates (same id, or same normalised title and artist) are always
// dropped. A track whose lead artist or album is already represented is deferred;
// deferred tracks are only used, in first-seen order, when fewer than MinSize
// tracks were accepted otherwise. The output keeps the candidates' relative
// order and never exceeds MaxSize.
func Curate(candidates []Track, policy CurationPolicy) []Track {
	maxSize := policy.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPlaylistSize
	}
	minSize := min(policy.MinSize, maxSize)

	unique := make([]Track, 0, len(candidates))
	seen := NewPlaylist(len(candidates) + 1)
	for _, c := range candidates {
		if c.ID == "" {
			continue
		}
		if seen.AddTrack(c) == nil {
			unique = append(unique, c)
		}
	}

	accepted := make([]bool, len(unique))
	count := 0
	artists := make(map[string]struct{})
	albums := make(map[string]struct{})
	for i, t := range unique {
		if count >= maxSize {
			break
		}
		artist := leadArtist(t)
		album := textnorm.Title(t.Album)
		if _, dup := artists[artist]; dup && artist != "" {
			continue
		}
		if _, dup := albums[album]; dup && album != "" {
			continue
		}
		accepted[i] = true
		count++
		artists[artist] = struct{}{}
		albums[album] = struct{}{}
	}

	for i := range unique {
		if count >= minSize {
			break
		}
		if !accepted[i] {
			accepted[i] = true
			count++
		}
	}

	out := make([]Track, 0, count)
	for i, t := range unique {
		if accepted[i] && len(out) < maxSize {
			out = append(out, t)
		}
	}
	return out
}

// titleKey is empty unless both title and artist are known; without an
// artist only the id identifies a track.
func titleKey(t Track) string {
	title := textnorm.Title(t.Name)
	artist := textnorm.Title(t.Artist)
	if title == "" || artist == "" {
		return ""
	}
	return title + "\x00" + artist
}

// leadArtist is the normalised first credited artist. Catalog tracks join
// their artists with ", ".
func leadArtist(t Track) string {
	first, _, _ := strings.Cut(t.Artist, ", ")
	return textnorm.Title(first)
}
