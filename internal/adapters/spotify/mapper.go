package spotify

import (
	"strings"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
)

// mapTrackToDomain converts a raw Spotify track to a domain track. ok is false
// for items that cannot be shown (no id or no name).
func mapTrackToDomain(st spotifyTrack) (domain.Track, bool) {
	if st.ID == "" || strings.TrimSpace(st.Name) == "" {
		return domain.Track{}, false
	}

	artistNames := make([]string, 0, len(st.Artists))
	for _, a := range st.Artists {
		if a.Name != "" {
			artistNames = append(artistNames, a.Name)
		}
	}

	// Spotify lists album images largest first.
	coverURL := ""
	if len(st.Album.Images) > 0 {
		coverURL = st.Album.Images[0].URL
	}

	preview := ""
	if st.PreviewURL != nil {
		preview = *st.PreviewURL
	}

	return domain.Track{
		ID:            st.ID,
		Name:          st.Name,
		Artist:        strings.Join(artistNames, ", "),
		Album:         st.Album.Name,
		AlbumImageURL: coverURL,
		PreviewURL:    preview,
		ExternalURL:   st.ExternalURLs.Spotify,
	}, true
}
