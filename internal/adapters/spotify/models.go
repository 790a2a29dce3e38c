package spotify

// searchResponse is the body of GET /search?type=track. Tracks is a pointer so
// a body without the "tracks" object can be told apart from an empty result.
type searchResponse struct {
	Tracks *trackPage `json:"tracks"`
}

type trackPage struct {
	Items []spotifyTrack `json:"items"`
	Total int            `json:"total"`
}

// spotifyTrack represents the Spotify API response for a track.
type spotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []spotifyArtist `json:"artists"`
	Album        spotifyAlbum    `json:"album"`
	PreviewURL   *string         `json:"preview_url"`
	ExternalURLs externalURLs    `json:"external_urls"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyAlbum struct {
	Name   string         `json:"name"`
	Images []spotifyImage `json:"images"`
}

type spotifyImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}
