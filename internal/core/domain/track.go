package domain

import "time"

// Track represents a catalog track in the domain layer.
// Tracks are never mutated; the service only filters and re-orders them.
type Track struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Artist        string `json:"artist"`
	Album         string `json:"album,omitempty"`
	AlbumImageURL string `json:"albumImageUrl,omitempty"`
	PreviewURL    string `json:"previewUrl,omitempty"` // optional, catalog may return null
	ExternalURL   string `json:"externalUrl,omitempty"`
	Style         string `json:"style"` // style tag whose query returned this track
}

// AccessToken is a catalog bearer token.
type AccessToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	Expiry      time.Time `json:"-"`
}

// Valid reports whether the token is present and not expired.
func (t AccessToken) Valid() bool {
	if t.AccessToken == "" {
		return false
	}
	return t.Expiry.IsZero() || time.Now().Before(t.Expiry)
}
