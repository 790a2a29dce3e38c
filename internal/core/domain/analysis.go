package domain

import "time"

// AnalysisRecord summarises one analyze request for the audit log.
type AnalysisRecord struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"requestId"`
	CreatedAt  time.Time `json:"createdAt"`
	Stage      Stage     `json:"stage"`
	Status     int       `json:"status"`
	Scenes     []string  `json:"scenes"`
	Styles     []string  `json:"styles"`
	TrackCount int       `json:"trackCount"`
	Degraded   bool      `json:"degraded"`
	HasImage   bool      `json:"hasImage"`
	HasText    bool      `json:"hasText"`
	DurationMS int64     `json:"durationMs"`
}
