package feed

import "fmt"

// Event is the normalized result of parsing one feed entry.
type Event struct {
	VideoID      string `json:"video_id"`
	ChannelID    string `json:"channel_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	PublishedAt  string `json:"published_at"`
	Author       string `json:"author"`
	VideoURL     string `json:"video_url"`
}

// ParseError reports a body that is not well-formed XML. It wraps the raw
// decoder diagnostic and is terminal for the request.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid XML: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
