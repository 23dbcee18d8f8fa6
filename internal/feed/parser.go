// Package feed parses YouTube push-notification payloads (Atom with YouTube
// and Media RSS extensions) into normalized video events.
//
// Elements are matched by namespace URI, never by prefix, so documents that
// rename yt: or media: prefixes parse identically. Both delivery shapes are
// handled: a <feed> wrapping zero or more <entry> elements, and a bare
// top-level <entry> as produced by real push deliveries.
package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soulxhy/tubewatch/internal/log"
	"github.com/soulxhy/tubewatch/internal/metrics"
)

// Namespace URIs used by YouTube push notifications.
const (
	nsAtom    = "http://www.w3.org/2005/Atom"
	nsYouTube = "http://www.youtube.com/xml/schemas/2015"
	nsMedia   = "http://search.yahoo.com/mrss/"
)

// WatchURLPrefix is the canonical video URL prefix used when an entry has no
// explicit link element.
const WatchURLPrefix = "https://www.youtube.com/watch?v="

// ErrNoValidEntries is returned when the document contained entries but every
// one of them was missing a required field.
var ErrNoValidEntries = errors.New("no valid entries in notification")

type linkXML struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type authorXML struct {
	Name string `xml:"http://www.w3.org/2005/Atom name"`
	URI  string `xml:"http://www.w3.org/2005/Atom uri"`
}

type thumbnailXML struct {
	URL string `xml:"url,attr"`
}

type mediaGroupXML struct {
	Title       string        `xml:"http://search.yahoo.com/mrss/ title"`
	Description string        `xml:"http://search.yahoo.com/mrss/ description"`
	Thumbnail   *thumbnailXML `xml:"http://search.yahoo.com/mrss/ thumbnail"`
}

type entryXML struct {
	VideoID   string         `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	ChannelID string         `xml:"http://www.youtube.com/xml/schemas/2015 channelId"`
	Title     string         `xml:"http://www.w3.org/2005/Atom title"`
	Links     []linkXML      `xml:"http://www.w3.org/2005/Atom link"`
	Published string         `xml:"http://www.w3.org/2005/Atom published"`
	Author    authorXML      `xml:"http://www.w3.org/2005/Atom author"`
	Group     *mediaGroupXML `xml:"http://search.yahoo.com/mrss/ group"`
}

type feedXML struct {
	Entries []entryXML `xml:"http://www.w3.org/2005/Atom entry"`
}

// rootProbe captures only the document's root element name, so the delivery
// shape can be detected before committing to a target struct.
type rootProbe struct {
	XMLName xml.Name
}

// Parser converts raw notification bodies into Events.
type Parser struct {
	logger *slog.Logger
}

func NewParser() *Parser {
	return &Parser{logger: log.WithComponent("feed")}
}

// Parse extracts all valid events from body. Malformed XML yields a
// *ParseError. Entries missing required fields are dropped with a warning;
// if the document had entries but none survived, ErrNoValidEntries is
// returned. A structurally valid document with zero entries yields an empty
// slice and no error.
func (p *Parser) Parse(body []byte) ([]Event, error) {
	var probe rootProbe
	if err := xml.Unmarshal(body, &probe); err != nil {
		return nil, &ParseError{Err: err}
	}

	var entries []entryXML
	if probe.XMLName.Local == "entry" {
		var e entryXML
		if err := xml.Unmarshal(body, &e); err != nil {
			return nil, &ParseError{Err: err}
		}
		entries = []entryXML{e}
	} else {
		var f feedXML
		if err := xml.Unmarshal(body, &f); err != nil {
			return nil, &ParseError{Err: err}
		}
		entries = f.Entries
	}

	events := make([]Event, 0, len(entries))
	for i, e := range entries {
		ev, err := p.normalize(e)
		if err != nil {
			p.logger.Warn("entry dropped",
				"index", i,
				"video_id", e.VideoID,
				"reason", err.Error(),
			)
			metrics.EntriesDropped.Inc()
			continue
		}
		events = append(events, ev)
	}

	if len(entries) > 0 && len(events) == 0 {
		return nil, ErrNoValidEntries
	}
	return events, nil
}

// normalize maps one raw entry to an Event, enforcing required fields.
func (p *Parser) normalize(e entryXML) (Event, error) {
	if e.VideoID == "" {
		return Event{}, fmt.Errorf("missing required field %q", "videoId")
	}
	if e.ChannelID == "" {
		return Event{}, fmt.Errorf("missing required field %q", "channelId")
	}

	// Prefer the media-group title override when present.
	title := e.Title
	if e.Group != nil && e.Group.Title != "" {
		title = e.Group.Title
	}
	if title == "" {
		return Event{}, fmt.Errorf("missing required field %q", "title")
	}
	if e.Published == "" {
		return Event{}, fmt.Errorf("missing required field %q", "published")
	}
	if e.Author.Name == "" {
		return Event{}, fmt.Errorf("missing required field %q", "author")
	}

	ev := Event{
		VideoID:     e.VideoID,
		ChannelID:   e.ChannelID,
		Title:       title,
		PublishedAt: e.Published,
		Author:      e.Author.Name,
		VideoURL:    videoURL(e),
	}
	if e.Group != nil {
		ev.Description = e.Group.Description
		if e.Group.Thumbnail != nil {
			ev.ThumbnailURL = e.Group.Thumbnail.URL
		}
	}
	return ev, nil
}

// videoURL prefers an explicit alternate link, falling back to the canonical
// watch URL derived from the video id.
func videoURL(e entryXML) string {
	for _, l := range e.Links {
		if l.Rel == "alternate" && l.Href != "" {
			return l.Href
		}
	}
	for _, l := range e.Links {
		if l.Href != "" {
			return l.Href
		}
	}
	return WatchURLPrefix + e.VideoID
}
