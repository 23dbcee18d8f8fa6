package webhook

import (
	"context"

	"github.com/soulxhy/tubewatch/internal/feed"
)

// EventSink accepts parsed events for later dispatch.
type EventSink interface {
	Enqueue(ctx context.Context, ev feed.Event) (string, error)
}

// Response bodies fixed by the push-notification contract.
const (
	msgSignatureMismatch = "Signature mismatch"
	msgInvalidXML        = "Invalid XML"
)

// DefaultMaxBodySize bounds notification bodies when the config leaves the
// limit unset.
const DefaultMaxBodySize = 1048576 // 1 MB
