package room

import (
	"time"

	"github.com/livekit/protocol/livekit"
)

// EventType identifies a call transport event.
type EventType string

const (
	// EventCallerJoined fires when the caller's participant connects.
	EventCallerJoined EventType = "caller_joined"

	// EventCallerLeft fires when the caller's participant disconnects.
	EventCallerLeft EventType = "caller_left"

	// EventTrackSubscribed fires when a caller media track is subscribed.
	EventTrackSubscribed EventType = "track_subscribed"

	// EventUtterance fires when the caller sends an audio payload over
	// the data channel.
	EventUtterance EventType = "utterance"

	// EventMetadataChanged fires when the room metadata changes.
	EventMetadataChanged EventType = "metadata_changed"
)

// Event is one call transport event plus its payload.
type Event struct {
	Type        EventType
	Timestamp   time.Time
	Participant *livekit.ParticipantInfo
	Track       *livekit.TrackInfo
	Data        []byte
	Metadata    string
}

func newEvent(t EventType) *Event {
	return &Event{Type: t, Timestamp: time.Now()}
}

func (e *Event) withParticipant(p *livekit.ParticipantInfo) *Event {
	e.Participant = p
	return e
}

func (e *Event) withTrack(t *livekit.TrackInfo) *Event {
	e.Track = t
	return e
}

func (e *Event) withData(data []byte) *Event {
	e.Data = data
	return e
}

func (e *Event) withMetadata(md string) *Event {
	e.Metadata = md
	return e
}
