// Package room wraps the LiveKit room connection for one inbound call:
// connecting, caller tracking, the event stream the call loop consumes,
// and audio playback over the data channel.
package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/pion/webrtc/v3"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/media"
)

// Config holds connection parameters for one call's room.
type Config struct {
	URL      string
	Token    string
	RoomName string

	// EventBufferSize caps the pending event queue; zero selects the
	// default.
	EventBufferSize int

	Logger *slog.Logger
}

// Conn is a live connection to a call's room. Events carries caller
// joins, departures and utterance payloads until Disconnect closes it.
type Conn struct {
	Events chan *Event

	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	room         *lksdk.Room
	connected    bool
	eventsClosed bool
	participants map[string]*livekit.ParticipantInfo
}

// NewConn validates the configuration and prepares an unconnected Conn.
func NewConn(ctx context.Context, cfg Config) (*Conn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if cfg.RoomName == "" {
		return nil, fmt.Errorf("room name is required")
	}

	bufferSize := cfg.EventBufferSize
	if bufferSize == 0 {
		bufferSize = 64
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	connCtx, cancel := context.WithCancel(ctx)
	return &Conn{
		Events:       make(chan *Event, bufferSize),
		logger:       logger,
		ctx:          connCtx,
		cancel:       cancel,
		participants: make(map[string]*livekit.ParticipantInfo),
	}, nil
}

// Connect joins the room and starts delivering events.
func (c *Conn) Connect(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	callback := &lksdk.RoomCallback{
		OnParticipantConnected:    c.onParticipantConnected,
		OnParticipantDisconnected: c.onParticipantDisconnected,
		OnRoomMetadataChanged:     c.onRoomMetadataChanged,
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: c.onTrackSubscribed,
			OnDataReceived:    c.onDataReceived,
		},
	}

	rm, err := lksdk.ConnectToRoomWithToken(cfg.URL, cfg.Token, callback)
	if err != nil {
		return fmt.Errorf("failed to connect to room: %w", err)
	}

	c.room = rm
	c.connected = true

	c.logger.Info("Connected to room",
		slog.String("room_name", cfg.RoomName),
		slog.String("url", cfg.URL))
	return nil
}

// Disconnect leaves the room and closes the event stream. Safe to call
// more than once.
func (c *Conn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()

	if c.connected {
		c.connected = false
		if c.room != nil {
			c.room.Disconnect()
			c.room = nil
		}
		c.logger.Info("Disconnected from room")
	}

	if !c.eventsClosed {
		close(c.Events)
		c.eventsClosed = true
	}
	return nil
}

// IsConnected reports whether the room connection is live.
func (c *Conn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// RemoteParticipantCount returns how many remote participants are
// currently in the call.
func (c *Conn) RemoteParticipantCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.participants)
}

// Participants returns a copy of the tracked remote participants.
func (c *Conn) Participants() map[string]*livekit.ParticipantInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*livekit.ParticipantInfo, len(c.participants))
	for k, v := range c.participants {
		out[k] = v
	}
	return out
}

// PlayAudio publishes a synthesized frame to the caller over the
// reliable data channel.
func (c *Conn) PlayAudio(ctx context.Context, frame *media.AudioFrame) error {
	c.mu.RLock()
	rm := c.room
	connected := c.connected
	c.mu.RUnlock()

	if !connected || rm == nil {
		return fmt.Errorf("not connected")
	}
	if frame == nil || frame.IsEmpty() {
		return nil
	}

	if err := rm.LocalParticipant.PublishData(frame.Data, livekit.DataPacket_RELIABLE, nil); err != nil {
		return fmt.Errorf("failed to publish audio: %w", err)
	}
	return nil
}

func (c *Conn) onParticipantConnected(participant *lksdk.RemoteParticipant) {
	info := &livekit.ParticipantInfo{
		Sid:      participant.SID(),
		Identity: participant.Identity(),
		State:    livekit.ParticipantInfo_ACTIVE,
	}

	c.mu.Lock()
	c.participants[participant.Identity()] = info
	c.mu.Unlock()

	c.sendEvent(newEvent(EventCallerJoined).withParticipant(info))
	c.logger.Info("Caller joined",
		slog.String("identity", participant.Identity()),
		slog.String("sid", participant.SID()))
}

func (c *Conn) onParticipantDisconnected(participant *lksdk.RemoteParticipant) {
	info := &livekit.ParticipantInfo{
		Sid:      participant.SID(),
		Identity: participant.Identity(),
		State:    livekit.ParticipantInfo_DISCONNECTED,
	}

	c.mu.Lock()
	delete(c.participants, participant.Identity())
	c.mu.Unlock()

	c.sendEvent(newEvent(EventCallerLeft).withParticipant(info))
	c.logger.Info("Caller left",
		slog.String("identity", participant.Identity()),
		slog.String("sid", participant.SID()))
}

func (c *Conn) onTrackSubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, participant *lksdk.RemoteParticipant) {
	info := &livekit.ParticipantInfo{
		Sid:      participant.SID(),
		Identity: participant.Identity(),
		State:    livekit.ParticipantInfo_ACTIVE,
	}
	trackInfo := &livekit.TrackInfo{
		Sid:  publication.SID(),
		Name: publication.Name(),
		Type: publication.Kind().ProtoType(),
	}

	c.sendEvent(newEvent(EventTrackSubscribed).withParticipant(info).withTrack(trackInfo))
	c.logger.Info("Track subscribed",
		slog.String("participant", participant.Identity()),
		slog.String("track_sid", publication.SID()))
}

func (c *Conn) onDataReceived(data []byte, participant *lksdk.RemoteParticipant) {
	info := &livekit.ParticipantInfo{
		Sid:      participant.SID(),
		Identity: participant.Identity(),
		State:    livekit.ParticipantInfo_ACTIVE,
	}
	c.sendEvent(newEvent(EventUtterance).withParticipant(info).withData(data))
}

func (c *Conn) onRoomMetadataChanged(metadata string) {
	c.sendEvent(newEvent(EventMetadataChanged).withMetadata(metadata))
}

// sendEvent delivers to the Events channel, dropping when the consumer
// has fallen behind or the connection is shutting down. The read lock is
// held across the send so Disconnect cannot close the channel between the
// closed check and the send; the send itself never blocks.
func (c *Conn) sendEvent(event *Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.eventsClosed {
		return
	}

	select {
	case c.Events <- event:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("Event queue full, dropping event",
			slog.String("event_type", string(event.Type)))
	}
}
