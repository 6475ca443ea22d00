// Package tts defines the speech synthesis interface used to voice the
// agent's replies and farewells.
package tts

import (
	"context"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/media"
)

// TTS converts reply text into playable audio.
type TTS interface {
	Synthesize(ctx context.Context, text string, opts *SynthesizeOptions) (*media.AudioFrame, error)

	// Voices lists the voices the service can speak with.
	Voices() []Voice

	Name() string
	Version() string
}

// SynthesizeOptions configures one synthesis request.
type SynthesizeOptions struct {
	Voice  string
	Speed  float64
	Format media.AudioFormat
}

// DefaultSynthesizeOptions returns options matching the synthesis format
// the rest of the pipeline expects.
func DefaultSynthesizeOptions() *SynthesizeOptions {
	return &SynthesizeOptions{
		Speed:  1.0,
		Format: media.FormatPCM24kHzMono,
	}
}

// Voice describes a selectable synthesis voice.
type Voice struct {
	ID       string
	Name     string
	Gender   string
	Language string
}

// BaseTTS carries service metadata and the voice catalog for
// implementations to embed.
type BaseTTS struct {
	name    string
	version string
	voices  []Voice
}

func NewBaseTTS(name, version string, voices []Voice) *BaseTTS {
	return &BaseTTS{name: name, version: version, voices: voices}
}

func (b *BaseTTS) Name() string    { return b.name }
func (b *BaseTTS) Version() string { return b.version }
func (b *BaseTTS) Voices() []Voice { return b.voices }
