// Package stt defines the speech recognition interface that turns caller
// audio into the utterance text the agent reacts to.
package stt

import (
	"context"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/media"
)

// STT transcribes a complete caller utterance.
type STT interface {
	Recognize(ctx context.Context, audio *media.AudioFrame) (*Recognition, error)

	// SupportedLanguages lists the languages the service can transcribe.
	SupportedLanguages() []string

	Name() string
	Version() string
}

// Recognition is the transcript of one utterance.
type Recognition struct {
	Text       string
	Confidence float64
	Language   string
}

// BaseSTT carries service metadata for implementations to embed.
type BaseSTT struct {
	name           string
	version        string
	supportedLangs []string
}

func NewBaseSTT(name, version string, supportedLangs []string) *BaseSTT {
	return &BaseSTT{name: name, version: version, supportedLangs: supportedLangs}
}

func (b *BaseSTT) Name() string                 { return b.name }
func (b *BaseSTT) Version() string              { return b.version }
func (b *BaseSTT) SupportedLanguages() []string { return b.supportedLangs }
