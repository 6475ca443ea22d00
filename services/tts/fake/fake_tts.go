// Package fake provides a silent synthesizer for tests.
package fake

import (
	"context"
	"sync"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/media"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/tts"
)

// FakeTTS records synthesized texts and returns short silent frames.
type FakeTTS struct {
	*tts.BaseTTS

	mu    sync.Mutex
	texts []string
	err   error
}

func NewFakeTTS() *FakeTTS {
	voices := []tts.Voice{{ID: "fake", Name: "Fake", Gender: "neutral", Language: "en"}}
	return &FakeTTS{BaseTTS: tts.NewBaseTTS("fake-tts", "0.0.0", voices)}
}

// FailWith makes every subsequent Synthesize call return err.
func (f *FakeTTS) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeTTS) Synthesize(ctx context.Context, text string, opts *tts.SynthesizeOptions) (*media.AudioFrame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, text)

	// 10ms of silence at the pipeline's synthesis format.
	silence := make([]byte, 24000*2/100)
	return media.NewAudioFrame(silence, media.FormatPCM24kHzMono), nil
}

// Spoken returns every text synthesized so far.
func (f *FakeTTS) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}
