// Package fake provides a scripted recognizer for tests.
package fake

import (
	"context"
	"sync"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/media"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/stt"
)

// FakeSTT returns scripted transcripts in order, repeating the last one
// once the script runs out.
type FakeSTT struct {
	*stt.BaseSTT

	mu          sync.Mutex
	transcripts []string
	calls       int
	err         error
}

func NewFakeSTT(transcripts ...string) *FakeSTT {
	if len(transcripts) == 0 {
		transcripts = []string{"hello"}
	}
	return &FakeSTT{
		BaseSTT:     stt.NewBaseSTT("fake-stt", "0.0.0", []string{"en"}),
		transcripts: transcripts,
	}
}

// FailWith makes every subsequent Recognize call return err.
func (f *FakeSTT) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeSTT) Recognize(ctx context.Context, audio *media.AudioFrame) (*stt.Recognition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if audio == nil || audio.IsEmpty() {
		return &stt.Recognition{}, nil
	}

	idx := f.calls
	if idx >= len(f.transcripts) {
		idx = len(f.transcripts) - 1
	}
	f.calls++

	return &stt.Recognition{
		Text:       f.transcripts[idx],
		Confidence: 0.99,
		Language:   "en",
	}, nil
}
