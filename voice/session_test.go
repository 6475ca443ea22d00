package voice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/media"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/llm"
	llmfake "github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/llm/fake"
	ttsfake "github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/tts/fake"
)

type recordingSink struct {
	mu     sync.Mutex
	frames []*media.AudioFrame
	err    error
}

func (r *recordingSink) PlayAudio(ctx context.Context, frame *media.AudioFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recordingSink) played() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestSession_GenerateReply(t *testing.T) {
	model := llmfake.NewFakeLLM("Welcome to the golf club, how can I help?")
	synth := ttsfake.NewFakeTTS()
	sink := &recordingSink{}

	s := NewSession(Config{
		Instructions: "You are a friendly booking assistant.",
		LLM:          model,
		TTS:          synth,
		Sink:         sink,
	})
	s.AddUserTurn("hi, do you have tee times tomorrow?")

	if err := s.GenerateReply(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := model.LastRequest()
	if len(req) != 2 {
		t.Fatalf("expected system + user turns sent to the model, got %d", len(req))
	}
	if req[0].Role != llm.RoleSystem {
		t.Errorf("expected instructions as the system turn, got %v", req[0].Role)
	}

	history := s.History()
	if len(history) != 3 {
		t.Fatalf("expected reply appended to history, got %d turns", len(history))
	}
	if history[2].Role != llm.RoleAssistant {
		t.Errorf("expected assistant turn last, got %v", history[2].Role)
	}

	if sink.played() != 1 {
		t.Errorf("expected one playback, got %d", sink.played())
	}
	spoken := synth.Spoken()
	if len(spoken) != 1 || spoken[0] != "Welcome to the golf club, how can I help?" {
		t.Errorf("expected the reply synthesized, got %v", spoken)
	}
}

func TestSession_GenerateReply_ModelFailure(t *testing.T) {
	model := llmfake.NewFakeLLM()
	model.FailWith(errors.New("rate limited"))

	s := NewSession(Config{LLM: model, TTS: ttsfake.NewFakeTTS(), Sink: &recordingSink{}})
	s.AddUserTurn("hello?")

	if err := s.GenerateReply(context.Background()); err == nil {
		t.Fatal("expected error from failing model")
	}

	// A failed turn leaves no assistant entry behind.
	for _, m := range s.History() {
		if m.Role == llm.RoleAssistant {
			t.Errorf("unexpected assistant turn in history: %v", m)
		}
	}
}

func TestSession_Say(t *testing.T) {
	synth := ttsfake.NewFakeTTS()
	sink := &recordingSink{}
	s := NewSession(Config{TTS: synth, Sink: sink})

	if err := s.Say(context.Background(), "Goodbye! It was nice talking with you."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.played() != 1 {
		t.Errorf("expected one playback, got %d", sink.played())
	}
	history := s.History()
	if len(history) != 1 || history[0].Role != llm.RoleAssistant {
		t.Errorf("expected spoken text recorded as assistant turn, got %v", history)
	}
}

func TestSession_Say_SynthesisFailure(t *testing.T) {
	synth := ttsfake.NewFakeTTS()
	synth.FailWith(errors.New("tts offline"))
	s := NewSession(Config{TTS: synth, Sink: &recordingSink{}})

	if err := s.Say(context.Background(), "Goodbye."); err == nil {
		t.Fatal("expected synthesis error")
	}
}

func TestSession_NoPipeline(t *testing.T) {
	// Text-only sessions skip playback instead of failing.
	s := NewSession(Config{LLM: llmfake.NewFakeLLM("ok")})
	s.AddUserTurn("hello")

	if err := s.GenerateReply(context.Background()); err != nil {
		t.Fatalf("unexpected error without synthesis pipeline: %v", err)
	}
}

func TestSession_GenerateReply_NoModel(t *testing.T) {
	s := NewSession(Config{})
	if err := s.GenerateReply(context.Background()); err == nil {
		t.Fatal("expected error without a chat model")
	}
}
