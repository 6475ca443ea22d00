// Package voice runs the speak-and-reply loop for one call: conversation
// history, reply generation through the chat model, and synthesis of the
// spoken audio.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/media"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/llm"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/tts"
)

// AudioSink receives synthesized audio for playback into the call.
type AudioSink interface {
	PlayAudio(ctx context.Context, frame *media.AudioFrame) error
}

// Config assembles a session's collaborators.
type Config struct {
	// Instructions seed the conversation as the system turn.
	Instructions string
	LLM          llm.LLM
	TTS          tts.TTS
	Sink         AudioSink
	Voice        string
	Logger       *slog.Logger
}

// Session holds one call's conversation and drives the reply pipeline.
type Session struct {
	llm    llm.LLM
	tts    tts.TTS
	sink   AudioSink
	voice  string
	logger *slog.Logger

	mu      sync.Mutex
	history []llm.Message
}

func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		llm:    cfg.LLM,
		tts:    cfg.TTS,
		sink:   cfg.Sink,
		voice:  cfg.Voice,
		logger: logger,
	}
	if cfg.Instructions != "" {
		s.history = append(s.history, llm.Message{Role: llm.RoleSystem, Content: cfg.Instructions})
	}
	return s
}

// AddUserTurn appends a recognized caller utterance to the conversation.
func (s *Session) AddUserTurn(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, llm.Message{Role: llm.RoleUser, Content: text})
}

// GenerateReply asks the chat model for the next assistant turn and
// speaks it. The reply is recorded in the history only when generation
// succeeds.
func (s *Session) GenerateReply(ctx context.Context) error {
	if s.llm == nil {
		return fmt.Errorf("no chat model configured")
	}

	s.mu.Lock()
	messages := make([]llm.Message, len(s.history))
	copy(messages, s.history)
	s.mu.Unlock()

	completion, err := s.llm.Chat(ctx, messages, nil)
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	reply := completion.Message.Content
	s.mu.Lock()
	s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: reply})
	s.mu.Unlock()

	s.logger.Debug("Generated reply",
		slog.String("text", reply),
		slog.Int("total_tokens", completion.Usage.TotalTokens))

	return s.speak(ctx, reply)
}

// Say speaks the given text directly, bypassing the chat model. The
// spoken text still lands in the history so later turns see it.
func (s *Session) Say(ctx context.Context, text string) error {
	s.mu.Lock()
	s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: text})
	s.mu.Unlock()

	return s.speak(ctx, text)
}

// History returns a copy of the conversation so far.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) speak(ctx context.Context, text string) error {
	if s.tts == nil || s.sink == nil {
		s.logger.Debug("No synthesis pipeline, skipping playback", slog.String("text", text))
		return nil
	}

	opts := tts.DefaultSynthesizeOptions()
	opts.Voice = s.voice

	frame, err := s.tts.Synthesize(ctx, text, opts)
	if err != nil {
		return fmt.Errorf("synthesize reply: %w", err)
	}
	if frame.IsEmpty() {
		return nil
	}

	if err := s.sink.PlayAudio(ctx, frame); err != nil {
		return fmt.Errorf("play reply: %w", err)
	}
	return nil
}
