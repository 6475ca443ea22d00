// Package fake provides a scripted chat model for tests.
package fake

import (
	"context"
	"strings"
	"sync"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/llm"
)

// FakeLLM cycles through predefined responses.
type FakeLLM struct {
	*llm.BaseLLM

	mu        sync.Mutex
	responses []string
	calls     int
	err       error
	history   [][]llm.Message
}

// NewFakeLLM builds a scripted model. With no responses it falls back to
// a generic line.
func NewFakeLLM(responses ...string) *FakeLLM {
	if len(responses) == 0 {
		responses = []string{"Thanks for calling. How can I help?"}
	}
	return &FakeLLM{
		BaseLLM:   llm.NewBaseLLM("fake-llm", "0.0.0"),
		responses: responses,
	}
}

// FailWith makes every subsequent Chat call return err.
func (f *FakeLLM) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeLLM) Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.ChatCompletion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := make([]llm.Message, len(messages))
	copy(snapshot, messages)
	f.history = append(f.history, snapshot)

	if f.err != nil {
		return nil, f.err
	}

	response := f.responses[f.calls%len(f.responses)]
	f.calls++

	return &llm.ChatCompletion{
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: response,
		},
		FinishReason: "stop",
		Usage: llm.Usage{
			CompletionTokens: len(strings.Fields(response)),
			TotalTokens:      len(strings.Fields(response)) + 10,
		},
	}, nil
}

// Calls reports how many chat requests the model served.
func (f *FakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastRequest returns the message history of the most recent request.
func (f *FakeLLM) LastRequest() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return nil
	}
	return f.history[len(f.history)-1]
}
