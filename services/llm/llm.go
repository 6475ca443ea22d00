// Package llm defines the chat model interface used by the voice session
// to generate assistant turns.
package llm

import "context"

// LLM generates assistant replies from conversation history.
type LLM interface {
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*ChatCompletion, error)

	Name() string
	Version() string
}

// Message is one turn of the conversation.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatOptions configures a single chat completion request.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// DefaultChatOptions returns options tuned for short spoken replies.
func DefaultChatOptions() *ChatOptions {
	return &ChatOptions{
		MaxTokens:   256,
		Temperature: 0.7,
	}
}

// ChatCompletion is the model's reply plus accounting data.
type ChatCompletion struct {
	Message      Message
	FinishReason string
	Usage        Usage
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// BaseLLM carries service metadata for implementations to embed.
type BaseLLM struct {
	name    string
	version string
}

func NewBaseLLM(name, version string) *BaseLLM {
	return &BaseLLM{name: name, version: version}
}

func (b *BaseLLM) Name() string    { return b.name }
func (b *BaseLLM) Version() string { return b.version }
