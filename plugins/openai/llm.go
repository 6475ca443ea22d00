// Package openai wires the OpenAI API to the llm, tts and stt service
// interfaces used by the inbound call agent.
package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/llm"
)

// GPTLLM generates assistant replies with an OpenAI chat model.
type GPTLLM struct {
	*llm.BaseLLM
	client *openai.Client
	model  string
}

// NewGPTLLM builds a chat model backed by the given API key. An empty
// model selects gpt-4o-mini, which keeps reply latency low enough for a
// live call.
func NewGPTLLM(apiKey, model string) *GPTLLM {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &GPTLLM{
		BaseLLM: llm.NewBaseLLM("openai-gpt", "1.0.0"),
		client:  openai.NewClient(apiKey),
		model:   model,
	}
}

// Chat sends the conversation history and returns the model's next turn.
func (g *GPTLLM) Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.ChatCompletion, error) {
	if opts == nil {
		opts = llm.DefaultChatOptions()
	}

	model := opts.Model
	if model == "" {
		model = g.model
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no chat completion choices returned")
	}

	choice := resp.Choices[0]
	return &llm.ChatCompletion{
		Message: llm.Message{
			Role:    llm.MessageRole(choice.Message.Role),
			Content: choice.Message.Content,
		},
		FinishReason: string(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func toOpenAIMessages(messages []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	return out
}
