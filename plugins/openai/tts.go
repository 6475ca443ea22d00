package openai

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/media"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/tts"
)

// OpenAITTS voices replies with the OpenAI speech endpoint. Audio comes
// back as 24kHz 16-bit mono PCM.
type OpenAITTS struct {
	*tts.BaseTTS
	client *openai.Client
	model  openai.SpeechModel
}

func NewOpenAITTS(apiKey string) *OpenAITTS {
	voices := []tts.Voice{
		{ID: "alloy", Name: "Alloy", Gender: "neutral", Language: "en"},
		{ID: "echo", Name: "Echo", Gender: "male", Language: "en"},
		{ID: "fable", Name: "Fable", Gender: "neutral", Language: "en"},
		{ID: "onyx", Name: "Onyx", Gender: "male", Language: "en"},
		{ID: "nova", Name: "Nova", Gender: "female", Language: "en"},
		{ID: "shimmer", Name: "Shimmer", Gender: "female", Language: "en"},
	}

	return &OpenAITTS{
		BaseTTS: tts.NewBaseTTS("openai-tts", "1.0.0", voices),
		client:  openai.NewClient(apiKey),
		model:   openai.TTSModel1,
	}
}

// Synthesize converts reply text into a PCM audio frame.
func (o *OpenAITTS) Synthesize(ctx context.Context, text string, opts *tts.SynthesizeOptions) (*media.AudioFrame, error) {
	if opts == nil {
		opts = tts.DefaultSynthesizeOptions()
	}
	voice := opts.Voice
	if voice == "" {
		voice = string(openai.VoiceNova)
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          opts.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis response: %w", err)
	}

	return media.NewAudioFrame(data, media.FormatPCM24kHzMono), nil
}
