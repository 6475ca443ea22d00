package openai

import (
	"fmt"
	"os"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/llm"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/stt"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/tts"
)

// Services bundles the OpenAI-backed speech stack for one call.
type Services struct {
	LLM llm.LLM
	TTS tts.TTS
	STT stt.STT
}

// NewServices builds the full OpenAI speech stack from one API key. An
// empty model selects the default chat model.
func NewServices(apiKey, model string) (*Services, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return &Services{
		LLM: NewGPTLLM(apiKey, model),
		TTS: NewOpenAITTS(apiKey),
		STT: NewWhisperSTT(apiKey),
	}, nil
}

// NewServicesFromEnv builds the speech stack from OPENAI_API_KEY and
// OPENAI_MODEL.
func NewServicesFromEnv() (*Services, error) {
	return NewServices(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_MODEL"))
}
