package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/media"
	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/services/stt"
)

// WhisperSTT transcribes caller utterances with OpenAI Whisper. Whisper
// has no streaming endpoint, so callers hand it one complete utterance
// at a time.
type WhisperSTT struct {
	*stt.BaseSTT
	client *openai.Client
	model  string
}

func NewWhisperSTT(apiKey string) *WhisperSTT {
	return &WhisperSTT{
		BaseSTT: stt.NewBaseSTT("whisper", "1.0.0", []string{"en"}),
		client:  openai.NewClient(apiKey),
		model:   openai.Whisper1,
	}
}

// Recognize transcribes a single utterance. Empty frames short-circuit to
// an empty transcript without an API round trip.
func (w *WhisperSTT) Recognize(ctx context.Context, audio *media.AudioFrame) (*stt.Recognition, error) {
	if audio == nil || audio.IsEmpty() {
		return &stt.Recognition{}, nil
	}

	// The transcription endpoint wants a container format, not raw PCM.
	wav := encodeWAV(audio)

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(wav),
		FilePath: "utterance.wav",
	})
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	confidence := 0.95
	if len(resp.Segments) > 0 {
		total := 0.0
		for _, seg := range resp.Segments {
			total += 1.0 - seg.NoSpeechProb
		}
		confidence = total / float64(len(resp.Segments))
	}

	return &stt.Recognition{
		Text:       resp.Text,
		Confidence: confidence,
		Language:   resp.Language,
	}, nil
}

// encodeWAV wraps raw PCM samples in a minimal RIFF/WAVE container.
func encodeWAV(audio *media.AudioFrame) []byte {
	var buf bytes.Buffer

	channels := uint16(audio.Format.Channels)
	sampleRate := uint32(audio.Format.SampleRate)
	bitsPerSample := uint16(audio.Format.BitsPerSample)
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * uint32(blockAlign)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(audio.Data)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, channels)
	binary.Write(&buf, binary.LittleEndian, sampleRate)
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, bitsPerSample)

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(audio.Data)))
	buf.Write(audio.Data)

	return buf.Bytes()
}
