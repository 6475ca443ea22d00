// Package media carries audio between the transport, the speech services
// and the voice session.
package media

import (
	"fmt"
	"time"
)

// AudioFormat describes the layout of raw audio samples.
type AudioFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Encoding      AudioEncoding
}

type AudioEncoding int

const (
	EncodingPCM AudioEncoding = iota
	EncodingWAV
	EncodingMP3
	EncodingOgg
)

// Formats used across the call pipeline. Synthesized speech arrives as
// 24kHz PCM, telephony capture as 16kHz mono, room publishing at 48kHz.
var (
	FormatPCM24kHzMono = AudioFormat{SampleRate: 24000, Channels: 1, BitsPerSample: 16, Encoding: EncodingPCM}
	FormatPCM16kHzMono = AudioFormat{SampleRate: 16000, Channels: 1, BitsPerSample: 16, Encoding: EncodingPCM}
	FormatPCM48kHzMono = AudioFormat{SampleRate: 48000, Channels: 1, BitsPerSample: 16, Encoding: EncodingPCM}
)

// AudioFrame is a contiguous chunk of audio in a single format.
type AudioFrame struct {
	Data     []byte
	Format   AudioFormat
	Received time.Time
	Duration time.Duration
}

// NewAudioFrame wraps raw sample data, deriving the frame duration from
// the format.
func NewAudioFrame(data []byte, format AudioFormat) *AudioFrame {
	return &AudioFrame{
		Data:     data,
		Format:   format,
		Received: time.Now(),
		Duration: frameDuration(len(data), format),
	}
}

// SampleCount returns the number of samples per channel in the frame.
func (f *AudioFrame) SampleCount() int {
	stride := (f.Format.BitsPerSample / 8) * f.Format.Channels
	if stride == 0 {
		return 0
	}
	return len(f.Data) / stride
}

// IsEmpty reports whether the frame carries no audio data.
func (f *AudioFrame) IsEmpty() bool {
	return len(f.Data) == 0
}

func (f *AudioFrame) String() string {
	return fmt.Sprintf("AudioFrame{samples=%d, rate=%d, dur=%v}",
		f.SampleCount(), f.Format.SampleRate, f.Duration)
}

func frameDuration(dataLen int, format AudioFormat) time.Duration {
	stride := (format.BitsPerSample / 8) * format.Channels
	if stride == 0 || format.SampleRate == 0 {
		return 0
	}
	samples := dataLen / stride
	return time.Duration(samples) * time.Second / time.Duration(format.SampleRate)
}
