// Package speech wraps the speech-to-text and text-to-speech upstreams
// behind small interfaces so handlers never talk to a vendor API directly.
package speech

import "context"

// Audio is a validated inbound audio payload.
type Audio struct {
	Bytes    []byte
	MimeType string
	Filename string
}

// Transcript is the result of a transcription call.
type Transcript struct {
	Text       string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Service    string  `json:"service"`
}

// SynthesisRequest is a validated text-to-speech request.
type SynthesisRequest struct {
	Text   string
	Format string // "mp3" or "wav"
	Voice  string // upstream voice model, empty for the default
}

// SynthesisResult carries the generated audio and its content type.
type SynthesisResult struct {
	Bytes       []byte
	ContentType string
	Service     string
}

// VoiceModel describes one selectable synthesis voice.
type VoiceModel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender"`
}

// VoiceList is the catalog response. Fallback is true when the list did not
// come from the upstream (unconfigured or unreachable service).
type VoiceList struct {
	Models   []VoiceModel
	Fallback bool
	Service  string
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (*Transcript, error)
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

// VoiceCatalog lists the available synthesis voices. Implementations degrade
// to a fallback list instead of failing; List only errors on caller
// cancellation.
type VoiceCatalog interface {
	List(ctx context.Context) (*VoiceList, error)
}
