package rest

import (
	"time"

	"github.com/usefreetools/toolbox/internal/scan"
	"github.com/usefreetools/toolbox/internal/speech"
)

// Metadata rides along every JSON success envelope.
type Metadata struct {
	Service          string `json:"service"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
}

func metadataSince(service string, start time.Time) Metadata {
	return Metadata{
		Service:          service,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

// TranscribeResponse is the transcription success envelope.
type TranscribeResponse struct {
	Success    bool     `json:"success"`
	Transcript string   `json:"transcript"`
	Confidence float64  `json:"confidence"`
	Fallback   bool     `json:"fallback,omitempty"`
	Metadata   Metadata `json:"metadata"`
}

// VoiceModelsResponse is the voice catalog envelope.
type VoiceModelsResponse struct {
	Success     bool                `json:"success"`
	VoiceModels []speech.VoiceModel `json:"voiceModels"`
	Total       int                 `json:"total"`
	Fallback    bool                `json:"fallback"`
	Metadata    Metadata            `json:"metadata"`
}

// ScanResponse is the security-scan envelope.
type ScanResponse struct {
	Success  bool         `json:"success"`
	Result   *scan.Result `json:"result"`
	Metadata Metadata     `json:"metadata"`
}

// GenerateResponse is the document-generation envelope.
type GenerateResponse struct {
	Success  bool     `json:"success"`
	Kind     string   `json:"kind"`
	Content  string   `json:"content"`
	Format   string   `json:"format"`
	Metadata Metadata `json:"metadata"`
}

// AdminLoginRequest is the admin login body.
type AdminLoginRequest struct {
	Key string `json:"key"`
}

// RateLimitQuery filters the admin rate-limit listing.
type RateLimitQuery struct {
	Prefix string `schema:"prefix"`
	Limit  int    `schema:"limit"`
	Offset int    `schema:"offset"`
}

// RateLimitEntry is one live window in the admin listing.
type RateLimitEntry struct {
	Key     string    `json:"key"`
	Count   int       `json:"count"`
	ResetAt time.Time `json:"resetAt"`
}

// RateLimitListing is the admin rate-limit envelope.
type RateLimitListing struct {
	Success bool             `json:"success"`
	Entries []RateLimitEntry `json:"entries"`
	Total   int              `json:"total"`
}
