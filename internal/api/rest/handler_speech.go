package rest

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/usefreetools/toolbox/internal/speech"
)

// handleTranscribe accepts a multipart audio upload and returns the
// transcript. Form parsing, file buffering and the upstream call each run
// under their own deadline.
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	upload, err := h.readAudioUpload(r)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	if result := ValidateAudioUpload(upload); !result.OK() {
		writeValidationErrors(w, result)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), TranscribeTimeout)
	defer cancel()

	transcript, err := h.deps.Transcriber.Transcribe(ctx, speech.Audio{
		Bytes:    upload.Bytes,
		MimeType: upload.DeclaredMime,
		Filename: upload.Filename,
	})
	if err != nil {
		writeFault(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TranscribeResponse{
		Success:    true,
		Transcript: transcript.Text,
		Confidence: transcript.Confidence,
		Fallback:   transcript.Service == "fallback",
		Metadata:   metadataSince(transcript.Service, start),
	})
}

// readAudioUpload parses the multipart form and buffers the audio part.
// A missing part yields a nil upload for the validator to report.
func (h *Handler) readAudioUpload(r *http.Request) (*AudioUpload, error) {
	if _, err := runWithTimeout(r.Context(), FormParseTimeout, func() (struct{}, error) {
		return struct{}{}, r.ParseMultipartForm(32 << 20)
	}); err != nil {
		return nil, err
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, nil // reported as "Audio file is required"
	}
	defer file.Close()

	data, err := bufferFile(r.Context(), file)
	if err != nil {
		return nil, err
	}

	return &AudioUpload{
		Bytes:        data,
		Filename:     header.Filename,
		DeclaredMime: header.Header.Get("Content-Type"),
	}, nil
}

func bufferFile(ctx context.Context, file multipart.File) ([]byte, error) {
	return runWithTimeout(ctx, FileReadTimeout, func() ([]byte, error) {
		return io.ReadAll(file)
	})
}

// handleTTS synthesizes speech. Success responses are raw audio bytes;
// every failure keeps the JSON error envelope.
func (h *Handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	var input TTSInput
	if err := h.readJSONBody(r, &input); err != nil {
		writeFault(w, r, err)
		return
	}

	text, format, result := ValidateTTS(input)
	if !result.OK() {
		writeValidationErrors(w, result)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), UpstreamTimeout)
	defer cancel()

	audio, err := h.deps.Synthesizer.Synthesize(ctx, speech.SynthesisRequest{
		Text:   text,
		Format: format,
		Voice:  input.Voice,
	})
	if err != nil {
		writeFault(w, r, err)
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Bytes)))
	w.Header().Set("X-Service", audio.Service)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.Bytes); err != nil {
		// Client went away mid-stream; nothing to send back.
		return
	}
}

// handleVoiceModels serves the (cached) voice catalog.
func (h *Handler) handleVoiceModels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	hit := h.deps.Voices.Cached()

	list, err := h.deps.Voices.List(r.Context())
	if err != nil {
		writeFault(w, r, err)
		return
	}

	setVoiceCacheHeaders(w, hit)
	writeJSON(w, http.StatusOK, VoiceModelsResponse{
		Success:     true,
		VoiceModels: list.Models,
		Total:       len(list.Models),
		Fallback:    list.Fallback,
		Metadata:    metadataSince(list.Service, start),
	})
}

// handleVoiceModelsHead answers HEAD requests with cache headers only.
func (h *Handler) handleVoiceModelsHead(w http.ResponseWriter, r *http.Request) {
	setVoiceCacheHeaders(w, h.deps.Voices.Cached())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
}

func setVoiceCacheHeaders(w http.ResponseWriter, hit bool) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
}
