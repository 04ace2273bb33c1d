package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/usefreetools/toolbox/pkg/fault"
)

const deepgramService = "deepgram"

// DeepgramOptions configures the REST client.
type DeepgramOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// RatePerSecond caps outbound calls so an inbound burst cannot stampede
	// the paid upstream. Zero disables the throttle.
	RatePerSecond float64
	RateBurst     int
}

// DeepgramClient talks to the Deepgram REST API. It implements Transcriber,
// Synthesizer and VoiceCatalog.
type DeepgramClient struct {
	opts     DeepgramOptions
	http     *http.Client
	throttle *rate.Limiter
}

func NewDeepgramClient(opts DeepgramOptions) *DeepgramClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.deepgram.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	c := &DeepgramClient{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
	}
	if opts.RatePerSecond > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.throttle = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return c
}

func (c *DeepgramClient) wait(ctx context.Context) error {
	if c.throttle == nil {
		return nil
	}
	return c.throttle.Wait(ctx)
}

type deepgramListenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends the audio bytes to the prerecorded listen endpoint.
func (c *DeepgramClient) Transcribe(ctx context.Context, audio Audio) (*Transcript, error) {
	if c.opts.APIKey == "" {
		return nil, fault.Unavailable("SERVICE_NOT_CONFIGURED", "transcription service is not configured")
	}
	if err := c.wait(ctx); err != nil {
		return nil, classifyUpstreamErr(err, "transcription")
	}

	u := c.opts.BaseURL + "/v1/listen?model=nova-2&smart_format=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(audio.Bytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.opts.APIKey)
	req.Header.Set("Content-Type", audio.MimeType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyUpstreamErr(err, "transcription")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("deepgram listen failed", "status", resp.StatusCode, "body", string(body))
		return nil, fault.Unavailable("SERVICE_NOT_CONFIGURED", "transcription service unavailable")
	}

	var parsed deepgramListenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fault.Wrap(err, fault.KindUnavailable, "SERVICE_NOT_CONFIGURED", "transcription service returned an unreadable response")
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return nil, fault.Unavailable("SERVICE_NOT_CONFIGURED", "transcription service returned no result")
	}

	alt := parsed.Results.Channels[0].Alternatives[0]
	return &Transcript{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Service:    deepgramService,
	}, nil
}

// Synthesize sends text to the speak endpoint and returns the raw audio.
func (c *DeepgramClient) Synthesize(ctx context.Context, sr SynthesisRequest) (*SynthesisResult, error) {
	if c.opts.APIKey == "" {
		return nil, fault.Unavailable("SERVICE_NOT_CONFIGURED", "text-to-speech service is not configured")
	}
	if err := c.wait(ctx); err != nil {
		return nil, classifyUpstreamErr(err, "text-to-speech")
	}

	voice := sr.Voice
	if voice == "" {
		voice = "aura-asteria-en"
	}
	q := url.Values{"model": {voice}}
	contentType := "audio/mpeg"
	switch sr.Format {
	case "wav":
		q.Set("encoding", "linear16")
		q.Set("container", "wav")
		contentType = "audio/wav"
	default:
		q.Set("encoding", "mp3")
	}

	payload, _ := json.Marshal(map[string]string{"text": sr.Text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/v1/speak?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyUpstreamErr(err, "text-to-speech")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("deepgram speak failed", "status", resp.StatusCode, "body", string(body))
		return nil, fault.Unavailable("TTS_FAILED", "text-to-speech generation failed")
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindUnavailable, "TTS_FAILED", "text-to-speech response could not be read")
	}
	return &SynthesisResult{Bytes: audio, ContentType: contentType, Service: deepgramService}, nil
}

type deepgramModelsResponse struct {
	TTS []struct {
		CanonicalName string `json:"canonical_name"`
		Name          string `json:"name"`
		Language      string `json:"language"`
		Metadata      struct {
			Accent string `json:"accent"`
			Gender string `json:"gender"`
		} `json:"metadata"`
	} `json:"tts"`
}

// List fetches the upstream TTS model catalog, degrading to the static
// fallback list on any failure.
func (c *DeepgramClient) List(ctx context.Context) (*VoiceList, error) {
	if c.opts.APIKey == "" {
		return fallbackVoiceList(), nil
	}
	if err := c.wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return fallbackVoiceList(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("deepgram models fetch failed", "error", err)
		return fallbackVoiceList(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("deepgram models fetch failed", "status", resp.StatusCode)
		return fallbackVoiceList(), nil
	}

	var parsed deepgramModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		slog.Warn("deepgram models response unreadable", "error", err)
		return fallbackVoiceList(), nil
	}

	models := make([]VoiceModel, 0, len(parsed.TTS))
	for _, m := range parsed.TTS {
		models = append(models, VoiceModel{
			ID:       m.CanonicalName,
			Name:     m.Name,
			Language: m.Language,
			Gender:   m.Metadata.Gender,
		})
	}
	if len(models) == 0 {
		return fallbackVoiceList(), nil
	}
	return &VoiceList{Models: models, Service: deepgramService}, nil
}

// classifyUpstreamErr tags transport errors: deadline problems become
// timeouts, everything else is the service being unreachable.
func classifyUpstreamErr(err error, operation string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(err, fault.KindTimeout, "TIMEOUT", operation+" timed out")
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return fault.Wrap(err, fault.KindTimeout, "TIMEOUT", operation+" timed out")
	}
	code := "SERVICE_NOT_CONFIGURED"
	if operation == "text-to-speech" {
		code = "TTS_SERVICE_UNAVAILABLE"
	}
	return fault.Wrap(err, fault.KindUnavailable, code, fmt.Sprintf("%s service unavailable", operation))
}
