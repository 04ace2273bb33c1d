package docgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/usefreetools/toolbox/pkg/fault"
)

const geminiService = "gemini"

// GeminiOptions configures the REST client.
type GeminiOptions struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	RatePerSecond float64
	RateBurst     int
}

// GeminiClient implements Generator over the Gemini generateContent REST
// endpoint.
type GeminiClient struct {
	opts     GeminiOptions
	http     *http.Client
	throttle *rate.Limiter
}

func NewGeminiClient(opts GeminiOptions) *GeminiClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if opts.Model == "" {
		opts.Model = "gemini-1.5-flash"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	c := &GeminiClient{
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

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) Generate(ctx context.Context, kind Kind, req GenerateRequest) (*Document, error) {
	if c.opts.APIKey == "" {
		return nil, fault.Unavailable("SERVICE_NOT_CONFIGURED", "document generation service is not configured")
	}

	p, err := prompt(kind, req)
	if err != nil {
		return nil, err
	}

	if c.throttle != nil {
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, classifyErr(err)
		}
	}

	payload, _ := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: p}}}},
	})
	endpoint := c.opts.BaseURL + "/v1beta/models/" + c.opts.Model + ":generateContent?key=" + url.QueryEscape(c.opts.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("gemini generateContent failed", "status", resp.StatusCode, "body", string(body))
		return nil, fault.Unavailable("GENERATION_FAILED", "document generation failed")
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fault.Wrap(err, fault.KindUnavailable, "GENERATION_FAILED", "document generation returned an unreadable response")
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fault.Unavailable("GENERATION_FAILED", "document generation produced no output")
	}

	format := req.Format
	if format == "" {
		format = "markdown"
	}
	return &Document{
		Content: parsed.Candidates[0].Content.Parts[0].Text,
		Format:  format,
		Service: geminiService,
	}, nil
}

func classifyErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(err, fault.KindTimeout, "TIMEOUT", "document generation timed out")
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return fault.Wrap(err, fault.KindTimeout, "TIMEOUT", "document generation timed out")
	}
	return fault.Wrap(err, fault.KindUnavailable, "GENERATION_FAILED", "document generation service unavailable")
}
