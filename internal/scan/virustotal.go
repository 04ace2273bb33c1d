package scan

import (
	"context"
	"encoding/base64"
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

// Verdict summarizes a VirusTotal analysis.
type Verdict struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Harmless   int `json:"harmless"`
	Undetected int `json:"undetected"`
}

// Reputation is the coarse classification clients branch on.
func (v Verdict) Reputation() string {
	switch {
	case v.Malicious > 0:
		return "malicious"
	case v.Suspicious > 0:
		return "suspicious"
	default:
		return "clean"
	}
}

// ReputationService looks up a target's reputation. Implementations return
// a fault-tagged error when unconfigured or unreachable.
type ReputationService interface {
	Lookup(ctx context.Context, targetType, target string) (*Verdict, error)
}

// VirusTotalOptions configures the v3 REST client.
type VirusTotalOptions struct {
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	RateBurst     int
}

// VirusTotalClient implements ReputationService against the v3 API.
type VirusTotalClient struct {
	opts     VirusTotalOptions
	http     *http.Client
	throttle *rate.Limiter
}

func NewVirusTotalClient(opts VirusTotalOptions) *VirusTotalClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.virustotal.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	c := &VirusTotalClient{
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

// Enabled reports whether the client has credentials.
func (c *VirusTotalClient) Enabled() bool { return c.opts.APIKey != "" }

type vtResponse struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Harmless   int `json:"harmless"`
				Undetected int `json:"undetected"`
			} `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *VirusTotalClient) Lookup(ctx context.Context, targetType, target string) (*Verdict, error) {
	if !c.Enabled() {
		return nil, fault.Unavailable("SERVICE_NOT_CONFIGURED", "reputation service is not configured")
	}

	var path string
	switch targetType {
	case TypeDomain:
		path = "/api/v3/domains/" + url.PathEscape(target)
	case TypeIP:
		path = "/api/v3/ip_addresses/" + url.PathEscape(target)
	case TypeURL:
		// VirusTotal identifies URLs by their unpadded base64url form.
		id := base64.RawURLEncoding.EncodeToString([]byte(target))
		path = "/api/v3/urls/" + id
	default:
		return nil, fault.Validation("unknown scan target type")
	}

	if c.throttle != nil {
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, classifyLookupErr(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-apikey", c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyLookupErr(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		// Never analyzed before: an empty verdict, not an error.
		return &Verdict{}, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("virustotal lookup failed", "status", resp.StatusCode, "body", string(body))
		return nil, fault.Unavailable("SCAN_FAILED", "reputation lookup failed")
	}

	var parsed vtResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fault.Wrap(err, fault.KindUnavailable, "SCAN_FAILED", "reputation lookup returned an unreadable response")
	}

	stats := parsed.Data.Attributes.LastAnalysisStats
	return &Verdict{
		Malicious:  stats.Malicious,
		Suspicious: stats.Suspicious,
		Harmless:   stats.Harmless,
		Undetected: stats.Undetected,
	}, nil
}

func classifyLookupErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(err, fault.KindTimeout, "TIMEOUT", "reputation lookup timed out")
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return fault.Wrap(err, fault.KindTimeout, "TIMEOUT", "reputation lookup timed out")
	}
	return fault.Wrap(err, fault.KindUnavailable, "SCAN_FAILED", "reputation service unavailable")
}
