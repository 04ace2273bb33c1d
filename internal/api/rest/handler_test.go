package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/usefreetools/toolbox/internal/auth"
	"github.com/usefreetools/toolbox/internal/docgen"
	"github.com/usefreetools/toolbox/internal/ratelimit"
	"github.com/usefreetools/toolbox/internal/scan"
	"github.com/usefreetools/toolbox/internal/speech"
	"github.com/usefreetools/toolbox/pkg/fault"
)

type stubTranscriber struct {
	fn func(ctx context.Context, audio speech.Audio) (*speech.Transcript, error)
}

func (s stubTranscriber) Transcribe(ctx context.Context, audio speech.Audio) (*speech.Transcript, error) {
	if s.fn != nil {
		return s.fn(ctx, audio)
	}
	return &speech.Transcript{Text: "hello world", Confidence: 0.98, Service: "deepgram"}, nil
}

type stubSynthesizer struct {
	fn func(ctx context.Context, req speech.SynthesisRequest) (*speech.SynthesisResult, error)
}

func (s stubSynthesizer) Synthesize(ctx context.Context, req speech.SynthesisRequest) (*speech.SynthesisResult, error) {
	if s.fn != nil {
		return s.fn(ctx, req)
	}
	return &speech.SynthesisResult{Bytes: []byte("ID3audio"), ContentType: "audio/mpeg", Service: "deepgram"}, nil
}

type stubCatalog struct {
	calls int
	fn    func(ctx context.Context) (*speech.VoiceList, error)
}

func (s *stubCatalog) List(ctx context.Context) (*speech.VoiceList, error) {
	s.calls++
	if s.fn != nil {
		return s.fn(ctx)
	}
	return &speech.VoiceList{
		Models:  []speech.VoiceModel{{ID: "aura-asteria-en", Name: "Asteria", Language: "en-US", Gender: "female"}},
		Service: "deepgram",
	}, nil
}

type stubGenerator struct {
	fn func(ctx context.Context, kind docgen.Kind, req docgen.GenerateRequest) (*docgen.Document, error)
}

func (s stubGenerator) Generate(ctx context.Context, kind docgen.Kind, req docgen.GenerateRequest) (*docgen.Document, error) {
	if s.fn != nil {
		return s.fn(ctx, kind, req)
	}
	return &docgen.Document{Content: "# Invoice\n\nTotal: 100", Format: "markdown", Service: "gemini"}, nil
}

// testEnv bundles the handler with the fakes behind it so tests can both
// drive requests and inspect side effects.
type testEnv struct {
	mux     *http.ServeMux
	store   *ratelimit.MemoryStore
	catalog *stubCatalog
	deps    Deps
}

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()

	store := ratelimit.NewMemoryStore()
	catalog := &stubCatalog{}

	heuristics, err := scan.NewHeuristics(scan.DefaultRules())
	require.NoError(t, err)

	deps := Deps{
		Limiter:     ratelimit.NewLimiter(store, nil),
		Policies:    ratelimit.DefaultPolicies(),
		Transcriber: stubTranscriber{},
		Synthesizer: stubSynthesizer{},
		Voices:      speech.NewCachedCatalog(catalog, 5*time.Minute),
		Converter:   docgen.TextConverter{},
		Generator:   stubGenerator{},
		Scanner:     scan.NewScanner(heuristics, nil, false),
		Inspector:   store,
	}
	for _, fn := range mutate {
		fn(&deps)
	}

	mux := http.NewServeMux()
	NewHandler(deps).RegisterRoutes(mux)

	return &testEnv{mux: mux, store: store, catalog: catalog, deps: deps}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, path string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path string, fields map[string]string, fileField, filename, fileMime string, fileBody []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	if fileField != "" {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, filename)}
		if fileMime != "" {
			header["Content-Type"] = []string{fileMime}
		}
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(fileBody)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"), "health is not rate limited")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodOptions, "/tts", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rr.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSOnActualResponse(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(jsonRequest(http.MethodPost, "/tts", map[string]string{"text": "hi"}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitHeaders(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(jsonRequest(http.MethodPost, "/scan", ScanInput{Type: "domain", Target: "example.com"}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(t, rr.Header().Get("X-RateLimit-Reset"), "reset header only appears on denials")
}

func TestRateLimitExceeded(t *testing.T) {
	env := newTestEnv(t)

	var rr *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		req := jsonRequest(http.MethodPost, "/scan", ScanInput{Type: "domain", Target: "example.com"})
		req.Header.Set("X-Forwarded-For", "198.51.100.7")
		rr = env.do(req)
	}

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	apiErr := decodeError(t, rr)
	assert.Equal(t, ErrCodeRateLimit, apiErr.Code)
	assert.Equal(t, "Rate limit exceeded. Try again later.", apiErr.Error)
}

func TestRateLimitClientIsolation(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 10; i++ {
		req := jsonRequest(http.MethodPost, "/scan", ScanInput{Type: "domain", Target: "example.com"})
		req.Header.Set("X-Forwarded-For", "198.51.100.7")
		require.Equal(t, http.StatusOK, env.do(req).Code)
	}

	req := jsonRequest(http.MethodPost, "/scan", ScanInput{Type: "domain", Target: "example.com"})
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, http.StatusOK, env.do(req).Code, "other clients keep their own window")
}

func TestRateLimitDenialDoesNotConsume(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 12; i++ {
		req := jsonRequest(http.MethodPost, "/scan", ScanInput{Type: "domain", Target: "example.com"})
		req.Header.Set("X-Forwarded-For", "198.51.100.8")
		env.do(req)
	}

	entry, ok := env.store.Snapshot()[ratelimit.Key(ratelimit.ScopeScan, "198.51.100.8")]
	require.True(t, ok)
	assert.Equal(t, 10, entry.Count, "denied requests must not advance the counter")
}

func TestUpstreamFaultMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unavailable", fault.Unavailable("TTS_SERVICE_UNAVAILABLE", "Text-to-speech service unavailable"), http.StatusServiceUnavailable, "TTS_SERVICE_UNAVAILABLE"},
		{"timeout", fault.Timeout("Request timed out"), http.StatusRequestTimeout, "TIMEOUT"},
		{"untagged", errors.New("socket closed"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, func(d *Deps) {
				d.Synthesizer = stubSynthesizer{fn: func(context.Context, speech.SynthesisRequest) (*speech.SynthesisResult, error) {
					return nil, tc.err
				}}
			})

			rr := env.do(jsonRequest(http.MethodPost, "/tts", map[string]string{"text": "hi"}))

			assert.Equal(t, tc.wantStatus, rr.Code)
			apiErr := decodeError(t, rr)
			assert.Equal(t, tc.wantCode, apiErr.Code)
			if tc.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "Internal server error", apiErr.Error, "internal detail must not leak")
				assert.NotContains(t, apiErr.Error, "socket")
			}
		})
	}
}

func TestPanicRecovery(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Synthesizer = stubSynthesizer{fn: func(context.Context, speech.SynthesisRequest) (*speech.SynthesisResult, error) {
			panic("boom")
		}}
	})

	rr := env.do(jsonRequest(http.MethodPost, "/tts", map[string]string{"text": "hi"}))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, ErrCodeInternal, decodeError(t, rr).Code)
}

func TestMalformedJSONBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rr := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid JSON body", decodeError(t, rr).Error)
}

func adminEnv(t *testing.T) (*testEnv, string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("sesame"), bcrypt.MinCost)
	require.NoError(t, err)

	env := newTestEnv(t, func(d *Deps) {
		d.Admin = auth.NewService(string(hash), "test-secret", time.Hour)
	})

	rr := env.do(jsonRequest(http.MethodPost, "/admin/login", AdminLoginRequest{Key: "sesame"}))
	require.Equal(t, http.StatusOK, rr.Code)

	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pair))
	require.NotEmpty(t, pair.AccessToken)

	return env, pair.AccessToken
}

func TestAdminLoginRejectsBadKey(t *testing.T) {
	env, _ := adminEnv(t)

	rr := env.do(jsonRequest(http.MethodPost, "/admin/login", AdminLoginRequest{Key: "wrong"}))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, ErrCodeUnauthorized, decodeError(t, rr).Code)
}

func TestAdminLoginDisabled(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Admin = auth.NewService("", "secret", time.Hour)
	})

	rr := env.do(jsonRequest(http.MethodPost, "/admin/login", AdminLoginRequest{Key: "any"}))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, ErrCodeNotConfigured, decodeError(t, rr).Code)
}

func TestAdminRateLimitListing(t *testing.T) {
	env, token := adminEnv(t)

	for _, ip := range []string{"198.51.100.1", "198.51.100.2"} {
		req := jsonRequest(http.MethodPost, "/scan", ScanInput{Type: "domain", Target: "example.com"})
		req.Header.Set("X-Forwarded-For", ip)
		require.Equal(t, http.StatusOK, env.do(req).Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/ratelimit?prefix=scan:", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := env.do(req)

	require.Equal(t, http.StatusOK, rr.Code)
	var listing RateLimitListing
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	assert.Equal(t, 2, listing.Total)
	require.Len(t, listing.Entries, 2)
	assert.Equal(t, "scan:198.51.100.1", listing.Entries[0].Key)
	assert.Equal(t, 1, listing.Entries[0].Count)
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	env, _ := adminEnv(t)

	t.Run("missing token", func(t *testing.T) {
		rr := env.do(httptest.NewRequest(http.MethodGet, "/admin/ratelimit", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/ratelimit", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rr := env.do(req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestAdminCachePurge(t *testing.T) {
	env, token := adminEnv(t)

	require.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/voice-models", nil)).Code)
	require.True(t, env.deps.Voices.Cached())

	req := httptest.NewRequest(http.MethodPost, "/admin/cache/purge", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := env.do(req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, env.deps.Voices.Cached())
}
