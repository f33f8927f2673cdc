package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
	"github.com/ZanzyTHEbar/posture-peek/internal/config"
	"github.com/ZanzyTHEbar/posture-peek/internal/monitoring"
)

// webmHeader is enough of an EBML header for content sniffing to report video/webm.
var webmHeader = []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x86, 0x81, 0x01}

// quicktime starts with an ISO base media ftyp box branded "qt  ".
var quicktime = append([]byte{0x00, 0x00, 0x00, 0x14, 'f', 't', 'y', 'p', 'q', 't', ' ', ' '}, bytes.Repeat([]byte{0x00}, 32)...)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Database.DataDir = t.TempDir()
	cfg.Analysis.Seed = 7
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	logger := monitoring.NewLoggerTo(io.Discard, slog.LevelError)
	s, err := newServer(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(s.close)
	return s
}

type fakeSampler struct{}

func (fakeSampler) Sample(_ context.Context, _ analysis.Video) ([]analysis.Frame, error) {
	return []analysis.Frame{{Index: 0}, {Index: 1}}, nil
}

type fakeClassifier struct {
	reply string
}

func (f fakeClassifier) ClassifyFrame(_ context.Context, _ analysis.Frame) (string, error) {
	return f.reply, nil
}

// useModel swaps in an analyzer whose model path always succeeds.
func useModel(s *server, posture, confidence, eyeContact int) {
	reply := fmt.Sprintf(`{"posture": %d, "confidence": %d, "eyeContact": %d, "feedback": "ok"}`, posture, confidence, eyeContact)
	s.analyzer = analysis.NewAnalyzer(fakeSampler{}, fakeClassifier{reply: reply},
		analysis.WithRecorder(s.metrics),
		analysis.WithLogger(s.logger.Logger),
	)
}

func videoForm(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postVideo(t *testing.T, r http.Handler, path string, data []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := videoForm(t, videoField, "talk.webm", "video/webm", data)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func video(seed byte) []byte {
	return append(append([]byte{}, webmHeader...), bytes.Repeat([]byte{seed}, 64)...)
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1, "error envelope has a single key: %s", rec.Body.String())
	msg, ok := body["error"].(string)
	require.True(t, ok)
	return msg
}

func TestAnalyze_FallbackResponseSchema(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.router()

	for _, path := range []string{"/api/analyze", "/analyze-video"} {
		t.Run(path, func(t *testing.T) {
			rec := postVideo(t, r, path, video(1), nil)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "fallback", rec.Header().Get(AnalysisSourceHeader))

			var body map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.ElementsMatch(t, []string{"metrics", "sections"}, keys(body))

			var metrics map[string]int
			require.NoError(t, json.Unmarshal(body["metrics"], &metrics))
			assert.ElementsMatch(t, []string{"posture", "confidence", "eyeContact"}, keys(metrics))
			for name, score := range metrics {
				assert.GreaterOrEqual(t, score, 60, name)
				assert.LessOrEqual(t, score, 95, name)
			}

			var sections map[string][]map[string]string
			require.NoError(t, json.Unmarshal(body["sections"], &sections))
			assert.ElementsMatch(t, []string{"posture", "confidence", "eyeContact", "overall"}, keys(sections))
			for key, items := range sections {
				assert.Len(t, items, 3, key)
				for _, item := range items {
					assert.ElementsMatch(t, []string{"title", "content", "type"}, keys(item))
					assert.Contains(t, []string{"info", "success", "warning"}, item["type"])
				}
			}
		})
	}
}

func TestAnalyze_ModelResultIsCached(t *testing.T) {
	s := newTestServer(t, nil)
	useModel(s, 90, 72, 64)
	r := s.router()

	first := postVideo(t, r, "/api/analyze", video(2), nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "model", first.Header().Get(AnalysisSourceHeader))

	var result analysis.AnalysisResult
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &result))
	assert.Equal(t, analysis.Metrics{Posture: 90, Confidence: 72, EyeContact: 64}, result.Metrics)
	assert.Equal(t, "Your posture shows strong performance with a score of 90%.", result.Sections["posture"][0].Content)

	second := postVideo(t, r, "/api/analyze", video(2), nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "cache", second.Header().Get(AnalysisSourceHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	other := postVideo(t, r, "/analyze-video", video(3), nil)
	assert.Equal(t, "model", other.Header().Get(AnalysisSourceHeader))

	stats := s.metrics.GetStats()
	assert.Equal(t, int64(2), stats.Analyses["model"])
	assert.Equal(t, int64(1), stats.Analyses["cache"])
}

func TestAnalyze_FallbackIsNotCached(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.router()

	for i := 0; i < 2; i++ {
		rec := postVideo(t, r, "/api/analyze", video(4), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "fallback", rec.Header().Get(AnalysisSourceHeader))
	}
	assert.Equal(t, 0, s.cache.Size())
}

func TestAnalyze_InvalidRequests(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.router()

	form := func(field, filename, contentType string, data []byte) func(t *testing.T) (io.Reader, string) {
		return func(t *testing.T) (io.Reader, string) {
			return videoForm(t, field, filename, contentType, data)
		}
	}

	tests := []struct {
		name       string
		body       func(t *testing.T) (io.Reader, string)
		wantStatus int
		wantError  string
	}{
		{
			name: "json body",
			body: func(t *testing.T) (io.Reader, string) {
				return strings.NewReader(`{"video": "x"}`), "application/json"
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "No video file provided",
		},
		{
			name:       "wrong field name",
			body:       form("file", "talk.webm", "video/webm", video(5)),
			wantStatus: http.StatusBadRequest,
			wantError:  "No video file provided",
		},
		{
			name:       "empty file",
			body:       form(videoField, "talk.webm", "video/webm", nil),
			wantStatus: http.StatusBadRequest,
			wantError:  "Video file is empty",
		},
		{
			name:       "not a video",
			body:       form(videoField, "notes.txt", "text/plain", []byte("hello")),
			wantStatus: http.StatusBadRequest,
			wantError:  "Uploaded file is not a video",
		},
		{
			name:       "sniffed video without declared type",
			body:       form(videoField, "blob", "application/octet-stream", video(6)),
			wantStatus: http.StatusOK,
		},
		{
			name:       "quicktime declared as octet-stream",
			body:       form(videoField, "talk.mov", "application/octet-stream", quicktime),
			wantStatus: http.StatusOK,
		},
		{
			name:       "quicktime content without extension",
			body:       form(videoField, "recording", "", quicktime),
			wantStatus: http.StatusOK,
		},
		{
			name:       "octet-stream that is not a video",
			body:       form(videoField, "notes", "application/octet-stream", []byte("hello")),
			wantStatus: http.StatusBadRequest,
			wantError:  "Uploaded file is not a video",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := tt.body(t)
			req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorMessage(t, rec))
			}
		})
	}
}

func TestAnalyze_PayloadTooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.MaxUploadBytes = 1024
	r := newTestServer(t, cfg).router()

	rec := postVideo(t, r, "/api/analyze", append(video(7), make([]byte, 4096)...), nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "1024 byte upload limit")
}

func TestAnalyze_RateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.PerMinute = 2
	s := newTestServer(t, cfg)
	r := s.router()

	for i := 0; i < 2; i++ {
		rec := postVideo(t, r, "/api/analyze", video(8), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := postVideo(t, r, "/api/analyze", video(8), nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded", errorMessage(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, int64(1), s.metrics.GetStats().RateLimitBlocks)

	status := httptest.NewRecorder()
	r.ServeHTTP(status, httptest.NewRequest(http.MethodGet, "/api/ratelimit", nil))
	require.Equal(t, http.StatusOK, status.Code)
	var quota map[string]any
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &quota))
	assert.Equal(t, float64(2), quota["limit"])
	assert.Equal(t, float64(0), quota["remaining"])
}

func TestAnalyze_Auth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "test-secret"
	s := newTestServer(t, cfg)
	r := s.router()

	token, err := s.auth.GenerateToken("alice", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{"no token", "", http.StatusUnauthorized, "Missing bearer token"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "Invalid or expired token"},
		{"valid token", "Bearer " + token, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Authorization", tt.header)
			}
			rec := postVideo(t, r, "/api/analyze", video(9), header)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorMessage(t, rec))
			}
		})
	}

	runs, err := s.runs.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "alice", runs[0].Subject)
}

func TestAnalyze_CORSPreflight(t *testing.T) {
	r := newTestServer(t, nil).router()

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization, x-client-info, apikey, content-type")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAnalyze_ResponseHeaders(t *testing.T) {
	r := newTestServer(t, nil).router()

	rec := postVideo(t, r, "/api/analyze", video(10), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(monitoring.RequestIDHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Timeout"))
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
