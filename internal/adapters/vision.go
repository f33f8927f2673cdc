package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
	"github.com/ZanzyTHEbar/posture-peek/internal/monitoring"
	"github.com/ZanzyTHEbar/posture-peek/internal/resilience"
)

// VisionServiceName identifies the vision model in health and breaker stats.
const VisionServiceName = "vision-model"

const (
	systemPrompt = "You are an expert in evaluating presentation skills. Analyze the image for posture, confidence, and eye contact. Provide specific feedback."
	framePrompt  = "Analyze this frame for presentation skills focusing on: 1. Posture 2. Confidence 3. Eye Contact. " +
		`Respond only with a JSON object of the form {"posture": int, "confidence": int, "eyeContact": int, "feedback": string} ` +
		"where each score is an integer from 0 to 100."
)

// VisionConfig configures an OpenAI-compatible chat completions endpoint.
type VisionConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Detail    string // image detail: low, high or auto
	MaxTokens int
	Timeout   time.Duration
	Breaker   resilience.CircuitBreakerConfig
	// Breakers, when set, owns the adapter's circuit breaker so its stats are reported.
	Breakers *resilience.CircuitBreakerRegistry
}

// DefaultVisionConfig matches the hosted OpenAI API with a small vision model.
func DefaultVisionConfig() VisionConfig {
	return VisionConfig{
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o-mini",
		Detail:    "low",
		MaxTokens: 300,
		Timeout:   30 * time.Second,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 2,
		},
	}
}

// VisionAdapter classifies frames with a vision-capable chat model.
type VisionAdapter struct {
	cfg         VisionConfig
	pool        *resilience.ConnectionPool
	degradation *resilience.DegradationManager
	logger      *monitoring.Logger
}

// NewVisionAdapter creates a vision adapter with connection pooling.
// degradation may be nil.
func NewVisionAdapter(cfg VisionConfig, degradation *resilience.DegradationManager, logger *monitoring.Logger) (*VisionAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vision model API key is required")
	}
	def := DefaultVisionConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Detail == "" {
		cfg.Detail = def.Detail
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if logger == nil {
		logger = monitoring.NewLogger()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	var cb *resilience.CircuitBreaker
	if cfg.Breakers != nil {
		cb = cfg.Breakers.GetOrCreate(VisionServiceName, cfg.Breaker)
	} else {
		cb = resilience.NewCircuitBreaker(VisionServiceName, cfg.Breaker)
	}
	pool := resilience.NewConnectionPool(resilience.PoolConfig{
		MaxIdle:        10,
		MaxActive:      20,
		IdleTimeout:    90 * time.Second,
		RequestTimeout: cfg.Timeout,
	}, cb)

	return &VisionAdapter{
		cfg:         cfg,
		pool:        pool,
		degradation: degradation,
		logger:      logger,
	}, nil
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ClassifyFrame sends one frame to the model and returns the raw reply text.
func (v *VisionAdapter) ClassifyFrame(ctx context.Context, frame analysis.Frame) (string, error) {
	req := chatRequest{
		Model: v.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{URL: frame.DataURL, Detail: v.cfg.Detail}},
				{Type: "text", Text: framePrompt},
			}},
		},
		MaxTokens:      v.cfg.MaxTokens,
		Temperature:    0,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	endpoint := v.cfg.BaseURL + "/chat/completions"
	start := time.Now()
	status, payload, err := v.pool.DoRequest(ctx, http.MethodPost, endpoint, v.headers(), body)
	v.logger.ExternalAPILogger(VisionServiceName, http.MethodPost, endpoint, status, time.Since(start), err == nil)
	if err != nil {
		v.recordError(err)
		return "", fmt.Errorf("vision model request: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		v.recordError(err)
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		err := fmt.Errorf("vision model error (%s): %s", resp.Error.Type, resp.Error.Message)
		v.recordError(err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("empty response from vision model")
		v.recordError(err)
		return "", err
	}

	if v.degradation != nil {
		v.degradation.RecordRequest(VisionServiceName)
	}
	return resp.Choices[0].Message.Content, nil
}

// Ping checks that the endpoint accepts our credentials.
func (v *VisionAdapter) Ping(ctx context.Context) error {
	_, _, err := v.pool.DoRequest(ctx, http.MethodGet, v.cfg.BaseURL+"/models/"+v.cfg.Model, v.headers(), nil)
	return err
}

func (v *VisionAdapter) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + v.cfg.APIKey,
		"Content-Type":  "application/json",
		"User-Agent":    "Posture-Peek/1.0",
	}
}

func (v *VisionAdapter) recordError(err error) {
	if v.degradation != nil {
		v.degradation.RecordError(VisionServiceName, err)
	}
}

// GetPoolStats returns connection pool statistics
func (v *VisionAdapter) GetPoolStats() resilience.PoolStats {
	return v.pool.GetStats()
}

// Model returns the configured model name.
func (v *VisionAdapter) Model() string {
	return v.cfg.Model
}

// Close closes the connection pool
func (v *VisionAdapter) Close() error {
	return v.pool.Close()
}
