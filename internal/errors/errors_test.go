package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("connection refused")

	tests := []struct {
		name         string
		err          *AppError
		wantCategory ErrorCategory
		wantStatus   int
		wantString   string
		wantEnvelope string
	}{
		{
			name:         "validation",
			err:          NewValidationError("No video file provided", "field video"),
			wantCategory: CategoryValidation,
			wantStatus:   http.StatusBadRequest,
			wantString:   "[VALIDATION_ERROR] No video file provided",
			wantEnvelope: "No video file provided",
		},
		{
			name:         "payload too large",
			err:          NewPayloadTooLargeError(1024),
			wantCategory: CategoryTooLarge,
			wantStatus:   http.StatusRequestEntityTooLarge,
			wantString:   "[VALIDATION_ERROR] Video exceeds the 1024 byte upload limit",
			wantEnvelope: "Video exceeds the 1024 byte upload limit",
		},
		{
			name:         "unauthorized",
			err:          NewUnauthorizedError("Invalid token", nil),
			wantCategory: CategoryUnauthorized,
			wantStatus:   http.StatusUnauthorized,
			wantString:   "[UNAUTHORIZED] Invalid token",
			wantEnvelope: "Invalid token",
		},
		{
			name:         "network",
			err:          NewNetworkError("connection failed", cause),
			wantCategory: CategoryNetwork,
			wantStatus:   http.StatusBadGateway,
			wantString:   "[NETWORK_ERROR] connection failed",
			wantEnvelope: "connection failed",
		},
		{
			name:         "rate limit",
			err:          NewRateLimitError("60"),
			wantCategory: CategoryRateLimit,
			wantStatus:   http.StatusTooManyRequests,
			wantString:   "[RATE_LIMIT_EXCEEDED] Rate limit exceeded",
			wantEnvelope: "Rate limit exceeded",
		},
		{
			name:         "internal hides details",
			err:          NewInternalError("db exploded", cause),
			wantCategory: CategoryInternal,
			wantStatus:   http.StatusInternalServerError,
			wantString:   "[INTERNAL_ERROR] Internal server error",
			wantEnvelope: "Internal server error",
		},
		{
			name:         "configuration",
			err:          NewConfigurationError("invalid configuration", nil),
			wantCategory: CategoryConfiguration,
			wantStatus:   http.StatusInternalServerError,
			wantString:   "[CONFIGURATION_ERROR] invalid configuration",
			wantEnvelope: "invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCategory, tt.err.Category)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
			assert.Equal(t, tt.wantString, tt.err.Error())
			assert.Equal(t, Envelope{Error: tt.wantEnvelope}, tt.err.Envelope())
			assert.False(t, tt.err.Timestamp.IsZero())
		})
	}
}

func TestNewAppError_CustomBuilder(t *testing.T) {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("Custom error message")

	err := NewAppError(builder, CategoryValidation, http.StatusBadRequest)
	assert.Equal(t, "Custom error message", err.Msg)
	assert.Equal(t, errbuilder.CodeInvalidArgument, err.ErrCode())
}

func TestToAppError(t *testing.T) {
	existing := NewValidationError("bad input")

	tests := []struct {
		name         string
		err          error
		wantCategory ErrorCategory
		wantSame     bool
	}{
		{"app error passes through", existing, CategoryValidation, true},
		{"wrapped app error", fmt.Errorf("handler: %w", existing), CategoryValidation, true},
		{"canceled", context.Canceled, CategoryTimeout, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), CategoryTimeout, false},
		{"refused", fmt.Errorf("dial tcp: connection refused"), CategoryNetwork, false},
		{"timeout text", fmt.Errorf("i/o timeout"), CategoryTimeout, false},
		{"anything else", fmt.Errorf("boom"), CategoryInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToAppError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCategory, got.Category)
			if tt.wantSame {
				assert.Same(t, existing, got)
			}
		})
	}

	assert.Nil(t, ToAppError(nil))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, "ignored"))

	base := fmt.Errorf("disk full")
	err := WrapError(base, "write run %d", 3)
	assert.EqualError(t, err, "write run 3: disk full")
	assert.ErrorIs(t, err, base)
}

func envelopeOf(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryHandler(), ErrorHandler())
	r.GET("/abort", func(c *gin.Context) {
		Abort(c, NewValidationError("Video file is empty"))
	})
	r.GET("/attached", func(c *gin.Context) {
		_ = c.Error(NewRateLimitError("30"))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("unexpected")
	})

	tests := []struct {
		path       string
		wantStatus int
		wantError  string
	}{
		{"/abort", http.StatusBadRequest, "Video file is empty"},
		{"/attached", http.StatusTooManyRequests, "Rate limit exceeded"},
		{"/panic", http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, envelopeOf(t, rec).Error)
		})
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestSafeClose(t *testing.T) {
	closed := false
	SafeClose(closerFunc(func() error { closed = true; return nil }), "test")
	assert.True(t, closed)

	assert.NotPanics(t, func() {
		SafeClose(closerFunc(func() error { return fmt.Errorf("already closed") }), "test")
		SafeClose(nil, "nothing")
	})
}
