package auth

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"time"

	"github.com/fpang/video-screen/internal/classify"
	"github.com/fpang/video-screen/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ValidationError represents a specific type of API key validation failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes validation failures.
type ValidationErrorType int

const (
	// ErrTypeNoKey indicates no API key was found.
	ErrTypeNoKey ValidationErrorType = iota
	// ErrTypeInvalidKey indicates the API key is invalid or revoked.
	ErrTypeInvalidKey
	// ErrTypeNetworkError indicates a network connectivity issue.
	ErrTypeNetworkError
	// ErrTypeQuotaExceeded indicates the request was rate limited.
	ErrTypeQuotaExceeded
	// ErrTypeBilling indicates the account has no remaining balance.
	ErrTypeBilling
	// ErrTypeUnknown indicates an unknown error occurred.
	ErrTypeUnknown
)

func (t ValidationErrorType) String() string {
	switch t {
	case ErrTypeNoKey:
		return "no_key"
	case ErrTypeInvalidKey:
		return "invalid"
	case ErrTypeNetworkError:
		return "network_error"
	case ErrTypeQuotaExceeded:
		return "quota"
	case ErrTypeBilling:
		return "billing"
	default:
		return "unknown"
	}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// probeImage is a small grey JPEG used to exercise the vision endpoint.
var probeImage = func() []byte {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = color.Gray{Y: 128}.Y
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}()

// Validate verifies that p's key works by classifying a blank probe image.
// A content refusal still proves the key is accepted.
func Validate(ctx context.Context, p classify.Provider) error {
	if !p.IsConfigured() {
		return &ValidationError{Type: ErrTypeNoKey, Message: "no API key configured for " + p.Name()}
	}

	log.Debug().Str("provider", p.Name()).Msg("Validating API key")

	start := time.Now()
	_, err := p.Classify(ctx, classify.Image{Name: "probe.jpg", MIMEType: "image/jpeg", Data: probeImage})
	elapsed := time.Since(start)

	valErr := classifyError(err)
	result := "success"
	if valErr != nil {
		result = valErr.Type.String()
	}

	metrics.New("VideoScreen").
		Dimension("Provider", p.Name()).
		Dimension("Result", result).
		Metric("ApiKeyValidationMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("ApiKeyValidationResult").
		Flush()

	log.Debug().
		Str("provider", p.Name()).
		Str("result", result).
		Dur("duration", elapsed).
		Msg("API key validation result")

	if valErr != nil {
		return valErr
	}
	return nil
}

// classifyError maps a probe failure to a ValidationError. Nil means the key
// was accepted.
func classifyError(err error) *ValidationError {
	if err == nil {
		return nil
	}

	var pe *classify.ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.StatusCode == 401 || pe.StatusCode == 403:
			return &ValidationError{Type: ErrTypeInvalidKey, Message: "API key is invalid, expired, or lacks permissions", Err: err}
		case pe.StatusCode >= 500:
			return &ValidationError{Type: ErrTypeNetworkError, Message: "provider server error - try again later", Err: err}
		}
	}

	switch classify.Categorize(err) {
	case classify.CategoryContentRejected:
		return nil
	case classify.CategoryBilling:
		return &ValidationError{Type: ErrTypeBilling, Message: "provider account has no remaining balance", Err: err}
	case classify.CategoryRateLimited:
		return &ValidationError{Type: ErrTypeQuotaExceeded, Message: "API rate limit exceeded - try again later", Err: err}
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "api key not valid") ||
		strings.Contains(errLower, "invalid api key") ||
		strings.Contains(errLower, "api_key_invalid") ||
		strings.Contains(errLower, "unauthorized") ||
		strings.Contains(errLower, "permission denied"):
		return &ValidationError{Type: ErrTypeInvalidKey, Message: "API key is invalid or has been revoked", Err: err}

	case strings.Contains(errLower, "connection") ||
		strings.Contains(errLower, "network") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "dial") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "unreachable"):
		return &ValidationError{Type: ErrTypeNetworkError, Message: "network error - check your internet connection", Err: err}

	default:
		return &ValidationError{Type: ErrTypeUnknown, Message: "failed to validate API key", Err: err}
	}
}
