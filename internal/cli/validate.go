package cli

import (
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-screen/internal/auth"
	"github.com/fpang/video-screen/internal/frames"
)

// ValidateVideoPath checks that path is a readable video with an accepted
// extension and returns its absolute path. Exits fatally on failure.
func ValidateVideoPath(path string) string {
	abs, err := frames.ValidateVideo(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Cannot screen this file")
	}
	return abs
}

// ValidationHint returns the user-facing advice for a key validation failure.
func ValidationHint(err error, provider string) string {
	var validationErr *auth.ValidationError
	if !errors.As(err, &validationErr) {
		return "Unexpected error during API key validation"
	}
	switch validationErr.Type {
	case auth.ErrTypeNoKey:
		return "No API key configured. Set " + auth.EnvVar(provider) + " or run scripts/setup-gpg-credentials.sh"
	case auth.ErrTypeInvalidKey:
		return "Invalid API key. Please check your API key and try again"
	case auth.ErrTypeNetworkError:
		return "Network error. Please check your internet connection"
	case auth.ErrTypeQuotaExceeded:
		return "API rate limit reached. Please try again later"
	case auth.ErrTypeBilling:
		return "Account balance exhausted. Top up the account before screening"
	default:
		return "API key validation failed"
	}
}

// HandleValidationError logs the advice for err and exits.
func HandleValidationError(err error, provider string) {
	log.Error().Err(err).Str("provider", provider).Msg(ValidationHint(err, provider))
	os.Exit(1)
}
