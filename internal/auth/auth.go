// Package auth resolves classifier API keys and checks that they work.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

const credentialDir = ".video-screen"

// Source names where a key came from. Never log the key itself.
type Source string

const (
	SourceConfig Source = "config"
	SourceEnv    Source = "env"
	SourceSSM    Source = "ssm"
	SourceGPG    Source = "gpg"
)

// ErrNoKey is returned when no source has a key for the provider.
var ErrNoKey = errors.New("API key not found")

// envVars maps provider names to the environment variable holding their key.
var envVars = map[string]string{
	"zhipu":  "ZHIPU_API_KEY",
	"openai": "OPENAI_API_KEY",
	"gemini": "GEMINI_API_KEY",
}

// EnvVar returns the environment variable for provider's key.
func EnvVar(provider string) string {
	if v, ok := envVars[provider]; ok {
		return v
	}
	return strings.ToUpper(provider) + "_API_KEY"
}

// ParameterGetter is the subset of the SSM client used for key lookup.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver looks up an API key. Priority order:
//  1. Explicit key from config or flag
//  2. Provider environment variable (ZHIPU_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY)
//  3. SSM Parameter Store, when SSMParam is set
//  4. GPG-encrypted file at ~/.video-screen/<provider>.gpg
type Resolver struct {
	SSM      ParameterGetter
	SSMParam string
	// Home overrides the user's home directory, for tests.
	Home string
}

// Resolve returns the key for provider and where it was found.
func (r *Resolver) Resolve(ctx context.Context, provider, explicit string) (string, Source, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		log.Debug().Str("provider", provider).Msg("Using API key from configuration")
		return key, SourceConfig, nil
	}

	envVar := EnvVar(provider)
	if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
		log.Debug().Str("provider", provider).Str("env", envVar).Msg("Using API key from environment variable")
		return key, SourceEnv, nil
	}

	var errs []error
	if r.SSMParam != "" && r.SSM != nil {
		key, err := r.fromSSM(ctx)
		if err == nil && key != "" {
			return key, SourceSSM, nil
		}
		errs = append(errs, err)
	}

	key, err := r.fromGPG(provider)
	if err == nil && key != "" {
		log.Debug().Str("provider", provider).Msg("Using API key from GPG encrypted file")
		return key, SourceGPG, nil
	}
	errs = append(errs, err)

	return "", "", fmt.Errorf("%w for %s: set %s or run scripts/setup-gpg-credentials.sh: %w",
		ErrNoKey, provider, envVar, errors.Join(errs...))
}

func (r *Resolver) fromSSM(ctx context.Context) (string, error) {
	start := time.Now()
	result, err := r.SSM.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &r.SSMParam,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read %s from SSM: %w", r.SSMParam, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %s has no value", r.SSMParam)
	}
	log.Debug().Str("param", r.SSMParam).Dur("elapsed", time.Since(start)).Msg("API key loaded from SSM")
	return strings.TrimSpace(*result.Parameter.Value), nil
}

// fromGPG decrypts the provider's key file.
func (r *Resolver) fromGPG(provider string) (string, error) {
	credPath, err := r.credentialPath(provider)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	args := []string{"--decrypt", "--quiet"}
	if passphrasePath, ok := r.passphrasePath(); ok {
		args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
	}
	args = append(args, credPath)

	output, err := exec.Command("gpg", args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("GPG decryption failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

func (r *Resolver) home() (string, error) {
	if r.Home != "" {
		return r.Home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return home, nil
}

func (r *Resolver) credentialPath(provider string) (string, error) {
	home, err := r.home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, credentialDir, provider+".gpg"), nil
}

// passphrasePath returns ~/.video-screen/.gpg-passphrase when it exists and
// is readable only by its owner.
func (r *Resolver) passphrasePath() (string, bool) {
	home, err := r.home()
	if err != nil {
		return "", false
	}
	path := filepath.Join(home, credentialDir, ".gpg-passphrase")
	fi, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if mode := fi.Mode().Perm(); mode&0o077 != 0 {
		log.Warn().
			Str("passphrase_file", path).
			Str("permissions", fmt.Sprintf("%04o", mode)).
			Msg("Passphrase file has insecure permissions (should be 0600); skipping")
		return "", false
	}
	log.Debug().Str("passphrase_file", path).Msg("Using passphrase file for GPG decryption")
	return path, true
}
