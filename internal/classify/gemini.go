package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fpang/video-screen/internal/assets"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider classifies frames with the Gemini API.
type GeminiProvider struct {
	apiKey string
	model  string

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGemini returns the Gemini provider. The API client is created lazily on
// first use.
func NewGemini(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{apiKey: apiKey, model: model}
}

func (p *GeminiProvider) Name() string        { return "gemini" }
func (p *GeminiProvider) DisplayName() string { return "Google " + p.model }
func (p *GeminiProvider) IsConfigured() bool  { return strings.TrimSpace(p.apiKey) != "" }

// Model returns the model the provider sends requests to.
func (p *GeminiProvider) Model() string { return p.model }

func (p *GeminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		p.client, p.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  p.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return p.client, p.initErr
}

// Classify sends the frame inline with the moderation prompt.
func (p *GeminiProvider) Classify(ctx context.Context, img Image) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Category: CategoryOther, Err: fmt.Errorf("failed to create Gemini client: %w", err)}
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.ModerationSystemPrompt()}},
		},
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
			{Text: assets.ModerationPrompt()},
		},
	}}

	log.Debug().
		Str("model", p.model).
		Str("image", img.Name).
		Int("image_bytes", len(img.Data)).
		Msg("Sending frame to Gemini")

	resp, err := client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return "", p.wrapError(err)
	}
	if resp == nil {
		return "", &ProviderError{Provider: p.Name(), Category: CategoryOther, Err: errors.New("received empty response from Gemini API")}
	}
	if reason := blockReason(resp); reason != "" {
		return "", &ProviderError{
			Provider: p.Name(),
			Category: CategoryContentRejected,
			Err:      fmt.Errorf("response blocked: %s", reason),
		}
	}
	return resp.Text(), nil
}

// blockReason returns why Gemini refused to answer, or "" if it did answer.
func blockReason(resp *genai.GenerateContentResponse) string {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return string(resp.PromptFeedback.BlockReason)
	}
	for _, c := range resp.Candidates {
		switch c.FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
			return string(c.FinishReason)
		}
	}
	return ""
}

func (p *GeminiProvider) wrapError(err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return &ProviderError{Provider: p.Name(), Category: categorizeMessage(err.Error()), Err: err}
	}
	return &ProviderError{
		Provider:   p.Name(),
		Category:   categorizeGemini(apiErr.Code, apiErr.Status, apiErr.Message),
		StatusCode: apiErr.Code,
		Code:       apiErr.Status,
		Err:        err,
	}
}
