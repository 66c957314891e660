package classify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/video-screen/internal/assets"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

// Provider defaults for OpenAI-compatible chat completion endpoints.
const (
	ZhipuBaseURL      = "https://open.bigmodel.cn/api/paas/v4/"
	DefaultZhipuModel = "glm-4v-flash"

	DefaultOpenAIModel = "gpt-4o-mini"

	requestTimeout = 60 * time.Second
)

// ChatProvider classifies frames through an OpenAI-compatible chat completions
// API. Zhipu GLM-4V and OpenAI both use it, differing in endpoint, image
// encoding and error vocabulary.
type ChatProvider struct {
	name        string
	displayName string
	model       string
	apiKey      string
	dataURL     bool
	categorize  func(status int, code, message string) Category
	client      openai.Client
}

// NewZhipu returns the Zhipu GLM-4V provider. An empty model selects
// DefaultZhipuModel.
func NewZhipu(apiKey, model string) *ChatProvider {
	if model == "" {
		model = DefaultZhipuModel
	}
	return newChatProvider("zhipu", "智谱 GLM-4V", apiKey, model, ZhipuBaseURL, false, categorizeZhipu)
}

// NewOpenAI returns the OpenAI provider. baseURL may point at any
// OpenAI-compatible gateway; empty uses the SDK default.
func NewOpenAI(apiKey, model, baseURL string) *ChatProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return newChatProvider("openai", "OpenAI "+model, apiKey, model, baseURL, true, categorizeOpenAI)
}

func newChatProvider(name, display, apiKey, model, baseURL string, dataURL bool, categorize func(int, string, string) Category) *ChatProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Client owns the retry policy.
		option.WithMaxRetries(0),
		option.WithRequestTimeout(requestTimeout),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &ChatProvider{
		name:        name,
		displayName: display,
		model:       model,
		apiKey:      apiKey,
		dataURL:     dataURL,
		categorize:  categorize,
		client:      openai.NewClient(opts...),
	}
}

func (p *ChatProvider) Name() string        { return p.name }
func (p *ChatProvider) DisplayName() string { return p.displayName }
func (p *ChatProvider) IsConfigured() bool  { return strings.TrimSpace(p.apiKey) != "" }

// Model returns the model the provider sends requests to.
func (p *ChatProvider) Model() string { return p.model }

// Classify sends the image and the moderation prompt as one user message.
func (p *ChatProvider) Classify(ctx context.Context, img Image) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(img.Data)
	url := encoded
	if p.dataURL {
		url = "data:" + img.MIMEType + ";base64," + encoded
	}

	log.Debug().
		Str("provider", p.name).
		Str("model", p.model).
		Str("image", img.Name).
		Int("image_bytes", len(img.Data)).
		Msg("Sending frame to classifier")

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}),
				openai.TextContentPart(assets.ModerationPrompt()),
			}),
		},
	})
	if err != nil {
		return "", p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: p.name, Category: CategoryOther, Err: errors.New("response contained no choices")}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" || choice.FinishReason == "sensitive" {
		return "", &ProviderError{
			Provider: p.name,
			Category: CategoryContentRejected,
			Err:      fmt.Errorf("completion stopped by content filter (%s)", choice.FinishReason),
		}
	}
	return choice.Message.Content, nil
}

func (p *ChatProvider) wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   p.name,
			Category:   p.categorize(apiErr.StatusCode, apiErr.Code, apiErr.Message),
			StatusCode: apiErr.StatusCode,
			Code:       apiErr.Code,
			Err:        err,
		}
	}
	return &ProviderError{Provider: p.name, Category: categorizeMessage(err.Error()), Err: err}
}
