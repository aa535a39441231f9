package report

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"diligencego/internal/config"
)

// NewChatModel builds the chat model named by cfg.Provider. Empty fields in
// cfg fall back to the provider entry in providers.
func NewChatModel(ctx context.Context, cfg config.ReportConfig, providers map[string]config.ProviderConfig) (model.BaseChatModel, error) {
	provCfg := providers[cfg.Provider]
	modelName := firstNonEmpty(cfg.Model, provCfg.Model)
	apiKey := firstNonEmpty(cfg.APIKey, provCfg.APIKey)
	baseURL := firstNonEmpty(cfg.BaseURL, provCfg.BaseURL)
	if apiKey == "" {
		return nil, fmt.Errorf("api key for provider %s not configured", cfg.Provider)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 3000
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch cfg.Provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: baseURL,
			Model:   modelName,
			APIKey:  apiKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: apiKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if baseURL != "" {
			baseURLPtr = &baseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", cfg.Provider, err)
	}
	return chatModel, nil
}

// acceptsFileParts reports whether the provider's adapter takes file_url
// parts. The openai and claude adapters only take text and images.
func acceptsFileParts(provider string) bool {
	return provider == "gemini"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
