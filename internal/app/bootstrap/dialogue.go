package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/osce-practice-platform/internal/config"
	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
	"github.com/wolfman30/osce-practice-platform/internal/llm"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

// AWSConfigLoader supplies SDK config for the Bedrock provider.
type AWSConfigLoader func(ctx context.Context) (aws.Config, error)

// BuildLLMClient wires the generative fallback from config: the primary
// provider, an optional fallback provider and the per-call timeout. It
// returns nil without error when no provider is configured; the selector
// then answers generative requests with ErrGeneratorUnavailable.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) (llm.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primary, err := buildProvider(ctx, cfg.LLMProvider, cfg, loadAWS)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		logger.Warn("no generative provider configured; unscripted utterances will fail", "provider", cfg.LLMProvider)
		return nil, nil
	}

	client := primary
	if name := cfg.LLMFallbackProvider; name != "" && name != cfg.LLMProvider {
		fallback, err := buildProvider(ctx, name, cfg, loadAWS)
		if err != nil {
			return nil, err
		}
		if fallback != nil {
			client = llm.NewFallbackClient(primary, fallback, logger)
			logger.Info("generative fallback provider enabled", "fallback", name)
		}
	}

	logger.Info("generative provider configured", "provider", cfg.LLMProvider, "timeout", cfg.LLMTimeout.String())
	return llm.WithTimeout(client, cfg.LLMTimeout), nil
}

// buildProvider returns nil, nil when the provider lacks credentials.
func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, loadAWS AWSConfigLoader) (llm.Client, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return nil, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, nil
		}
		var opts []llm.OpenAIOption
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, llm.WithOpenAIBaseURL(cfg.OpenAIBaseURL))
		}
		client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, opts...)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: openai client: %w", err)
		}
		return client, nil
	case "bedrock":
		if cfg.BedrockModelID == "" {
			return nil, nil
		}
		if loadAWS == nil {
			return nil, fmt.Errorf("bootstrap: bedrock provider needs an aws config loader")
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, nil
		}
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown llm provider %q", name)
	}
}

// BuildSelector applies the configured thresholds and generation settings,
// then extra. The model is left to each provider unless extra sets one, so a
// fallback provider never receives the primary's model id.
func BuildSelector(cfg *appconfig.Config, client llm.Client, logger *logging.Logger, extra ...dialogue.Option) *dialogue.Selector {
	tuning := dialogue.DefaultTuning()
	if cfg.ScriptMatchThreshold > 0 {
		tuning.ScriptMatchThreshold = cfg.ScriptMatchThreshold
	}
	if cfg.CanonicalMatchThreshold > 0 {
		tuning.CanonicalThreshold = cfg.CanonicalMatchThreshold
	}

	opts := []dialogue.Option{
		dialogue.WithTuning(tuning),
		dialogue.WithTemperature(float32(cfg.LLMTemperature)),
		dialogue.WithLogger(logger),
	}
	if cfg.LLMMaxTokens > 0 {
		opts = append(opts, dialogue.WithMaxTokens(int32(cfg.LLMMaxTokens)))
	}
	opts = append(opts, extra...)
	return dialogue.NewSelector(client, opts...)
}

// BuildIntentClassifier applies the configured trailing-confirm floor.
func BuildIntentClassifier(cfg *appconfig.Config) *dialogue.IntentClassifier {
	c := dialogue.NewIntentClassifier()
	if cfg.TrailingConfirmMinLength > 0 {
		c.TrailingConfirmMinLen = cfg.TrailingConfirmMinLength
	}
	return c
}
