package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"promoreel/internal/infra"
	"promoreel/internal/poller"
	"promoreel/internal/providers"
	"promoreel/internal/providers/ark"
	"promoreel/internal/providers/genai"
	"promoreel/internal/providers/synthetic"
)

// generators is the provider set the pipeline runs on.
type generators struct {
	text  providers.TextGenerator
	image providers.ImageGenerator
	video providers.VideoGenerator
	// remotes maps every provider name a stored clip may carry to its
	// status source, including providers no longer used for new renders.
	remotes map[string]poller.StatusSource
}

// initGenerators picks real providers when their API keys are configured and
// falls back to the synthetic generator otherwise.
func initGenerators(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (generators, error) {
	fallback := synthetic.New(logger)
	g := generators{
		text:    fallback,
		image:   fallback,
		video:   fallback,
		remotes: map[string]poller.StatusSource{synthetic.ProviderName: fallback},
	}

	if cfg.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, genai.Options{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			ImageModel: cfg.GeminiImageModel,
			Timeout:    cfg.GeneratorTimeout,
			Logger:     logger,
		})
		if err != nil {
			return g, fmt.Errorf("gemini client: %w", err)
		}
		g.text, g.image = client, client
	} else {
		logger.Warn().Msg("worker: gemini api key missing, using synthetic text and image generation")
	}

	if cfg.ArkAPIKey != "" {
		client, err := ark.NewClient(ark.Options{
			APIKey:  cfg.ArkAPIKey,
			BaseURL: cfg.ArkBaseURL,
			Model:   cfg.ArkVideoModel,
			Timeout: cfg.GeneratorTimeout,
			Logger:  logger,
		})
		if err != nil {
			return g, fmt.Errorf("ark client: %w", err)
		}
		g.video = client
		g.remotes[ark.ProviderName] = client
	} else {
		logger.Warn().Msg("worker: ark api key missing, using synthetic video generation")
	}
	return g, nil
}
