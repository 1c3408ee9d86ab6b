// Package synthetic provides deterministic offline generators used when no
// provider API keys are configured and in tests.
package synthetic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/locale"
	"promoreel/internal/providers"
)

const (
	ProviderName = "synthetic"
	textModel    = "synthetic-text-1"
	imageModel   = "synthetic-image-1"
	videoModel   = "synthetic-video-1"
)

// Generator implements the text, image and video generator contracts.
type Generator struct {
	logger zerolog.Logger

	mu    sync.Mutex
	polls map[string]int
}

func New(logger zerolog.Logger) *Generator {
	return &Generator{logger: logger, polls: map[string]int{}}
}

func (g *Generator) Name() string { return ProviderName }

func (g *Generator) GenerateText(ctx context.Context, req providers.TextRequest) (*providers.TextResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := deterministicSeed(req.Seed, req.Kind, req.Content.Text())
	var doc any
	switch req.Kind {
	case providers.KindAnalysis:
		doc = syntheticAnalysis(req, seed)
	case providers.KindScripts:
		doc = syntheticScripts(req)
	case providers.KindStoryboard:
		doc = syntheticStoryboard(req)
	default:
		return nil, fmt.Errorf("synthetic: unsupported text kind %q", req.Kind)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	g.logger.Debug().Str("kind", string(req.Kind)).Str("seed", seed).Msg("synthetic: generated text")
	return &providers.TextResult{Raw: string(raw), Meta: meta(textModel, len(raw))}, nil
}

func (g *Generator) GenerateImage(ctx context.Context, req providers.ImageRequest) (*providers.ImageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	width, height := AspectSize(req.Params.AspectRatio)
	seed := deterministicSeed(req.Seed, req.Prompt)
	data := renderImage(width, height, seed)
	if data == nil {
		return nil, fmt.Errorf("%w: synthetic image encode failed", domain.ErrProviderFailure)
	}
	g.logger.Debug().Str("seed", seed).Int("width", width).Int("height", height).Msg("synthetic: generated image")
	return &providers.ImageResult{
		Data:   data,
		MIME:   "image/png",
		Width:  width,
		Height: height,
		Meta:   meta(imageModel, 0),
	}, nil
}

// Submit registers a render that reports running once before succeeding.
func (g *Generator) Submit(ctx context.Context, req providers.VideoRequest) (*providers.Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := "synthetic-" + deterministicSeed(req.Prompt, req.Params.AspectRatio, req.Params.DurationSeconds)
	g.mu.Lock()
	g.polls[id] = 0
	g.mu.Unlock()
	return &providers.Operation{RemoteID: id, Meta: meta(videoModel, 0)}, nil
}

func (g *Generator) Status(ctx context.Context, remoteID string) (*providers.OperationStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	polls, known := g.polls[remoteID]
	g.polls[remoteID] = polls + 1
	g.mu.Unlock()

	if known && polls == 0 {
		return &providers.OperationStatus{Status: domain.ClipStatusRunning}, nil
	}
	data := renderVideo(remoteID, "")
	return &providers.OperationStatus{
		Status:   domain.ClipStatusSucceeded,
		VideoURL: "data:video/mp4;base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

func meta(model string, completion int) providers.Meta {
	m := providers.Meta{Provider: ProviderName, Model: model}
	if completion > 0 {
		m.Usage = &domain.Usage{PromptTokens: 0, CompletionTokens: completion / 4, TotalTokens: completion / 4}
	}
	return m
}

func syntheticAnalysis(req providers.TextRequest, seed string) providers.AnalysisDoc {
	name := "Product " + strings.ToUpper(seed[:4])
	return providers.AnalysisDoc{
		ProductName: locale.Title(req.Params.Language, name),
		Category:    "general",
		Features:    []string{"handcrafted quality", "everyday value", "fresh look"},
		Audience:    "local shoppers",
		Tone:        "warm",
		Colors:      []string{"#" + seed[:6], "#" + seed[6:12]},
	}
}

func syntheticScripts(req providers.TextRequest) providers.ScriptsDoc {
	count := max(1, req.Count)
	duration := req.Params.DurationSeconds
	if duration <= 0 {
		duration = 15
	}
	doc := providers.ScriptsDoc{Scripts: make([]providers.ScriptDoc, count)}
	for i := range doc.Scripts {
		doc.Scripts[i] = providers.ScriptDoc{
			Title:           fmt.Sprintf("Variant %d", i+1),
			Hook:            "Meet your new favourite.",
			Narration:       "A quick look at what makes this product stand out.",
			CallToAction:    "Order today.",
			DurationSeconds: duration,
		}
	}
	return doc
}

func syntheticStoryboard(req providers.TextRequest) providers.StoryboardDoc {
	total := req.Params.DurationSeconds
	if total <= 0 {
		total = 15
	}
	shots := 3
	if total < 9 {
		shots = 1
	}
	doc := providers.StoryboardDoc{Shots: make([]providers.ShotDoc, shots)}
	remaining := total
	for i := range doc.Shots {
		d := total / shots
		if i == shots-1 {
			d = remaining
		}
		remaining -= d
		doc.Shots[i] = providers.ShotDoc{
			Description:     fmt.Sprintf("Shot %d of the product", i+1),
			Camera:          "slow push-in",
			DurationSeconds: d,
			ImagePrompt:     "clean studio product photo",
			VideoPrompt:     "the product rotates gently under soft light",
		}
	}
	return doc
}

var (
	_ providers.TextGenerator  = (*Generator)(nil)
	_ providers.ImageGenerator = (*Generator)(nil)
	_ providers.VideoGenerator = (*Generator)(nil)
)
