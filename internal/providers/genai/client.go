package genai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/rs/zerolog"
	googlegenai "google.golang.org/genai"

	"promoreel/internal/domain"
	"promoreel/internal/providers"
)

// ProviderName identifies Gemini in artifact metadata.
const ProviderName = "gemini"

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	Model      string
	ImageModel string
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// Client generates structured text and promotional stills through the Gemini API.
type Client struct {
	models     modelsAPI
	model      string
	imageModel string
	timeout    time.Duration
	logger     zerolog.Logger
}

// modelsAPI is the subset of the SDK's Models service the client calls.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*googlegenai.Content, config *googlegenai.GenerateContentConfig) (*googlegenai.GenerateContentResponse, error)
}

// NewClient constructs a Gemini client. An API key is required; callers
// without one should use the synthetic generators instead.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("gemini api key is required")
	}
	sdk, err := googlegenai.NewClient(ctx, &googlegenai.ClientConfig{
		APIKey:  key,
		Backend: googlegenai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newClient(sdk.Models, opts), nil
}

func newClient(models modelsAPI, opts Options) *Client {
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = "gemini-2.5-flash-image"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{models: models, model: model, imageModel: imageModel, timeout: timeout, logger: opts.Logger}
}

// Model returns the configured text model identifier.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) GenerateText(ctx context.Context, req providers.TextRequest) (*providers.TextResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	config := &googlegenai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if instr := strings.TrimSpace(req.Instruction); instr != "" {
		config.SystemInstruction = googlegenai.NewContentFromText(instr, googlegenai.RoleUser)
	}
	resp, err := c.models.GenerateContent(ctx, c.model, toContents(req.Content), config)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini generate text: %v", domain.ErrProviderFailure, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: gemini returned no response", domain.ErrInvalidResponse)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: gemini returned empty text", domain.ErrInvalidResponse)
	}

	c.logger.Debug().
		Str("model", c.model).
		Str("kind", string(req.Kind)).
		Msg("genai: generated text")

	return &providers.TextResult{Raw: text, Meta: c.meta(c.model, resp)}, nil
}

func (c *Client) GenerateImage(ctx context.Context, req providers.ImageRequest) (*providers.ImageResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content := append(providers.Content{providers.TextPart{Text: buildImagePrompt(req)}}, req.Content...)
	config := &googlegenai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}}
	resp, err := c.models.GenerateContent(ctx, c.imageModel, toContents(content), config)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini generate image: %v", domain.ErrProviderFailure, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: gemini returned no response", domain.ErrInvalidResponse)
	}

	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			w, h := decodeImageDimensions(part.InlineData.Data)
			c.logger.Debug().
				Str("model", c.imageModel).
				Int("width", w).
				Int("height", h).
				Msg("genai: generated image")
			return &providers.ImageResult{
				Data:   part.InlineData.Data,
				MIME:   mime,
				Width:  w,
				Height: h,
				Meta:   c.meta(c.imageModel, resp),
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: gemini returned no image data", domain.ErrInvalidResponse)
}

func (c *Client) meta(model string, resp *googlegenai.GenerateContentResponse) providers.Meta {
	m := providers.Meta{Provider: ProviderName, Model: model}
	if u := resp.UsageMetadata; u != nil {
		m.Usage = &domain.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return m
}

func toContents(content providers.Content) []*googlegenai.Content {
	parts := make([]*googlegenai.Part, 0, len(content))
	for _, p := range content {
		switch v := p.(type) {
		case providers.TextPart:
			if strings.TrimSpace(v.Text) != "" {
				parts = append(parts, googlegenai.NewPartFromText(v.Text))
			}
		case providers.ImagePart:
			mime := firstNonEmpty(v.MIME, "image/png")
			if len(v.Data) > 0 {
				parts = append(parts, googlegenai.NewPartFromBytes(v.Data, mime))
			} else if v.URL != "" {
				parts = append(parts, googlegenai.NewPartFromURI(v.URL, mime))
			}
		}
	}
	return []*googlegenai.Content{googlegenai.NewContentFromParts(parts, googlegenai.RoleUser)}
}

func buildImagePrompt(req providers.ImageRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Prompt))
	if aspect := strings.TrimSpace(req.Params.AspectRatio); aspect != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Aspect ratio: ")
		b.WriteString(aspect)
	}
	if lang := strings.TrimSpace(req.Params.Language); lang != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Use language ")
		b.WriteString(lang)
		b.WriteString(" for any on-image typography.")
	}
	if b.Len() == 0 {
		b.WriteString("Create a marketing image")
	}
	return b.String()
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var (
	_ providers.TextGenerator  = (*Client)(nil)
	_ providers.ImageGenerator = (*Client)(nil)
)
