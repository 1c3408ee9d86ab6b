// Package ark submits and tracks asynchronous video renders on the Volcengine
// Ark content generation API.
package ark

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"

	"promoreel/internal/domain"
	"promoreel/internal/providers"
)

const (
	ProviderName   = "ark"
	DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"
	DefaultModel   = "doubao-seedance-1-0-pro-250528"
)

type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// taskAPI is the slice of Ark content generation the client relies on.
type taskAPI interface {
	createTask(ctx context.Context, req model.CreateContentGenerationTaskRequest) (string, error)
	getTask(ctx context.Context, id string) (taskState, error)
}

type taskState struct {
	Status   string
	VideoURL string
	Error    string
}

type sdkTasks struct {
	client *arkruntime.Client
}

func (s sdkTasks) createTask(ctx context.Context, req model.CreateContentGenerationTaskRequest) (string, error) {
	resp, err := s.client.CreateContentGenerationTask(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (s sdkTasks) getTask(ctx context.Context, id string) (taskState, error) {
	resp, err := s.client.GetContentGenerationTask(ctx, model.GetContentGenerationTaskRequest{ID: id})
	if err != nil {
		return taskState{}, err
	}
	state := taskState{Status: resp.Status}
	if strings.EqualFold(resp.Status, model.StatusSucceeded) {
		state.VideoURL = resp.Content.VideoURL
	}
	if e := resp.Error; e != nil {
		state.Error = e.Message
		if e.Code != "" {
			state.Error = e.Code + ": " + e.Message
		}
	}
	return state, nil
}

// Client implements providers.VideoGenerator on top of Ark content generation tasks.
type Client struct {
	api     taskAPI
	model   string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewClient(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, fmt.Errorf("ark api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return newClient(sdkTasks{client: arkruntime.NewClientWithApiKey(key, arkruntime.WithBaseUrl(baseURL))}, opts), nil
}

func newClient(api taskAPI, opts Options) *Client {
	m := opts.Model
	if m == "" {
		m = DefaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{api: api, model: m, timeout: timeout, logger: opts.Logger}
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Submit(ctx context.Context, req providers.VideoRequest) (*providers.Operation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	items := []*model.CreateContentGenerationContentItem{{
		Type: model.ContentGenerationContentItemTypeText,
		Text: volcengine.String(buildPrompt(req)),
	}}
	for _, img := range req.Content.Images() {
		url := imageURL(img)
		if url == "" {
			continue
		}
		items = append(items, &model.CreateContentGenerationContentItem{
			Type:     model.ContentGenerationContentItemTypeImage,
			ImageURL: &model.ImageURL{URL: url},
			Role:     imageRole(img.Role),
		})
	}

	remoteID, err := c.api.createTask(ctx, model.CreateContentGenerationTaskRequest{
		Model:   c.model,
		Content: items,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ark create task: %v", domain.ErrProviderFailure, err)
	}
	if remoteID == "" {
		return nil, fmt.Errorf("%w: ark returned no task id", domain.ErrInvalidResponse)
	}

	c.logger.Info().
		Str("remote_id", remoteID).
		Str("model", c.model).
		Int("images", len(items)-1).
		Msg("ark: video task created")

	return &providers.Operation{RemoteID: remoteID, Meta: providers.Meta{Provider: ProviderName, Model: c.model}}, nil
}

func (c *Client) Status(ctx context.Context, remoteID string) (*providers.OperationStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.getTask(ctx, remoteID)
	if err != nil {
		return nil, fmt.Errorf("%w: ark get task %s: %v", domain.ErrProviderFailure, remoteID, err)
	}
	status, err := mapStatus(resp.Status)
	if err != nil {
		return nil, err
	}
	out := &providers.OperationStatus{Status: status}
	if status == domain.ClipStatusSucceeded {
		out.VideoURL = resp.VideoURL
		if out.VideoURL == "" {
			return nil, fmt.Errorf("%w: ark task %s succeeded without a video url", domain.ErrInvalidResponse, remoteID)
		}
	}
	if status == domain.ClipStatusFailed {
		out.Error = resp.Error
		if out.Error == "" {
			out.Error = "remote video generation failed"
		}
	}
	return out, nil
}

// mapStatus converts Ark task states into clip states.
func mapStatus(raw string) (domain.ClipStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued":
		return domain.ClipStatusQueued, nil
	case "running":
		return domain.ClipStatusRunning, nil
	case "succeeded":
		return domain.ClipStatusSucceeded, nil
	case "failed":
		return domain.ClipStatusFailed, nil
	case "cancelled", "canceled":
		return domain.ClipStatusCancelled, nil
	case "expired":
		return domain.ClipStatusExpired, nil
	default:
		return "", fmt.Errorf("%w: unknown ark task status %q", domain.ErrInvalidResponse, raw)
	}
}

// buildPrompt appends Ark's inline generation flags to the prompt text.
func buildPrompt(req providers.VideoRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Prompt))
	if text := req.Content.Text(); text != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	p := req.Params
	if p.AspectRatio != "" {
		fmt.Fprintf(&b, " --ratio %s", p.AspectRatio)
	}
	if p.DurationSeconds > 0 {
		fmt.Fprintf(&b, " --duration %d", p.DurationSeconds)
	}
	if p.Audio {
		b.WriteString(" --generate_audio true")
	}
	if p.Draft {
		b.WriteString(" --resolution 480p")
	} else {
		b.WriteString(" --resolution 720p")
	}
	return b.String()
}

// imageRole maps frame roles onto Ark content item roles. Parts without a
// role are sent untagged.
func imageRole(role providers.FrameRole) *string {
	switch role {
	case providers.RoleFirstFrame:
		return volcengine.String("first_frame")
	case providers.RoleLastFrame:
		return volcengine.String("last_frame")
	case providers.RoleReference:
		return volcengine.String("reference_image")
	default:
		return nil
	}
}

func imageURL(img providers.ImagePart) string {
	if img.URL != "" {
		return img.URL
	}
	if len(img.Data) == 0 {
		return ""
	}
	mime := img.MIME
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

var _ providers.VideoGenerator = (*Client)(nil)
