package providers

import (
	"context"

	"promoreel/internal/domain"
)

// FrameRole tells a generator how an image part conditions the output.
type FrameRole string

const (
	RoleReference  FrameRole = "reference"
	RoleFirstFrame FrameRole = "first_frame"
	RoleLastFrame  FrameRole = "last_frame"
)

// Part is one ordered element of a generator payload.
type Part interface {
	isPart()
}

// TextPart carries prompt text.
type TextPart struct {
	Text string
}

// ImagePart carries an image either inline (Data) or by URL.
type ImagePart struct {
	Role FrameRole
	URL  string
	MIME string
	Data []byte
}

func (TextPart) isPart()  {}
func (ImagePart) isPart() {}

// Content is the ordered multimodal payload sent to a generator.
type Content []Part

// Text joins every text part with newlines.
func (c Content) Text() string {
	var out string
	for _, p := range c {
		if t, ok := p.(TextPart); ok && t.Text != "" {
			if out != "" {
				out += "\n"
			}
			out += t.Text
		}
	}
	return out
}

// Images returns the image parts in order.
func (c Content) Images() []ImagePart {
	var out []ImagePart
	for _, p := range c {
		if img, ok := p.(ImagePart); ok {
			out = append(out, img)
		}
	}
	return out
}

// GenerationParams are the output knobs shared by image and video generators.
type GenerationParams struct {
	AspectRatio     string
	DurationSeconds int
	Audio           bool
	Draft           bool
	Language        string
}

// Meta identifies which provider and model served a call.
type Meta struct {
	Provider string
	Model    string
	Usage    *domain.Usage
}

// TextRequest asks for a JSON document matching Instruction's schema.
type TextRequest struct {
	Kind        TextKind
	Count       int
	Instruction string
	Content     Content
	Params      GenerationParams
	// Seed makes synthetic output reproducible; remote providers ignore it.
	Seed string
}

type TextResult struct {
	Raw  string
	Meta Meta
}

type ImageRequest struct {
	Prompt  string
	Content Content
	Params  GenerationParams
	Seed    string
}

type ImageResult struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
	Meta   Meta
}

type VideoRequest struct {
	Prompt  string
	Content Content
	Params  GenerationParams
}

// Operation is a submitted remote video generation.
type Operation struct {
	RemoteID string
	Meta     Meta
}

// OperationStatus is the remote view of an Operation.
type OperationStatus struct {
	Status   domain.ClipStatus
	VideoURL string
	Error    string
	Usage    *domain.Usage
}

// TextGenerator produces structured JSON text.
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (*TextResult, error)
}

// ImageGenerator produces a single still image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// VideoGenerator submits asynchronous video renders and reports their state.
type VideoGenerator interface {
	Name() string
	Submit(ctx context.Context, req VideoRequest) (*Operation, error)
	Status(ctx context.Context, remoteID string) (*OperationStatus, error)
}
