package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/providers"
	"promoreel/internal/storage"
)

// GeneratorStages implements Stages with text, image and video generators.
type GeneratorStages struct {
	text      providers.TextGenerator
	image     providers.ImageGenerator
	video     providers.VideoGenerator
	blobs     storage.BlobStore
	artifacts domain.ArtifactRepository
	logger    zerolog.Logger
	now       func() time.Time
}

type GeneratorStagesConfig struct {
	Text      providers.TextGenerator
	Image     providers.ImageGenerator
	Video     providers.VideoGenerator
	Blobs     storage.BlobStore
	Artifacts domain.ArtifactRepository
	Logger    zerolog.Logger
}

func NewGeneratorStages(cfg GeneratorStagesConfig) *GeneratorStages {
	return &GeneratorStages{
		text:      cfg.Text,
		image:     cfg.Image,
		video:     cfg.Video,
		blobs:     cfg.Blobs,
		artifacts: cfg.Artifacts,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

func (s *GeneratorStages) Analyze(ctx context.Context, task *domain.Task, sources []domain.SourceImage) (*domain.ProductAnalysis, error) {
	content := providers.Content{providers.TextPart{Text: "Analyze the product shown in these photos."}}
	for _, src := range sources {
		part, err := s.sourcePart(ctx, src, providers.RoleReference)
		if err != nil {
			return nil, err
		}
		content = append(content, part)
	}
	ref, err := s.referenceParts(ctx, task)
	if err != nil {
		return nil, err
	}
	content = append(content, ref...)

	res, err := s.text.GenerateText(ctx, providers.TextRequest{
		Kind:        providers.KindAnalysis,
		Instruction: analysisInstruction(task.Params.Language),
		Content:     content,
		Params:      providers.GenerationParams{Language: task.Params.Language},
		Seed:        task.ID,
	})
	if err != nil {
		return nil, err
	}
	var doc providers.AnalysisDoc
	if err := providers.DecodeStrict(res.Raw, &doc); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &domain.ProductAnalysis{
		TaskID:    task.ID,
		Summary:   doc,
		Provider:  res.Meta.Provider,
		Model:     res.Meta.Model,
		Usage:     res.Meta.Usage,
		CreatedAt: s.now().UTC(),
	}, nil
}

func (s *GeneratorStages) Script(ctx context.Context, task *domain.Task, analysis *domain.ProductAnalysis) ([]domain.Script, error) {
	count := max(1, task.Params.Count)
	seconds := targetSeconds(task)
	res, err := s.text.GenerateText(ctx, providers.TextRequest{
		Kind:        providers.KindScripts,
		Count:       count,
		Instruction: scriptsInstruction(task.Params.Language, count, seconds),
		Content:     providers.Content{providers.TextPart{Text: describeAnalysis(analysis)}},
		Params:      providers.GenerationParams{DurationSeconds: seconds, Language: task.Params.Language},
		Seed:        task.ID,
	})
	if err != nil {
		return nil, err
	}
	var doc providers.ScriptsDoc
	if err := providers.DecodeStrict(res.Raw, &doc); err != nil {
		return nil, err
	}
	if err := doc.Validate(count); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	scripts := make([]domain.Script, count)
	for i := range scripts {
		d := doc.Scripts[i]
		duration := d.DurationSeconds
		if duration <= 0 {
			duration = seconds
		}
		scripts[i] = domain.Script{
			TaskID:          task.ID,
			AnalysisID:      analysis.ID,
			Position:        i,
			Title:           d.Title,
			Hook:            d.Hook,
			Narration:       d.Narration,
			CallToAction:    d.CallToAction,
			DurationSeconds: duration,
			Provider:        res.Meta.Provider,
			Model:           res.Meta.Model,
			CreatedAt:       now,
		}
	}
	scripts[0].Usage = res.Meta.Usage
	return scripts, nil
}

func (s *GeneratorStages) Storyboard(ctx context.Context, task *domain.Task, analysis *domain.ProductAnalysis, script *domain.Script, sources []domain.SourceImage) ([]domain.Shot, error) {
	seconds := script.DurationSeconds
	if seconds <= 0 {
		seconds = targetSeconds(task)
	}
	res, err := s.text.GenerateText(ctx, providers.TextRequest{
		Kind:        providers.KindStoryboard,
		Instruction: storyboardInstruction(task.Params.Language, seconds),
		Content: providers.Content{
			providers.TextPart{Text: describeAnalysis(analysis)},
			providers.TextPart{Text: describeScript(script)},
		},
		Params: providers.GenerationParams{DurationSeconds: seconds, AspectRatio: task.Params.AspectRatio, Language: task.Params.Language},
		Seed:   script.ID,
	})
	if err != nil {
		return nil, err
	}
	var doc providers.StoryboardDoc
	if err := providers.DecodeStrict(res.Raw, &doc); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	shots := make([]domain.Shot, len(doc.Shots))
	for i, d := range doc.Shots {
		shots[i] = domain.Shot{
			TaskID:          task.ID,
			ScriptID:        script.ID,
			Index:           i,
			Description:     d.Description,
			Camera:          d.Camera,
			DurationSeconds: d.DurationSeconds,
			ImagePrompt:     d.ImagePrompt,
			VideoPrompt:     d.VideoPrompt,
			Provider:        res.Meta.Provider,
			Model:           res.Meta.Model,
			CreatedAt:       now,
		}
	}
	// Keyframes come from uploads: the first photo opens the storyboard and,
	// given more than one, the last photo closes it.
	if len(sources) > 0 {
		shots[0].FirstFrame = domain.UploadedRef(sources[0].ID)
	}
	if len(sources) > 1 {
		shots[len(shots)-1].LastFrame = domain.UploadedRef(sources[len(sources)-1].ID)
	}
	shots[0].Usage = res.Meta.Usage
	return shots, nil
}

// SubmitVideo starts one merged render covering every shot of the script.
func (s *GeneratorStages) SubmitVideo(ctx context.Context, task *domain.Task, script *domain.Script, shots []domain.Shot) (*domain.Clip, error) {
	if len(shots) == 0 {
		return nil, fmt.Errorf("%w: script %s has no shots", domain.ErrPrecondition, script.ID)
	}
	first := shots[0].FirstFrame
	last := shots[len(shots)-1].LastFrame

	var content providers.Content
	resolver := NewFrameResolver(s.artifacts, task.UserID)
	for _, f := range []struct {
		ref  domain.FrameRef
		role providers.FrameRole
	}{{first, providers.RoleFirstFrame}, {last, providers.RoleLastFrame}} {
		if f.ref == nil {
			continue
		}
		part, err := s.framePart(ctx, resolver, f.ref, f.role)
		if err != nil {
			return nil, err
		}
		content = append(content, part)
	}
	ref, err := s.referenceParts(ctx, task)
	if err != nil {
		return nil, err
	}
	content = append(content, ref...)

	duration := 0
	shotIDs := make([]string, len(shots))
	for i, shot := range shots {
		duration += shot.DurationSeconds
		shotIDs[i] = shot.ID
	}
	prompt := videoPrompt(shots)
	op, err := s.video.Submit(ctx, providers.VideoRequest{
		Prompt:  prompt,
		Content: content,
		Params: providers.GenerationParams{
			AspectRatio:     task.Params.AspectRatio,
			DurationSeconds: duration,
			Audio:           task.Params.Audio,
			Draft:           task.Params.Draft,
			Language:        task.Params.Language,
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("remote_id", op.RemoteID).
		Int("shots", len(shots)).
		Msg("pipeline: video render submitted")

	return &domain.Clip{
		TaskID:          task.ID,
		ScriptID:        script.ID,
		ShotIDs:         shotIDs,
		RemoteID:        op.RemoteID,
		Provider:        op.Meta.Provider,
		Model:           op.Meta.Model,
		Prompt:          prompt,
		Status:          domain.ClipStatusQueued,
		DownloadStatus:  domain.DownloadStatusPending,
		DurationSeconds: duration,
		AspectRatio:     task.Params.AspectRatio,
		FirstFrame:      first,
		LastFrame:       last,
		Usage:           op.Meta.Usage,
		CreatedAt:       s.now().UTC(),
	}, nil
}

func (s *GeneratorStages) Image(ctx context.Context, task *domain.Task, analysis *domain.ProductAnalysis, sources []domain.SourceImage, position int) (*domain.PromoImage, error) {
	var content providers.Content
	if len(sources) > 0 {
		part, err := s.sourcePart(ctx, sources[0], providers.RoleReference)
		if err != nil {
			return nil, err
		}
		content = append(content, part)
	}
	ref, err := s.referenceParts(ctx, task)
	if err != nil {
		return nil, err
	}
	content = append(content, ref...)
	prompt := imagePrompt(analysis, task.Params.Language, position)
	res, err := s.image.GenerateImage(ctx, providers.ImageRequest{
		Prompt:  prompt,
		Content: content,
		Params:  providers.GenerationParams{AspectRatio: task.Params.AspectRatio, Language: task.Params.Language},
		Seed:    fmt.Sprintf("%s/%d", task.ID, position),
	})
	if err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrInvalidResponse)
	}

	id := uuid.NewString()
	key, err := s.blobs.Write(ctx, storage.ImageKey(task.ID, id, extensionFor(res.MIME)), res.Data)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	return &domain.PromoImage{
		ID:         id,
		TaskID:     task.ID,
		Position:   position,
		StorageKey: key,
		MIME:       res.MIME,
		Width:      res.Width,
		Height:     res.Height,
		Prompt:     prompt,
		Provider:   res.Meta.Provider,
		Model:      res.Meta.Model,
		Usage:      res.Meta.Usage,
		CreatedAt:  s.now().UTC(),
	}, nil
}

func (s *GeneratorStages) sourcePart(ctx context.Context, src domain.SourceImage, role providers.FrameRole) (providers.ImagePart, error) {
	data, err := s.blobs.Read(ctx, src.StorageKey)
	if err != nil {
		return providers.ImagePart{}, fmt.Errorf("read source image %s: %w", src.ID, err)
	}
	return providers.ImagePart{Role: role, Data: data, MIME: src.MIME}, nil
}

// referenceParts resolves the task's reference media, an upload owned by the
// task's user, into a reference image part.
func (s *GeneratorStages) referenceParts(ctx context.Context, task *domain.Task) (providers.Content, error) {
	id := task.Params.ReferenceMediaID
	if id == nil || *id == "" {
		return nil, nil
	}
	part, err := s.framePart(ctx, NewFrameResolver(s.artifacts, task.UserID), domain.UploadedRef(*id), providers.RoleReference)
	if err != nil {
		return nil, fmt.Errorf("reference media: %w", err)
	}
	return providers.Content{part}, nil
}

func (s *GeneratorStages) framePart(ctx context.Context, resolver domain.FrameResolver, ref domain.FrameRef, role providers.FrameRole) (providers.ImagePart, error) {
	frame, err := resolver.ResolveFrame(ctx, ref)
	if err != nil {
		return providers.ImagePart{}, err
	}
	data, err := s.blobs.Read(ctx, frame.StorageKey)
	if err != nil {
		return providers.ImagePart{}, fmt.Errorf("read frame %s: %w", ref.ID(), err)
	}
	return providers.ImagePart{Role: role, Data: data, MIME: frame.MIME}, nil
}

func targetSeconds(task *domain.Task) int {
	if task.Params.TargetDuration != nil && *task.Params.TargetDuration > 0 {
		return *task.Params.TargetDuration
	}
	return 15
}

func extensionFor(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

var _ Stages = (*GeneratorStages)(nil)
