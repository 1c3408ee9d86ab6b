// Package pipeline runs tasks through their generation stages.
package pipeline

import (
	"context"

	"promoreel/internal/domain"
)

// Stages produces the artifacts of each pipeline step. Implementations call
// generators and build artifacts; the orchestrator persists them. Image
// stages store their blob before returning.
type Stages interface {
	Analyze(ctx context.Context, task *domain.Task, sources []domain.SourceImage) (*domain.ProductAnalysis, error)
	Script(ctx context.Context, task *domain.Task, analysis *domain.ProductAnalysis) ([]domain.Script, error)
	Storyboard(ctx context.Context, task *domain.Task, analysis *domain.ProductAnalysis, script *domain.Script, sources []domain.SourceImage) ([]domain.Shot, error)
	SubmitVideo(ctx context.Context, task *domain.Task, script *domain.Script, shots []domain.Shot) (*domain.Clip, error)
	Image(ctx context.Context, task *domain.Task, analysis *domain.ProductAnalysis, sources []domain.SourceImage, position int) (*domain.PromoImage, error)
}
