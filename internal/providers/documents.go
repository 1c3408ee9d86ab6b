package providers

import (
	"fmt"

	"promoreel/internal/domain"
)

// TextKind names the JSON document a TextRequest expects back.
type TextKind string

const (
	KindAnalysis   TextKind = "analysis"
	KindScripts    TextKind = "scripts"
	KindStoryboard TextKind = "storyboard"
)

// AnalysisDoc is the reply schema for KindAnalysis.
type AnalysisDoc = domain.AnalysisSummary

// ScriptsDoc is the reply schema for KindScripts.
type ScriptsDoc struct {
	Scripts []ScriptDoc `json:"scripts"`
}

type ScriptDoc struct {
	Title           string `json:"title"`
	Hook            string `json:"hook"`
	Narration       string `json:"narration"`
	CallToAction    string `json:"call_to_action"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (d ScriptsDoc) Validate(want int) error {
	if len(d.Scripts) < want {
		return fmt.Errorf("%w: expected %d scripts, got %d", domain.ErrInvalidResponse, want, len(d.Scripts))
	}
	for i, s := range d.Scripts {
		if s.Title == "" || s.Narration == "" {
			return fmt.Errorf("%w: script %d is missing title or narration", domain.ErrInvalidResponse, i)
		}
	}
	return nil
}

// StoryboardDoc is the reply schema for KindStoryboard.
type StoryboardDoc struct {
	Shots []ShotDoc `json:"shots"`
}

type ShotDoc struct {
	Description     string `json:"description"`
	Camera          string `json:"camera"`
	DurationSeconds int    `json:"duration_seconds"`
	ImagePrompt     string `json:"image_prompt"`
	VideoPrompt     string `json:"video_prompt"`
}

func (d StoryboardDoc) Validate() error {
	if len(d.Shots) == 0 {
		return fmt.Errorf("%w: storyboard has no shots", domain.ErrInvalidResponse)
	}
	for i, s := range d.Shots {
		if s.VideoPrompt == "" {
			return fmt.Errorf("%w: shot %d is missing video_prompt", domain.ErrInvalidResponse, i)
		}
		if s.DurationSeconds <= 0 {
			return fmt.Errorf("%w: shot %d has no duration", domain.ErrInvalidResponse, i)
		}
	}
	return nil
}
