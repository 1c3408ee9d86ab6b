package pipeline

import (
	"fmt"
	"strings"

	"promoreel/internal/domain"
	"promoreel/internal/locale"
)

const analysisSchema = `{"product_name":string,"category":string,"features":string[],"audience":string,"tone":string,"colors":string[]}`

const scriptsSchema = `{"scripts":[{"title":string,"hook":string,"narration":string,"call_to_action":string,"duration_seconds":number}]}`

const storyboardSchema = `{"shots":[{"description":string,"camera":string,"duration_seconds":number,"image_prompt":string,"video_prompt":string}]}`

func analysisInstruction(lang string) string {
	return fmt.Sprintf("You are a product marketing analyst. Study the attached product photos and describe the product. "+
		"Respond strictly with JSON matching this schema and nothing else: %s. Write text values in %s.",
		analysisSchema, locale.Name(lang))
}

func scriptsInstruction(lang string, count, seconds int) string {
	return fmt.Sprintf("You write short vertical video ads for small businesses. Write %d distinct script(s), "+
		"each about %d seconds long when narrated. Respond strictly with JSON matching this schema and nothing else: %s. "+
		"Write in %s.", count, seconds, scriptsSchema, locale.Name(lang))
}

func storyboardInstruction(lang string, seconds int) string {
	return fmt.Sprintf("You are a storyboard artist. Split the script into shots whose durations add up to %d seconds. "+
		"The first shot starts from the uploaded product photo. Respond strictly with JSON matching this schema and nothing else: %s. "+
		"Descriptions in %s; image_prompt and video_prompt in English.", seconds, storyboardSchema, locale.Name(lang))
}

func describeAnalysis(a *domain.ProductAnalysis) string {
	s := a.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n", s.ProductName)
	if s.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", s.Category)
	}
	if len(s.Features) > 0 {
		fmt.Fprintf(&b, "Features: %s\n", strings.Join(s.Features, "; "))
	}
	if s.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", s.Audience)
	}
	if s.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", s.Tone)
	}
	if len(s.Colors) > 0 {
		fmt.Fprintf(&b, "Brand colours: %s\n", strings.Join(s.Colors, ", "))
	}
	return strings.TrimSpace(b.String())
}

func describeScript(s *domain.Script) string {
	return fmt.Sprintf("Title: %s\nHook: %s\nNarration: %s\nCall to action: %s\nDuration: %ds",
		s.Title, s.Hook, s.Narration, s.CallToAction, s.DurationSeconds)
}

// imageStyles varies the composition across the images of one task.
var imageStyles = []string{
	"clean studio shot on a seamless background",
	"lifestyle scene in natural daylight",
	"flat lay with complementary props",
	"close-up detail with shallow depth of field",
	"bold graphic composition with brand colours",
}

func imagePrompt(a *domain.ProductAnalysis, lang string, position int) string {
	name := locale.Title(lang, a.Summary.ProductName)
	style := imageStyles[position%len(imageStyles)]
	lines := []string{
		fmt.Sprintf("Create a premium promotional photograph of %q.", name),
		"Composition: " + style + ".",
		describeAnalysis(a),
		"Use the uploaded product photo as the main subject. Preserve its shape, texture and logo without warping.",
		"Render with sharp focus, well-balanced lighting and clean post-processing, ready for social media.",
	}
	return strings.Join(lines, "\n")
}

func videoPrompt(shots []domain.Shot) string {
	var b strings.Builder
	for i, s := range shots {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "[Shot %d, %ds, %s] %s.", i+1, s.DurationSeconds, s.Camera, strings.TrimSuffix(s.VideoPrompt, "."))
	}
	return b.String()
}
