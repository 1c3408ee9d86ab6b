package synthetic

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
)

func renderImage(width, height int, seed string) []byte {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{colorFromSeed(seed, 0)}, image.Point{}, draw.Src)

	accent := colorFromSeed(seed, 1)
	stripe := max(32, height/12)
	for y := 0; y < height; y += stripe * 2 {
		draw.Draw(img, image.Rect(0, y, width, min(height, y+stripe)), &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height && x+y < width; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

// renderVideo returns placeholder bytes standing in for an mp4 render.
func renderVideo(seed, prompt string) []byte {
	lines := []string{
		"Synthetic promo clip placeholder",
		"Seed: " + seed,
		"Prompt: " + strings.TrimSpace(prompt),
	}
	return []byte(strings.Join(lines, "\n"))
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = (seed + "000000")[:6]
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// AspectSize maps an aspect ratio to pixel dimensions.
func AspectSize(aspect string) (int, int) {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return 1920, 1080
	case "9:16":
		return 1080, 1920
	case "4:3":
		return 1440, 1080
	case "3:4":
		return 1080, 1440
	case "21:9":
		return 2520, 1080
	default:
		return 1024, 1024
	}
}
