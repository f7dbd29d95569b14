// Package coverprompt builds the text prompts and seeds sent to the image
// generation service. All functions are pure.
package coverprompt

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// NegativePrompt keeps typography out of the artwork; titles are overlaid later.
const NegativePrompt = "no text, no words, no letters, no typography, no logo, no watermark, no signature, no caption"

// AspectRatio is the portrait ratio used for book covers.
const AspectRatio = "2:3"

const (
	StyleCinematic   = "Cinematic"
	StyleIllustrated = "Illustrated"
	StyleMinimalist  = "Minimalist"
)

type template struct {
	styleHint       string
	compositionHint string
}

var templates = map[string]template{
	StyleCinematic: {
		styleHint:       "cinematic lighting, dramatic atmosphere, rich depth, high-end concept art look",
		compositionHint: "bold focal point, dynamic framing, premium publish-ready tone",
	},
	StyleIllustrated: {
		styleHint:       "illustrative painted style, intentional brush texture, vivid color storytelling",
		compositionHint: "clear subject separation, expressive shapes, editorial cover clarity",
	},
	StyleMinimalist: {
		styleHint:       "minimalist design language, restrained palette, clean geometry, negative space",
		compositionHint: "single strong visual metaphor, simplified forms, uncluttered composition",
	},
}

// Params defines the creative brief for one cover.
type Params struct {
	Description string
	Genre       string
	Mood        string
	Style       string
	Title       string
	AuthorName  string
}

// ValidStyle reports whether style has a prompt template.
func ValidStyle(style string) bool {
	_, ok := templates[style]
	return ok
}

// Wrap returns the full generation prompt for p. Unknown styles fall back to
// the Cinematic template.
func Wrap(p Params) string {
	tmpl, ok := templates[p.Style]
	if !ok {
		tmpl = templates[StyleCinematic]
	}

	parts := []string{
		"Professional book cover illustration for a modern publishing concept.",
		"Generate artwork only; final title/author text will be overlaid by UI.",
		fmt.Sprintf("Genre: %s. Mood: %s. Style: %s.", strings.TrimSpace(p.Genre), strings.TrimSpace(p.Mood), p.Style),
		tmpl.styleHint + ".",
		tmpl.compositionHint + ".",
		fmt.Sprintf("Visual brief: %s.", strings.TrimSpace(p.Description)),
	}
	if title := strings.TrimSpace(p.Title); title != "" {
		parts = append(parts, fmt.Sprintf("Reference title context: %q.", title))
	}
	if author := strings.TrimSpace(p.AuthorName); author != "" {
		parts = append(parts, fmt.Sprintf("Reference author context: %q.", author))
	}
	parts = append(parts,
		fmt.Sprintf("Negative prompt: %s.", NegativePrompt),
		"Aspect ratio: portrait 2:3.",
	)

	return strings.Join(parts, " ")
}

// DeterministicSeed hashes base into a non-negative 32-bit seed so that the
// same job inputs always produce the same variation seeds.
func DeterministicSeed(base string) int64 {
	var hash uint32 = 2166136261
	for _, unit := range utf16.Encode([]rune(base)) {
		hash ^= uint32(unit)
		hash += (hash << 1) + (hash << 4) + (hash << 7) + (hash << 8) + (hash << 24)
	}
	return int64(hash)
}

// seedStride spaces variation seeds apart; it is prime so strides never alias.
const seedStride = 7919

// VariationSeeds returns count distinct seeds starting from base.
func VariationSeeds(base int64, count int) []int64 {
	if base < 1 {
		base = 1
	}
	seeds := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		seeds = append(seeds, base+int64(i)*seedStride)
	}
	return seeds
}
