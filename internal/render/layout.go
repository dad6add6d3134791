package render

import (
	"strings"

	"golang.org/x/image/font"
)

const ellipsis = "..."

// measure returns the advance of s in face, in whole pixels.
func measure(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// wrapText splits text into lines no wider than maxWidth pixels. A single
// word wider than a line is cut and ends with an ellipsis.
func wrapText(text string, face font.Face, maxWidth int) []string {
	var (
		lines   []string
		current []string
	)
	for _, word := range strings.Fields(text) {
		if len(current) == 0 && measure(face, word) > maxWidth {
			lines = append(lines, truncateWord(word, face, maxWidth))
			continue
		}

		candidate := strings.Join(append(current, word), " ")
		if measure(face, candidate) <= maxWidth {
			current = append(current, word)
			continue
		}

		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
		}
		current = nil
		if measure(face, word) > maxWidth {
			lines = append(lines, truncateWord(word, face, maxWidth))
			continue
		}
		current = []string{word}
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	return lines
}

func truncateWord(word string, face font.Face, maxWidth int) string {
	runes := []rune(word)
	for n := len(runes) - 1; n > 0; n-- {
		s := string(runes[:n]) + ellipsis
		if measure(face, s) <= maxWidth {
			return s
		}
	}
	return ellipsis
}
