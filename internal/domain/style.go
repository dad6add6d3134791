package domain

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Style slugs
const (
	StyleNanoBanana = "nano_banana"
	StyleMinimalist = "minimalist"
	StyleTech       = "tech"
	StyleCorporate  = "corporate"

	DefaultStyle = StyleNanoBanana
)

// Style is a visual preset applied to every slide of a carousel.
type Style struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Background  string `json:"bg_color"`
	Text        string `json:"text_color"`
	Accent      string `json:"accent_color"`
	Padding     int    `json:"padding"`
}

var styles = []Style{
	{
		Slug:        StyleNanoBanana,
		Name:        "Nano Banana",
		Description: "Bold, high-contrast yellow (#FFD600) and black (#1A1A1A), energetic and attention-grabbing",
		Background:  "#1A1A1A",
		Text:        "#FFFFFF",
		Accent:      "#FFD600",
		Padding:     80,
	},
	{
		Slug:        StyleMinimalist,
		Name:        "Minimalist",
		Description: "Clean white and light grey, modern sans-serif, elegant spacing",
		Background:  "#F5F5F5",
		Text:        "#222222",
		Accent:      "#9E9E9E",
		Padding:     96,
	},
	{
		Slug:        StyleTech,
		Name:        "Tech",
		Description: "Dark blue (#0A1628) with cyan (#00E5FF) accents, futuristic vibe",
		Background:  "#0A1628",
		Text:        "#E6F7FF",
		Accent:      "#00E5FF",
		Padding:     80,
	},
	{
		Slug:        StyleCorporate,
		Name:        "Corporate",
		Description: "Navy blue (#1B2A4A) with white text, professional and trustworthy",
		Background:  "#1B2A4A",
		Text:        "#FFFFFF",
		Accent:      "#4A90E2",
		Padding:     88,
	},
}

// Styles returns all registered styles in display order.
func Styles() []Style {
	out := make([]Style, len(styles))
	copy(out, styles)
	return out
}

// LookupStyle returns the style registered under slug.
func LookupStyle(slug string) (Style, bool) {
	for _, s := range styles {
		if s.Slug == slug {
			return s, true
		}
	}
	return Style{}, false
}

// BackgroundColor returns the parsed background color.
func (s Style) BackgroundColor() color.RGBA { return mustParseHex(s.Background) }

// TextColor returns the parsed text color.
func (s Style) TextColor() color.RGBA { return mustParseHex(s.Text) }

// AccentColor returns the parsed accent color.
func (s Style) AccentColor() color.RGBA { return mustParseHex(s.Accent) }

// ParseHexColor parses a #RRGGBB color.
func ParseHexColor(hex string) (color.RGBA, error) {
	h := strings.TrimPrefix(hex, "#")
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("%w: color %q", ErrValidation, hex)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: color %q: %v", ErrValidation, hex, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// mustParseHex is only used with registry literals.
func mustParseHex(hex string) color.RGBA {
	c, err := ParseHexColor(hex)
	if err != nil {
		return color.RGBA{A: 0xff}
	}
	return c
}
