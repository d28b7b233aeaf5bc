package deck

import (
	"sort"
	"strings"
)

// Palette holds the brand colors as 6-digit RGB hex without '#'.
type Palette struct {
	Background    string
	Card          string
	TextPrimary   string
	TextSecondary string
	TextMuted     string
	AccentPurple  string
	AccentYellow  string
	AccentLime    string
	AccentOrange  string
}

const DefaultBrand = "traefik"

var palettes = map[string]Palette{
	"traefik": {
		Background:    "050A22",
		Card:          "12162A",
		TextPrimary:   "FFFFFF",
		TextSecondary: "F8F8F2",
		TextMuted:     "78909C",
		AccentPurple:  "BB64F9",
		AccentYellow:  "EEFF41",
		AccentLime:    "ABE338",
		AccentOrange:  "F5AB35",
	},
}

// PaletteFor looks up a brand palette case-insensitively. An empty brand
// resolves to DefaultBrand.
func PaletteFor(brand string) (Palette, bool) {
	brand = strings.ToLower(strings.TrimSpace(brand))
	if brand == "" {
		brand = DefaultBrand
	}
	palette, ok := palettes[brand]
	return palette, ok
}

// Brands lists the known brand names in sorted order.
func Brands() []string {
	names := make([]string, 0, len(palettes))
	for name := range palettes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
