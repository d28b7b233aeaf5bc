package deck

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Geometry in canvas pixels.
const (
	marginX         = 48.0
	contentWidth    = 864.0
	cursorStart     = 76.8
	headlineHeight  = 57.6
	headlineAdvance = 67.2
	subtitleHeight  = 38.4
	subtitleAdvance = 48.0

	cardGap        = 19.2
	cardHeight     = 240.0
	cardPadding    = 14.4
	cardInnerTrim  = 48.0
	cardTitleH     = 38.4
	cardBodyOffset = 57.6
	cardBodyH      = 172.8

	bulletOffset = 268.8
	bulletHeight = 144.0

	logoX      = 844.8
	logoY      = 19.2
	logoHeight = 28.8

	headlineFont  = 32
	subtitleFont  = 18
	cardTitleFont = 14
	cardBodyFont  = 12
	bulletFont    = 14

	bulletGlyph = "• "
)

// LayoutConfig carries the tunable heuristic caps.
type LayoutConfig struct {
	// MaxCards caps how many card elements become card shapes.
	MaxCards int
	// BulletBudget is the cursor position (px) past which the bullet block is dropped.
	BulletBudget float64
}

func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{MaxCards: 3, BulletBudget: 432}
}

func (c LayoutConfig) normalized() LayoutConfig {
	def := DefaultLayoutConfig()
	if c.MaxCards <= 0 {
		c.MaxCards = def.MaxCards
	}
	if c.BulletBudget <= 0 {
		c.BulletBudget = def.BulletBudget
	}
	return c
}

// Logo is a watermark image already probed for its pixel size.
type Logo struct {
	Path   string
	Width  int
	Height int
}

type card struct {
	title string
	body  string
}

// structure is what the classifier found in one fragment.
type structure struct {
	heading    *html.Node
	subheading *html.Node
	cards      []card
	bullets    []string
}

// LayoutSlide maps a parsed fragment to primitives. It is a pure function of
// its inputs.
func LayoutSlide(doc *html.Node, logo *Logo, palette Palette, cfg LayoutConfig) []Primitive {
	cfg = cfg.normalized()
	primitives := make([]Primitive, 0, 8)

	if logo != nil && logo.Height > 0 {
		primitives = append(primitives, ImageBlock{
			X:          logoX,
			Y:          logoY,
			W:          logoHeight * float64(logo.Width) / float64(logo.Height),
			H:          logoHeight,
			SourcePath: logo.Path,
		})
	}

	body := findBody(doc)
	if body == nil {
		return primitives
	}
	found := scan(body)
	cursor := cursorStart

	if found.heading != nil {
		primitives = append(primitives, TextBlock{
			X: marginX, Y: cursor, W: contentWidth, H: headlineHeight,
			Text:     textContent(found.heading),
			FontSize: headlineFont,
			Bold:     true,
			Color:    palette.TextPrimary,
		})
		cursor += headlineAdvance
	}

	if found.subheading != nil {
		primitives = append(primitives, TextBlock{
			X: marginX, Y: cursor, W: contentWidth, H: subtitleHeight,
			Text:     textContent(found.subheading),
			FontSize: subtitleFont,
			Color:    palette.AccentPurple,
		})
		cursor += subtitleAdvance
	}

	if len(found.cards) > 0 {
		cards := found.cards
		if len(cards) > cfg.MaxCards {
			cards = cards[:cfg.MaxCards]
		}
		cardWidth := contentWidth / float64(len(cards))
		for i, c := range cards {
			x := marginX + float64(i)*cardWidth
			primitives = append(primitives, ShapeBlock{
				X: x, Y: cursor, W: cardWidth - cardGap, H: cardHeight,
				Fill:        palette.Card,
				StrokeColor: palette.AccentPurple,
			})
			if c.title != "" {
				primitives = append(primitives, TextBlock{
					X: x + cardPadding, Y: cursor + cardPadding, W: cardWidth - cardInnerTrim, H: cardTitleH,
					Text:     c.title,
					FontSize: cardTitleFont,
					Bold:     true,
					Color:    palette.AccentPurple,
				})
			}
			if c.body != "" {
				primitives = append(primitives, TextBlock{
					X: x + cardPadding, Y: cursor + cardBodyOffset, W: cardWidth - cardInnerTrim, H: cardBodyH,
					Text:      c.body,
					FontSize:  cardBodyFont,
					Color:     palette.TextSecondary,
					AnchorTop: true,
				})
			}
		}
	}

	if len(found.bullets) > 0 && cursor < cfg.BulletBudget {
		lines := make([]string, 0, len(found.bullets))
		for _, item := range found.bullets {
			lines = append(lines, bulletGlyph+item)
		}
		primitives = append(primitives, TextBlock{
			X: marginX, Y: cursor + bulletOffset, W: contentWidth, H: bulletHeight,
			Text:      strings.Join(lines, "\n"),
			FontSize:  bulletFont,
			Color:     palette.TextSecondary,
			AnchorTop: true,
		})
	}

	return primitives
}

// scan walks body in document order and keeps the first heading, the
// preferred subheading, every card with a title or body, and every list item.
// One element may fill several of these slots.
func scan(body *html.Node) structure {
	var (
		found       structure
		firstH2     *html.Node
		afterH1Para *html.Node
	)

	var walk func(n *html.Node, inList bool)
	walk = func(n *html.Node, inList bool) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != html.ElementNode {
				continue
			}
			childInList := inList
			roles := ElementRoles(child)
			if roles.Has(KindHeading) && found.heading == nil {
				found.heading = child
			}
			if roles.Has(KindSubheading) {
				if child.DataAtom == atom.P {
					if afterH1Para == nil {
						afterH1Para = child
					}
				} else if firstH2 == nil {
					firstH2 = child
				}
			}
			if roles.Has(KindCard) {
				title := firstDescendant(child, cardTitleSelector)
				content := firstDescendant(child, cardBodySelector)
				if title != nil || content != nil {
					c := card{}
					if title != nil {
						c.title = textContent(title)
					}
					if content != nil {
						c.body = textContent(content)
					}
					found.cards = append(found.cards, c)
				}
			}
			if roles.Has(KindList) {
				childInList = true
			}
			if inList && child.DataAtom == atom.Li {
				found.bullets = append(found.bullets, ownText(child))
			}
			walk(child, childInList)
		}
	}
	walk(body, false)

	found.subheading = afterH1Para
	if found.subheading == nil {
		found.subheading = firstH2
	}
	return found
}
