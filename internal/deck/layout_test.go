package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPalette, _ = PaletteFor(DefaultBrand)

const fullSlide = `<!DOCTYPE html><html><body>
<h1>Cloud native routing</h1>
<p>Why edge proxies matter</p>
<div style="border-radius: 8px"><h3>Speed</h3><p>Sub-ms routing</p></div>
<div style="background: #12162A"><span style="text-transform: uppercase">Scale</span><p style="text-transform: uppercase">LABEL</p><p>Millions of requests</p></div>
<div style="border-radius: 8px"><h3>Safety</h3></div>
<div style="border-radius: 8px"><h3>Ignored fourth</h3><p>over cap</p></div>
<ul><li>First</li><li>Second</li></ul>
<ol><li>Third</li></ol>
</body></html>`

func TestLayoutSlideFullStructure(t *testing.T) {
	doc := parseDoc(t, fullSlide)
	logo := &Logo{Path: "logo.png", Width: 200, Height: 50}

	prims := LayoutSlide(doc, logo, testPalette, DefaultLayoutConfig())

	kinds := SlideLayout{Primitives: prims}.Kinds()
	assert.Equal(t, []PrimitiveKind{
		PrimitiveImage,
		PrimitiveText, PrimitiveText,
		PrimitiveShape, PrimitiveText, PrimitiveText,
		PrimitiveShape, PrimitiveText, PrimitiveText,
		PrimitiveShape, PrimitiveText,
		PrimitiveText,
	}, kinds)

	img := prims[0].(ImageBlock)
	assert.InDelta(t, 844.8, img.X, 0.001)
	assert.InDelta(t, 19.2, img.Y, 0.001)
	assert.InDelta(t, 28.8, img.H, 0.001)
	assert.InDelta(t, 115.2, img.W, 0.001)

	headline := prims[1].(TextBlock)
	assert.Equal(t, "Cloud native routing", headline.Text)
	assert.True(t, headline.Bold)
	assert.Equal(t, 32.0, headline.FontSize)
	assert.InDelta(t, 76.8, headline.Y, 0.001)
	assert.Equal(t, testPalette.TextPrimary, headline.Color)

	subtitle := prims[2].(TextBlock)
	assert.Equal(t, "Why edge proxies matter", subtitle.Text)
	assert.Equal(t, testPalette.AccentPurple, subtitle.Color)
	assert.InDelta(t, 144.0, subtitle.Y, 0.001)

	firstCard := prims[3].(ShapeBlock)
	assert.InDelta(t, 48.0, firstCard.X, 0.001)
	assert.InDelta(t, 192.0, firstCard.Y, 0.001)
	assert.InDelta(t, 288.0-19.2, firstCard.W, 0.001)
	assert.Equal(t, testPalette.Card, firstCard.Fill)
	assert.Equal(t, testPalette.AccentPurple, firstCard.StrokeColor)

	secondTitle := prims[7].(TextBlock)
	assert.Equal(t, "Scale", secondTitle.Text)
	secondBody := prims[8].(TextBlock)
	assert.Equal(t, "Millions of requests", secondBody.Text)

	thirdCard := prims[9].(ShapeBlock)
	assert.InDelta(t, 48.0+2*288.0, thirdCard.X, 0.001)

	bullets := prims[11].(TextBlock)
	assert.Equal(t, "• First\n• Second\n• Third", bullets.Text)
	assert.InDelta(t, 192.0+268.8, bullets.Y, 0.001)
}

func TestLayoutSlideSubtitleFallsBackToH2(t *testing.T) {
	doc := parseDoc(t, `<body><h2>Only secondary</h2><h2>Second h2</h2></body>`)
	prims := LayoutSlide(doc, nil, testPalette, DefaultLayoutConfig())

	require.Len(t, prims, 1)
	block := prims[0].(TextBlock)
	assert.Equal(t, "Only secondary", block.Text)
	assert.InDelta(t, 76.8, block.Y, 0.001)
}

func TestLayoutSlideEmptyFragmentYieldsEmptySlide(t *testing.T) {
	doc := parseDoc(t, `<div>nothing structured here</div>`)
	assert.Empty(t, LayoutSlide(doc, nil, testPalette, DefaultLayoutConfig()))
}

func TestLayoutSlideSkipsCardsWithoutTitleOrBody(t *testing.T) {
	doc := parseDoc(t, `<body><div style="background:#000"><span>decor</span></div><div style="border-radius:2px"><p>kept</p></div></body>`)
	prims := LayoutSlide(doc, nil, testPalette, DefaultLayoutConfig())

	require.Len(t, prims, 2)
	shape := prims[0].(ShapeBlock)
	assert.InDelta(t, 864.0-19.2, shape.W, 0.001)
	assert.Equal(t, "kept", prims[1].(TextBlock).Text)
}

func TestLayoutSlideHonoursConfiguredCaps(t *testing.T) {
	doc := parseDoc(t, fullSlide)

	oneCard := LayoutSlide(doc, nil, testPalette, LayoutConfig{MaxCards: 1, BulletBudget: 432})
	shapes := 0
	for _, p := range oneCard {
		if p.Kind() == PrimitiveShape {
			shapes++
		}
	}
	assert.Equal(t, 1, shapes)

	tight := LayoutSlide(doc, nil, testPalette, LayoutConfig{MaxCards: 3, BulletBudget: 100})
	last := tight[len(tight)-1].(TextBlock)
	assert.NotContains(t, last.Text, "•")
}

func TestLayoutSlideStyledSubtitleIsAlsoACard(t *testing.T) {
	doc := parseDoc(t, `<body><h1>Edge</h1><h2 style="border-radius:8px"><span style="text-transform:uppercase">New</span> routing</h2></body>`)
	prims := LayoutSlide(doc, nil, testPalette, DefaultLayoutConfig())

	assert.Equal(t, []PrimitiveKind{
		PrimitiveText, PrimitiveText,
		PrimitiveShape, PrimitiveText,
	}, SlideLayout{Primitives: prims}.Kinds())
	assert.Equal(t, "New routing", prims[1].(TextBlock).Text)
	assert.Equal(t, "New", prims[3].(TextBlock).Text)
	assert.InDelta(t, 192.0, prims[2].(ShapeBlock).Y, 0.001)
}
