package deck

// Canvas is 960x540 logical pixels (16:9). One pixel is 9525 EMU.
const (
	CanvasWidth  = 960.0
	CanvasHeight = 540.0
	emuPerPixel  = 9525
)

type PrimitiveKind string

const (
	PrimitiveText  PrimitiveKind = "text"
	PrimitiveShape PrimitiveKind = "shape"
	PrimitiveImage PrimitiveKind = "image"
)

// Primitive is a positioned drawable on the slide canvas.
type Primitive interface {
	Kind() PrimitiveKind
}

type TextBlock struct {
	X, Y, W, H float64
	Text       string
	FontSize   float64
	Bold       bool
	Color      string
	AnchorTop  bool
}

func (TextBlock) Kind() PrimitiveKind { return PrimitiveText }

type ShapeBlock struct {
	X, Y, W, H  float64
	Fill        string
	StrokeColor string
}

func (ShapeBlock) Kind() PrimitiveKind { return PrimitiveShape }

// ImageBlock keeps the source aspect ratio; W is derived from H.
type ImageBlock struct {
	X, Y, W, H float64
	SourcePath string
}

func (ImageBlock) Kind() PrimitiveKind { return PrimitiveImage }

// SlideLayout is the ordered primitive list for one fragment.
type SlideLayout struct {
	Source     string
	Primitives []Primitive
}

// Kinds returns the primitive kinds in draw order.
func (l SlideLayout) Kinds() []PrimitiveKind {
	kinds := make([]PrimitiveKind, 0, len(l.Primitives))
	for _, p := range l.Primitives {
		kinds = append(kinds, p.Kind())
	}
	return kinds
}

func toEMU(px float64) int64 {
	return int64(px*emuPerPixel + 0.5)
}
