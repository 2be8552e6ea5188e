package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// DefaultRasterWidth is the reference bitmap width in pixels (A4 at roughly 150 dpi).
const DefaultRasterWidth = 1240

const mmPerPoint = 25.4 / 72

// Rasterizer renders composed documents into PNG bitmaps.
type Rasterizer struct {
	widthPx int
}

// NewRasterizer constructs a rasterizer producing bitmaps widthPx pixels wide.
func NewRasterizer(widthPx int) *Rasterizer {
	if widthPx <= 0 {
		widthPx = DefaultRasterWidth
	}
	return &Rasterizer{widthPx: widthPx}
}

// Rasterize draws the whole page of doc, scale transform included, and encodes it as PNG.
// A signature image that cannot be decoded aborts the capture.
func (r *Rasterizer) Rasterize(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("raster requires a document")
	}
	pxPerMM := float64(r.widthPx) / doc.Page.Width
	height := int(math.Ceil(doc.Page.Height * pxPerMM))

	dc := gg.NewContext(r.widthPx, height)
	dc.SetColor(color.White)
	dc.Clear()

	scale := doc.Scale
	if scale <= 0 || scale > 1 {
		scale = 1
	}
	c := &rasterCanvas{dc: dc, unit: pxPerMM * scale, origin: doc.Page.Margin * pxPerMM}
	if err := drawDocument(doc, c, true); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	fontsOnce sync.Once
	fonts     map[string]*opentype.Font
)

func parsedFonts() map[string]*opentype.Font {
	fontsOnce.Do(func() {
		fonts = make(map[string]*opentype.Font)
		for style, data := range map[string][]byte{"": goregular.TTF, "B": gobold.TTF, "I": goitalic.TTF} {
			parsed, err := opentype.Parse(data)
			if err != nil {
				continue
			}
			fonts[style] = parsed
		}
	})
	return fonts
}

// rasterCanvas maps millimetre coordinates onto pixels. unit already includes the document scale.
type rasterCanvas struct {
	dc     *gg.Context
	unit   float64
	origin float64
	faces  map[string]font.Face
}

func (c *rasterCanvas) px(v float64) float64 { return c.origin + v*c.unit }

func (c *rasterCanvas) face(size float64, style string) font.Face {
	key := fmt.Sprintf("%s/%.2f", style, size)
	if face, ok := c.faces[key]; ok {
		return face
	}
	if c.faces == nil {
		c.faces = make(map[string]font.Face)
	}
	var face font.Face = basicfont.Face7x13
	if parsed, ok := parsedFonts()[style]; ok {
		built, err := opentype.NewFace(parsed, &opentype.FaceOptions{
			Size:    size * mmPerPoint * c.unit,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err == nil {
			face = built
		}
	}
	c.faces[key] = face
	return face
}

func (c *rasterCanvas) setColor(col RGB) {
	c.dc.SetRGB255(int(col.R), int(col.G), int(col.B))
}

func (c *rasterCanvas) Text(x, y, w, h float64, text string, size float64, style string, align string, col RGB) {
	c.dc.SetFontFace(c.face(size, style))
	c.setColor(col)
	ax, px := 0.0, c.px(x)
	switch align {
	case "C":
		ax, px = 0.5, c.px(x+w/2)
	case "R":
		ax, px = 1, c.px(x+w)
	}
	c.dc.DrawStringAnchored(text, px, c.px(y+h/2), ax, 0.35)
}

func (c *rasterCanvas) TextWidth(text string, size float64, style string) float64 {
	c.dc.SetFontFace(c.face(size, style))
	w, _ := c.dc.MeasureString(text)
	return w / c.unit
}

func (c *rasterCanvas) FillRect(x, y, w, h float64, col RGB) {
	c.setColor(col)
	c.dc.DrawRectangle(c.px(x), c.px(y), w*c.unit, h*c.unit)
	c.dc.Fill()
}

func (c *rasterCanvas) Line(x1, y1, x2, y2 float64, col RGB) {
	c.setColor(col)
	c.dc.SetLineWidth(math.Max(1, 0.15*c.unit))
	c.dc.DrawLine(c.px(x1), c.px(y1), c.px(x2), c.px(y2))
	c.dc.Stroke()
}

func (c *rasterCanvas) Image(data []byte, x, y, w, h float64) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return fmt.Errorf("%w: empty image", ErrImageDecode)
	}
	iw, ih := fitBox(float64(bounds.Dx()), float64(bounds.Dy()), w*c.unit, h*c.unit)
	left := c.px(x) + (w*c.unit-iw)/2
	top := c.px(y) + (h*c.unit-ih)/2

	c.dc.Push()
	c.dc.Translate(left, top)
	c.dc.Scale(iw/float64(bounds.Dx()), ih/float64(bounds.Dy()))
	c.dc.DrawImage(img, -bounds.Min.X, -bounds.Min.Y)
	c.dc.Pop()
	return nil
}
