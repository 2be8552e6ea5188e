package export

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const pdfFont = "Helvetica"

// PDFExporter renders clearance documents and roster tables into PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType of the produced files.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension of the produced files.
func (e *PDFExporter) Extension() string { return "pdf" }

// RenderDocument draws a composed document as vector PDF, shrunk by the document scale
// around the top-left corner of the printable area. Signatures that cannot be decoded fall
// back to the approver name.
func (e *PDFExporter) RenderDocument(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("pdf requires a document")
	}
	pdf := newPage(doc.Page)
	c := &pdfCanvas{pdf: pdf, origin: doc.Page.Margin, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	scaled := doc.Scale > 0 && doc.Scale < 1
	if scaled {
		pdf.TransformBegin()
		pdf.TransformScale(doc.Scale*100, doc.Scale*100, doc.Page.Margin, doc.Page.Margin)
	}
	if err := drawDocument(doc, c, false); err != nil {
		return nil, err
	}
	if scaled {
		pdf.TransformEnd()
	}
	return output(pdf)
}

// PlaceImage puts an encoded bitmap on a single page, centered and scaled to the largest
// size that fits inside the margins while keeping its aspect ratio.
func (e *PDFExporter) PlaceImage(data []byte, page Page) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrImageDecode)
	}
	w, h := fitBox(float64(cfg.Width), float64(cfg.Height), page.ContentWidth(), page.ContentHeight())
	x := (page.Width - w) / 2
	y := (page.Height - h) / 2

	pdf := newPage(page)
	opts := gofpdf.ImageOptions{ImageType: strings.ToUpper(format), ReadDpi: false}
	pdf.RegisterImageOptionsReader("document", opts, bytes.NewReader(data))
	if pdf.Err() {
		return nil, fmt.Errorf("register page image: %w", pdf.Error())
	}
	pdf.ImageOptions("document", x, y, w, h, false, opts, 0, "")
	return output(pdf)
}

// Render creates a tabular PDF with an optional title.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if title != "" {
		pdf.SetFont(pdfFont, "B", 14)
		pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont(pdfFont, "B", 10)
	colWidth := 277.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(pdfFont, "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, tr(row[header]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return output(pdf)
}

func newPage(page Page) *gofpdf.Fpdf {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: page.Width, Ht: page.Height},
	})
	pdf.SetMargins(page.Margin, page.Margin, page.Margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	return pdf
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// fitBox scales w×h to the largest size inside maxW×maxH keeping the aspect ratio.
func fitBox(w, h, maxW, maxH float64) (float64, float64) {
	scale := maxW / w
	if maxH/h < scale {
		scale = maxH / h
	}
	return w * scale, h * scale
}

type pdfCanvas struct {
	pdf    *gofpdf.Fpdf
	origin float64
	tr     func(string) string
}

func (c *pdfCanvas) Text(x, y, w, h float64, text string, size float64, style string, align string, col RGB) {
	c.pdf.SetFont(pdfFont, style, size)
	c.pdf.SetTextColor(int(col.R), int(col.G), int(col.B))
	c.pdf.SetXY(c.origin+x, c.origin+y)
	c.pdf.CellFormat(w, h, c.tr(text), "", 0, align+"M", false, 0, "")
}

func (c *pdfCanvas) TextWidth(text string, size float64, style string) float64 {
	c.pdf.SetFont(pdfFont, style, size)
	return c.pdf.GetStringWidth(c.tr(text))
}

func (c *pdfCanvas) FillRect(x, y, w, h float64, col RGB) {
	c.pdf.SetFillColor(int(col.R), int(col.G), int(col.B))
	c.pdf.Rect(c.origin+x, c.origin+y, w, h, "F")
}

func (c *pdfCanvas) Line(x1, y1, x2, y2 float64, col RGB) {
	c.pdf.SetDrawColor(int(col.R), int(col.G), int(col.B))
	c.pdf.SetLineWidth(0.15)
	c.pdf.Line(c.origin+x1, c.origin+y1, c.origin+x2, c.origin+y2)
}

func (c *pdfCanvas) Image(data []byte, x, y, w, h float64) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return ErrImageDecode
	}
	name := fmt.Sprintf("sig-%08x", crc32.ChecksumIEEE(data))
	opts := gofpdf.ImageOptions{ImageType: strings.ToUpper(format)}
	c.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if c.pdf.Err() {
		c.pdf.ClearError()
		return ErrImageDecode
	}
	iw, ih := fitBox(float64(cfg.Width), float64(cfg.Height), w, h)
	c.pdf.ImageOptions(name, c.origin+x+(w-iw)/2, c.origin+y+(h-ih)/2, iw, ih, false, opts, 0, "")
	return nil
}
