package export

import (
	"errors"
	"strings"
)

// RGB is an 8-bit color.
type RGB struct {
	R, G, B uint8
}

var (
	colorText   = RGB{33, 33, 33}
	colorMuted  = RGB{97, 97, 97}
	colorRule   = RGB{189, 189, 189}
	colorHeader = RGB{238, 238, 238}
	colorWhite  = RGB{255, 255, 255}
)

// LegendEntry pairs a tone with its label.
type LegendEntry struct {
	Tone  Tone
	Label string
}

// Legend is the fixed status legend printed on every document.
var Legend = []LegendEntry{
	{Tone: ToneApproved, Label: "Approved"},
	{Tone: TonePending, Label: "Pending / Requested"},
	{Tone: ToneRejected, Label: "Rejected"},
	{Tone: ToneReEvaluation, Label: "Re-evaluation"},
}

// ToneColor returns the legend color of a tone.
func ToneColor(t Tone) RGB {
	switch t {
	case ToneApproved:
		return RGB{46, 125, 50}
	case ToneRejected:
		return RGB{198, 40, 40}
	case ToneReEvaluation:
		return RGB{21, 101, 192}
	default:
		return RGB{245, 166, 35}
	}
}

// ErrImageDecode is returned when a signature image cannot be decoded.
var ErrImageDecode = errors.New("signature image cannot be decoded")

// canvas is a drawing surface addressed in millimetres from the top-left corner of the
// printable area. Font sizes are in points.
type canvas interface {
	Text(x, y, w, h float64, text string, size float64, style string, align string, c RGB)
	TextWidth(text string, size float64, style string) float64
	FillRect(x, y, w, h float64, c RGB)
	Line(x1, y1, x2, y2 float64, c RGB)
	Image(data []byte, x, y, w, h float64) error
}

// drawDocument walks the blocks of doc onto c. With strictImages set, an undecodable
// signature aborts drawing; otherwise the approver name is drawn instead.
func drawDocument(doc *Document, c canvas, strictImages bool) error {
	width := doc.Page.ContentWidth()
	m := doc.Metrics
	for _, block := range doc.Blocks {
		switch block.Kind {
		case BlockTitle:
			c.Text(0, block.Y, width, block.Height, block.Text, m.TitleSize, "B", "C", colorText)
		case BlockText:
			c.Text(0, block.Y, width, block.Height, block.Text, m.TextSize, "", "L", colorMuted)
		case BlockSection:
			c.Text(0, block.Y, width, block.Height, strings.ToUpper(block.Text), m.TextSize, "B", "L", colorText)
			c.Line(0, block.Y+block.Height, width, block.Y+block.Height, colorRule)
		case BlockRow:
			if err := drawCompactRow(c, m, *block.Row, block.Y, width, strictImages); err != nil {
				return err
			}
		case BlockTables:
			half := (width - m.Gap) / 2
			if err := drawTable(c, m, block.Left, 0, block.Y, half, strictImages); err != nil {
				return err
			}
			if err := drawTable(c, m, block.Right, half+m.Gap, block.Y, half, strictImages); err != nil {
				return err
			}
		case BlockLegend:
			drawLegend(c, m, block.Y, width, block.Height)
		}
	}
	return nil
}

func drawCompactRow(c canvas, m Metrics, row Row, y, width float64, strictImages bool) error {
	x := 0.0
	widths := columnWidths(compactColumns, width)
	c.Text(x, y, widths[0], m.RowHeight, fitText(c, row.Name, widths[0]-1, m.RowTextSize, ""), m.RowTextSize, "", "L", colorText)
	x += widths[0]
	drawStatus(c, m, row, x, y, widths[1])
	x += widths[1]
	if err := drawSignature(c, m, row, x, y, widths[2], strictImages); err != nil {
		return err
	}
	c.Line(0, y+m.RowHeight, width, y+m.RowHeight, colorRule)
	return nil
}

func drawTable(c canvas, m Metrics, table *Table, x, y, width float64, strictImages bool) error {
	if table == nil {
		return nil
	}
	c.Text(x, y, width, m.SectionHeight, strings.ToUpper(table.Title), m.TextSize, "B", "L", colorText)
	y += m.SectionHeight

	widths := columnWidths(detailedColumns, width)
	c.FillRect(x, y, width, m.HeaderHeight, colorHeader)
	cx := x
	for i, header := range detailedHeaders {
		c.Text(cx+1, y, widths[i]-1, m.HeaderHeight, header, m.RowTextSize, "B", "L", colorText)
		cx += widths[i]
	}
	y += m.HeaderHeight

	for _, row := range table.Rows {
		cx = x
		c.Text(cx+1, y, widths[0]-1, m.RowHeight, fitText(c, row.Name, widths[0]-2, m.RowTextSize, ""), m.RowTextSize, "", "L", colorText)
		cx += widths[0]
		c.Text(cx+1, y, widths[1]-1, m.RowHeight, fitText(c, row.Approver, widths[1]-2, m.RowTextSize, ""), m.RowTextSize, "", "L", colorMuted)
		cx += widths[1]
		drawStatus(c, m, row, cx, y, widths[2])
		cx += widths[2]
		if err := drawSignature(c, m, row, cx, y, widths[3], strictImages); err != nil {
			return err
		}
		c.Line(x, y+m.RowHeight, x+width, y+m.RowHeight, colorRule)
		y += m.RowHeight
	}
	return nil
}

func drawStatus(c canvas, m Metrics, row Row, x, y, width float64) {
	inset := m.RowHeight * 0.15
	c.FillRect(x+inset, y+inset, width-2*inset, m.RowHeight-2*inset, ToneColor(row.Tone))
	label := fitText(c, row.Status, width-2*inset-1, m.RowTextSize*0.9, "B")
	c.Text(x+inset, y, width-2*inset, m.RowHeight, label, m.RowTextSize*0.9, "B", "C", colorWhite)
}

func drawSignature(c canvas, m Metrics, row Row, x, y, width float64, strictImages bool) error {
	inset := m.RowHeight * 0.1
	if !row.ShowsSignature() {
		c.Line(x+inset, y+m.RowHeight-inset*2, x+width-inset, y+m.RowHeight-inset*2, colorMuted)
		return nil
	}
	if len(row.Signature.Image) > 0 {
		err := c.Image(row.Signature.Image, x+inset, y+inset, width-2*inset, m.RowHeight-2*inset)
		if err == nil {
			return nil
		}
		if strictImages {
			return err
		}
	}
	name := fitText(c, row.Signature.Name, width-2*inset, m.RowTextSize, "I")
	c.Text(x+inset, y, width-2*inset, m.RowHeight, name, m.RowTextSize, "I", "C", colorText)
	return nil
}

func drawLegend(c canvas, m Metrics, y, width, height float64) {
	slot := width / float64(len(Legend))
	swatch := height * 0.4
	for i, entry := range Legend {
		x := float64(i) * slot
		c.FillRect(x, y+(height-swatch)/2, swatch, swatch, ToneColor(entry.Tone))
		label := fitText(c, entry.Label, slot-swatch-2, m.RowTextSize, "")
		c.Text(x+swatch+1, y, slot-swatch-1, height, label, m.RowTextSize, "", "L", colorMuted)
	}
}

func columnWidths(fractions []float64, width float64) []float64 {
	widths := make([]float64, len(fractions))
	for i, f := range fractions {
		widths[i] = f * width
	}
	return widths
}

// fitText truncates text so it fits the width on a single line.
func fitText(c canvas, text string, width, size float64, style string) string {
	if width <= 0 || c.TextWidth(text, size, style) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := strings.TrimRight(string(runes), " ") + "..."
		if c.TextWidth(candidate, size, style) <= width {
			return candidate
		}
	}
	return ""
}
