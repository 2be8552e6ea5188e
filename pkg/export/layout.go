package export

import (
	"fmt"
	"strings"
	"time"
)

// Layout names a document arrangement.
type Layout string

const (
	LayoutCompact  Layout = "compact"
	LayoutDetailed Layout = "detailed"
)

// ParseLayout accepts layout names case-insensitively. Empty input selects the detailed layout.
func ParseLayout(raw string) (Layout, bool) {
	switch Layout(strings.ToLower(strings.TrimSpace(raw))) {
	case LayoutCompact:
		return LayoutCompact, true
	case LayoutDetailed, "":
		return LayoutDetailed, true
	default:
		return "", false
	}
}

// Page is a fixed physical page in millimetres.
type Page struct {
	Name   string
	Width  float64
	Height float64
	Margin float64
}

// ContentWidth is the printable width.
func (p Page) ContentWidth() float64 { return p.Width - 2*p.Margin }

// ContentHeight is the printable height.
func (p Page) ContentHeight() float64 { return p.Height - 2*p.Margin }

var (
	PageA6 = Page{Name: "A6", Width: 105, Height: 148, Margin: 5}
	PageA4 = Page{Name: "A4", Width: 210, Height: 297, Margin: 12}
)

// Tone selects the legend color of a status.
type Tone int

const (
	TonePending Tone = iota
	ToneApproved
	ToneRejected
	ToneReEvaluation
)

// Signature identifies who signs a row. Image holds encoded PNG or JPEG bytes; without it
// the name is drawn in italics.
type Signature struct {
	Name  string
	Image []byte
}

// Row is one subject or department line.
type Row struct {
	Name      string
	Approver  string
	Status    string
	Tone      Tone
	Signature Signature
}

// ShowsSignature reports whether the signature cell is filled. Only approved rows are signed;
// every other row gets a blank line for manual signing.
func (r Row) ShowsSignature() bool {
	return r.Tone == ToneApproved
}

// Sheet is the content of a clearance document.
type Sheet struct {
	Title         string
	StudentName   string
	StudentID     string
	Semester      string
	SchoolYear    string
	OverallStatus string
	Subjects      []Row
	Departments   []Row
	GeneratedAt   time.Time
}

// BlockKind identifies what a block draws.
type BlockKind string

const (
	BlockTitle   BlockKind = "title"
	BlockText    BlockKind = "text"
	BlockSection BlockKind = "section"
	BlockRow     BlockKind = "row"
	BlockTables  BlockKind = "tables"
	BlockLegend  BlockKind = "legend"
)

// Table is a titled list of rows drawn inside a tables block.
type Table struct {
	Title string
	Rows  []Row
}

// Block is a measured piece of the document. Y is the offset from the top of the printable
// area before scaling.
type Block struct {
	Kind   BlockKind
	Y      float64
	Height float64
	Text   string
	Row    *Row
	Left   *Table
	Right  *Table
}

// Metrics are the type sizes (points) and row heights (millimetres) of a layout.
type Metrics struct {
	TitleSize     float64
	TextSize      float64
	RowTextSize   float64
	TitleHeight   float64
	TextHeight    float64
	SectionHeight float64
	RowHeight     float64
	HeaderHeight  float64
	LegendHeight  float64
	Gap           float64
}

var (
	compactMetrics = Metrics{
		TitleSize: 10, TextSize: 7, RowTextSize: 6.5,
		TitleHeight: 7, TextHeight: 3.6, SectionHeight: 5, RowHeight: 4.5, HeaderHeight: 4.5, LegendHeight: 6, Gap: 2,
	}
	detailedMetrics = Metrics{
		TitleSize: 16, TextSize: 10, RowTextSize: 9,
		TitleHeight: 11, TextHeight: 5.5, SectionHeight: 7, RowHeight: 8, HeaderHeight: 7, LegendHeight: 9, Gap: 4,
	}
)

// Column fractions of the row width.
var (
	compactColumns  = []float64{0.42, 0.22, 0.36}
	detailedColumns = []float64{0.30, 0.26, 0.18, 0.26}
	detailedHeaders = []string{"Name", "Approver", "Status", "Signature"}
)

// Document is a laid out sheet ready for rendering.
type Document struct {
	Layout          Layout
	Page            Page
	Metrics         Metrics
	Blocks          []Block
	ContentHeight   float64
	AvailableHeight float64
	MinScale        float64
	Scale           float64
}

// ComposeOptions tunes layout.
type ComposeOptions struct {
	// MinScale is the smallest shrink factor allowed before content overflows the page.
	MinScale float64
}

// DefaultCompactMinScale and DefaultDetailedMinScale are the legibility floors of each layout.
const (
	DefaultCompactMinScale  = 0.5
	DefaultDetailedMinScale = 0.7
)

// Compose lays out the sheet in the requested layout.
func Compose(layout Layout, sheet Sheet, opts ComposeOptions) (*Document, error) {
	switch layout {
	case LayoutCompact:
		return ComposeCompact(sheet, opts), nil
	case LayoutDetailed:
		return ComposeDetailed(sheet, opts), nil
	default:
		return nil, fmt.Errorf("unknown layout %q", layout)
	}
}

// ComposeCompact lays the sheet out as dense rows on an A6 page.
func ComposeCompact(sheet Sheet, opts ComposeOptions) *Document {
	b := newBuilder(LayoutCompact, PageA6, compactMetrics, orDefault(opts.MinScale, DefaultCompactMinScale))
	b.header(sheet)
	b.section("Subjects", sheet.Subjects)
	b.section("Departments", sheet.Departments)
	b.legend()
	return b.finish()
}

// ComposeDetailed lays the sheet out as two side-by-side tables on an A4 page.
func ComposeDetailed(sheet Sheet, opts ComposeOptions) *Document {
	b := newBuilder(LayoutDetailed, PageA4, detailedMetrics, orDefault(opts.MinScale, DefaultDetailedMinScale))
	b.header(sheet)
	rows := len(sheet.Subjects)
	if len(sheet.Departments) > rows {
		rows = len(sheet.Departments)
	}
	if rows == 0 {
		rows = 1
	}
	height := b.metrics.SectionHeight + b.metrics.HeaderHeight + float64(rows)*b.metrics.RowHeight
	b.add(Block{
		Kind:   BlockTables,
		Height: height,
		Left:   &Table{Title: "Subjects", Rows: sheet.Subjects},
		Right:  &Table{Title: "Departments", Rows: sheet.Departments},
	})
	b.gap()
	b.legend()
	return b.finish()
}

type builder struct {
	doc     *Document
	metrics Metrics
	cursor  float64
}

func newBuilder(layout Layout, page Page, metrics Metrics, minScale float64) *builder {
	return &builder{
		doc: &Document{
			Layout:          layout,
			Page:            page,
			Metrics:         metrics,
			AvailableHeight: page.ContentHeight(),
			MinScale:        minScale,
		},
		metrics: metrics,
	}
}

func (b *builder) add(block Block) {
	block.Y = b.cursor
	b.doc.Blocks = append(b.doc.Blocks, block)
	b.cursor += block.Height
}

func (b *builder) gap() {
	b.cursor += b.metrics.Gap
}

func (b *builder) header(sheet Sheet) {
	title := sheet.Title
	if title == "" {
		title = "Student Clearance"
	}
	b.add(Block{Kind: BlockTitle, Height: b.metrics.TitleHeight, Text: title})
	lines := []string{
		fmt.Sprintf("Student: %s (%s)", sheet.StudentName, sheet.StudentID),
		fmt.Sprintf("Semester: %s  School year: %s", sheet.Semester, sheet.SchoolYear),
	}
	if sheet.OverallStatus != "" {
		lines = append(lines, "Overall status: "+sheet.OverallStatus)
	}
	if !sheet.GeneratedAt.IsZero() {
		lines = append(lines, "Generated: "+sheet.GeneratedAt.Format("2006-01-02 15:04"))
	}
	for _, line := range lines {
		b.add(Block{Kind: BlockText, Height: b.metrics.TextHeight, Text: line})
	}
	b.gap()
}

func (b *builder) section(title string, rows []Row) {
	b.add(Block{Kind: BlockSection, Height: b.metrics.SectionHeight, Text: title})
	for i := range rows {
		row := rows[i]
		b.add(Block{Kind: BlockRow, Height: b.metrics.RowHeight, Row: &row})
	}
	b.gap()
}

func (b *builder) legend() {
	b.add(Block{Kind: BlockLegend, Height: b.metrics.LegendHeight})
}

func (b *builder) finish() *Document {
	b.doc.ContentHeight = b.cursor
	b.doc.Scale = FitScale(b.doc.ContentHeight, b.doc.AvailableHeight, b.doc.MinScale)
	return b.doc
}

func orDefault(value, fallback float64) float64 {
	if value <= 0 {
		return fallback
	}
	return value
}
