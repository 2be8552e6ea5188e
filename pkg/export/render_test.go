package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestRenderDocumentProducesPDF(t *testing.T) {
	signature := pngBytes(t, 60, 20)
	exporter := NewPDFExporter()
	for _, layout := range []Layout{LayoutCompact, LayoutDetailed} {
		sheet := signatureSheet(signature)
		sheet.Subjects = append(sheet.Subjects, rows("Subject", 40, TonePending)...)
		doc, err := Compose(layout, sheet, ComposeOptions{})
		require.NoError(t, err)

		out, err := exporter.RenderDocument(doc)
		require.NoError(t, err)
		require.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	}
}

func TestRenderDocumentFallsBackOnBrokenSignature(t *testing.T) {
	doc := ComposeCompact(signatureSheet([]byte("not an image")), ComposeOptions{})
	out, err := NewPDFExporter().RenderDocument(doc)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRasterizeDetailedDocument(t *testing.T) {
	doc := ComposeDetailed(signatureSheet(pngBytes(t, 60, 20)), ComposeOptions{})
	out, err := NewRasterizer(0).Rasterize(doc)
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, DefaultRasterWidth, cfg.Width)
	require.Equal(t, 1754, cfg.Height)
}

func TestRasterizeAbortsOnBrokenSignature(t *testing.T) {
	doc := ComposeDetailed(signatureSheet([]byte("not an image")), ComposeOptions{})
	_, err := NewRasterizer(600).Rasterize(doc)
	require.True(t, errors.Is(err, ErrImageDecode))
}

func TestPlaceImage(t *testing.T) {
	exporter := NewPDFExporter()
	out, err := exporter.PlaceImage(pngBytes(t, 124, 175), PageA4)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = exporter.PlaceImage([]byte("garbage"), PageA4)
	require.True(t, errors.Is(err, ErrImageDecode))
}

func TestFitBoxKeepsAspectRatio(t *testing.T) {
	w, h := fitBox(1240, 1754, PageA4.ContentWidth(), PageA4.ContentHeight())
	require.LessOrEqual(t, w, PageA4.ContentWidth()+1e-9)
	require.LessOrEqual(t, h, PageA4.ContentHeight()+1e-9)
	require.InDelta(t, 1240.0/1754.0, w/h, 1e-9)
}

func rosterDataset() Dataset {
	return Dataset{
		Headers: []string{"Entity", "Status"},
		Rows: []map[string]string{
			{"Entity": "Math", "Status": "Approved"},
			{"Entity": "Library", "Status": "Pending"},
		},
	}
}

func TestCSVExporter(t *testing.T) {
	exporter := NewCSVExporter()
	out, err := exporter.Render(rosterDataset())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{{"Entity", "Status"}, {"Math", "Approved"}, {"Library", "Pending"}}, records)
	require.Equal(t, "csv", exporter.Extension())

	_, err = exporter.Render(Dataset{})
	require.Error(t, err)
}

func TestCSVExporterNeutralizesFormulas(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"Entity", "Remarks"},
		Rows:    []map[string]string{{"Entity": "Library", "Remarks": "=HYPERLINK(\"http://x\")"}},
	})
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Equal(t, "'=HYPERLINK(\"http://x\")", records[1][1])
	require.Equal(t, "Library", records[1][0])
}

func TestXLSXExporter(t *testing.T) {
	exporter := NewXLSXExporter()
	out, err := exporter.Render(rosterDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	got, err := f.GetRows(rosterSheet)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"Entity", "Status"}, {"Math", "Approved"}, {"Library", "Pending"}}, got)
}

func TestRosterPDF(t *testing.T) {
	out, err := NewPDFExporter().Render(rosterDataset(), "Roster")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
