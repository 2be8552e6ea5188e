package export

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func rows(prefix string, n int, tone Tone) []Row {
	out := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Row{
			Name:      fmt.Sprintf("%s %02d", prefix, i+1),
			Approver:  "Approver",
			Status:    "Pending",
			Tone:      tone,
			Signature: Signature{Name: "Approver"},
		})
	}
	return out
}

func sampleSheet(subjects, departments int) Sheet {
	return Sheet{
		StudentName:   "Ana Putri",
		StudentID:     "stu-1",
		Semester:      "1st",
		SchoolYear:    "2024/2025",
		OverallStatus: "Pending",
		Subjects:      rows("Subject", subjects, TonePending),
		Departments:   rows("Department", departments, TonePending),
	}
}

func TestFitScale(t *testing.T) {
	cases := []struct {
		name      string
		content   float64
		available float64
		min       float64
		want      float64
	}{
		{"fits", 100, 138, 0.5, 1},
		{"exact", 138, 138, 0.5, 1},
		{"shrinks", 276, 138, 0.4, 0.5},
		{"floored", 1000, 138, 0.5, 0.5},
		{"invalid minimum", 276, 138, 0, 1},
		{"empty content", 0, 138, 0.5, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.want, FitScale(tc.content, tc.available, tc.min), 1e-9)
		})
	}
}

func TestComposeCompactShrinksLongSheet(t *testing.T) {
	doc := ComposeCompact(sampleSheet(30, 10), ComposeOptions{})

	require.Equal(t, PageA6, doc.Page)
	require.Greater(t, doc.ContentHeight, doc.AvailableHeight)
	require.GreaterOrEqual(t, doc.Scale, DefaultCompactMinScale)
	require.Less(t, doc.Scale, 1.0)
	require.False(t, doc.Overflows())
	require.LessOrEqual(t, doc.ContentHeight*doc.Scale, doc.AvailableHeight+1e-9)

	var rowsSeen int
	for _, block := range doc.Blocks {
		if block.Kind == BlockRow {
			rowsSeen++
		}
	}
	require.Equal(t, 40, rowsSeen)
	require.Equal(t, BlockLegend, doc.Blocks[len(doc.Blocks)-1].Kind)
}

func TestComposeCompactOverflowsBelowFloor(t *testing.T) {
	doc := ComposeCompact(sampleSheet(120, 40), ComposeOptions{})
	require.Equal(t, DefaultCompactMinScale, doc.Scale)
	require.True(t, doc.Overflows())
}

func TestComposeDetailedUsesSideBySideTables(t *testing.T) {
	sheet := sampleSheet(4, 2)
	sheet.GeneratedAt = time.Date(2024, 8, 1, 9, 30, 0, 0, time.UTC)
	doc, err := Compose(LayoutDetailed, sheet, ComposeOptions{MinScale: 0.8})
	require.NoError(t, err)

	require.Equal(t, PageA4, doc.Page)
	require.Equal(t, 0.8, doc.MinScale)
	require.Equal(t, 1.0, doc.Scale)

	var tables *Block
	var texts []string
	for i := range doc.Blocks {
		switch doc.Blocks[i].Kind {
		case BlockTables:
			tables = &doc.Blocks[i]
		case BlockText:
			texts = append(texts, doc.Blocks[i].Text)
		}
	}
	require.NotNil(t, tables)
	require.Len(t, tables.Left.Rows, 4)
	require.Len(t, tables.Right.Rows, 2)
	require.InDelta(t, doc.Metrics.SectionHeight+doc.Metrics.HeaderHeight+4*doc.Metrics.RowHeight, tables.Height, 1e-9)
	require.Contains(t, texts, "Generated: 2024-08-01 09:30")
}

func TestComposeRejectsUnknownLayout(t *testing.T) {
	_, err := Compose(Layout("poster"), sampleSheet(1, 1), ComposeOptions{})
	require.Error(t, err)

	layout, ok := ParseLayout(" Compact ")
	require.True(t, ok)
	require.Equal(t, LayoutCompact, layout)
	layout, ok = ParseLayout("")
	require.True(t, ok)
	require.Equal(t, LayoutDetailed, layout)
	_, ok = ParseLayout("poster")
	require.False(t, ok)
}
