package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
	"github.com/noah-isme/sma-clearance-api/pkg/export"
	"github.com/noah-isme/sma-clearance-api/pkg/storage"
)

type aggregateSourceStub struct {
	record *models.AggregateClearance
	err    error
}

func (s *aggregateSourceStub) FetchAggregate(context.Context, string, models.Semester) (*models.AggregateClearance, error) {
	if s.err != nil {
		return nil, s.err
	}
	clone := *s.record
	return &clone, nil
}

type signatureStub struct {
	data []byte
	err  error
}

func (s *signatureStub) LoadSignature(context.Context, string) ([]byte, error) {
	return s.data, s.err
}

type blockingRaster struct {
	started chan struct{}
	release chan struct{}
	inner   *export.Rasterizer
	once    sync.Once
}

func (r *blockingRaster) Rasterize(doc *export.Document) ([]byte, error) {
	r.once.Do(func() {
		close(r.started)
		<-r.release
	})
	return r.inner.Rasterize(doc)
}

func signaturePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 80, 24))
	for x := 4; x < 76; x++ {
		img.Set(x, 12, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func documentRecord() *models.AggregateClearance {
	record := sampleRecord()
	remarks := "missing lab notebook"
	record.SetItems([]models.ApprovalItem{
		{ID: "i-1", StudentID: "stu-1", EntityKind: models.EntitySubject, EntityID: "math", EntityName: "Mathematics", Semester: models.SemesterFirst, Status: models.ApprovalApproved},
		{ID: "i-2", StudentID: "stu-1", EntityKind: models.EntitySubject, EntityID: "science", EntityName: "Science", Semester: models.SemesterFirst, Status: models.ApprovalRequested, RejectionCount: 1, Remarks: &remarks},
		{ID: "i-3", StudentID: "stu-1", EntityKind: models.EntityDepartment, EntityID: "library", EntityName: "Library", Semester: models.SemesterFirst, Status: models.ApprovalPending},
	})
	return &record
}

func newDocumentServiceForTest(t *testing.T, signatures signatureLoader, opts ...DocumentServiceOption) (*DocumentService, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	opts = append([]DocumentServiceOption{
		WithDocumentSignatures(signatures),
		WithDocumentRenderers(nil, export.NewRasterizer(600)),
	}, opts...)
	svc := NewDocumentService(
		&aggregateSourceStub{record: documentRecord()},
		&entityStoreStub{entities: sampleEntities()},
		store,
		signer,
		DocumentConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour},
		zap.NewNop(),
		opts...,
	)
	return svc, dir
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	count := 0
	require.NoError(t, filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			count++
		}
		return err
	}))
	return count
}

func TestDocumentServiceRenderLayouts(t *testing.T) {
	svc, _ := newDocumentServiceForTest(t, &signatureStub{data: signaturePNG(t)})

	for _, layout := range []export.Layout{export.LayoutCompact, export.LayoutDetailed} {
		file, err := svc.Render(context.Background(), "stu-1", models.SemesterFirst, layout)
		require.NoError(t, err)
		require.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
		require.Equal(t, "application/pdf", file.ContentType)
		require.Contains(t, file.Filename, string(layout))
	}
}

func TestDocumentServiceRenderFallsBackWhenSignatureMissing(t *testing.T) {
	svc, _ := newDocumentServiceForTest(t, &signatureStub{err: appErrors.ErrNotFound})

	file, err := svc.Render(context.Background(), "stu-1", models.SemesterFirst, export.LayoutCompact)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
}

func TestDocumentServiceRenderPropagatesNotCreated(t *testing.T) {
	svc := NewDocumentService(&aggregateSourceStub{err: appErrors.ErrClearanceNotCreated}, nil, nil, nil, DocumentConfig{}, nil)
	_, err := svc.Render(context.Background(), "stu-9", models.SemesterFirst, export.LayoutDetailed)
	require.ErrorIs(t, err, appErrors.ErrClearanceNotCreated)
}

func TestDocumentServiceBuildSheetRows(t *testing.T) {
	svc, _ := newDocumentServiceForTest(t, &signatureStub{data: []byte("sig")})

	sheet, err := svc.buildSheet(context.Background(), documentRecord(), true)
	require.NoError(t, err)
	require.Len(t, sheet.Subjects, 2)
	require.Len(t, sheet.Departments, 1)

	math := sheet.Subjects[0]
	require.Equal(t, export.ToneApproved, math.Tone)
	require.Equal(t, "Mr. Reyes", math.Signature.Name)
	require.Equal(t, []byte("sig"), math.Signature.Image)

	science := sheet.Subjects[1]
	require.Equal(t, export.ToneReEvaluation, science.Tone)
	require.Equal(t, "Re-evaluation", science.Status)
	require.Nil(t, science.Signature.Image)

	require.Equal(t, export.TonePending, sheet.Departments[0].Tone)
	require.Equal(t, "Re-evaluation", sheet.OverallStatus)
}

func TestDocumentServiceExportStoresSignedFile(t *testing.T) {
	metrics := NewMetricsService()
	clock := func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }
	svc, _ := newDocumentServiceForTest(t, &signatureStub{data: signaturePNG(t)}, WithDocumentMetrics(metrics), WithDocumentClock(clock))

	result, err := svc.Export(context.Background(), "stu-1", models.SemesterFirst)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(result.URL, "/api/v1/exports/"))
	require.Equal(t, "clearance_stu-1_1st.pdf", result.Filename)
	require.Contains(t, result.RelativePath, "stu-1/1st/20250314_093000_")
	require.True(t, result.ExpiresAt.After(time.Now()))

	file, name, err := svc.ResolveDownload(result.Token)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	require.True(t, strings.HasSuffix(name, "clearance_stu-1_1st.pdf"))
	require.Equal(t, uint64(1), metrics.Snapshot().Exports)
}

func TestDocumentServiceExportRejectsConcurrentTrigger(t *testing.T) {
	raster := &blockingRaster{started: make(chan struct{}), release: make(chan struct{}), inner: export.NewRasterizer(400)}
	svc, _ := newDocumentServiceForTest(t, &signatureStub{data: signaturePNG(t)}, WithDocumentRenderers(nil, raster))

	done := make(chan error, 1)
	go func() {
		_, err := svc.Export(context.Background(), "stu-1", models.SemesterFirst)
		done <- err
	}()
	<-raster.started

	_, err := svc.Export(context.Background(), "stu-1", models.SemesterFirst)
	require.ErrorIs(t, err, appErrors.ErrExportInProgress)

	close(raster.release)
	require.NoError(t, <-done)

	_, err = svc.Export(context.Background(), "stu-1", models.SemesterFirst)
	require.NoError(t, err)
}

func TestDocumentServiceExportFailureReleasesGuard(t *testing.T) {
	svc, dir := newDocumentServiceForTest(t, &signatureStub{data: []byte("not a png")})

	_, err := svc.Export(context.Background(), "stu-1", models.SemesterFirst)
	require.ErrorIs(t, err, appErrors.ErrExportFailed)
	require.True(t, errors.Is(err, export.ErrImageDecode))
	require.Zero(t, countFiles(t, dir))

	_, err = svc.Export(context.Background(), "stu-1", models.SemesterFirst)
	require.ErrorIs(t, err, appErrors.ErrExportFailed)
	require.False(t, errors.Is(err, appErrors.ErrExportInProgress))
}

func TestDocumentServiceExportFailsWhenSignatureUnavailable(t *testing.T) {
	svc, dir := newDocumentServiceForTest(t, &signatureStub{err: appErrors.ErrUnavailable})

	_, err := svc.Export(context.Background(), "stu-1", models.SemesterFirst)
	require.ErrorIs(t, err, appErrors.ErrExportFailed)
	require.Zero(t, countFiles(t, dir))
}

func TestDocumentServiceRoster(t *testing.T) {
	svc, _ := newDocumentServiceForTest(t, nil)

	csvFile, err := svc.Roster(context.Background(), "stu-1", models.SemesterFirst, "")
	require.NoError(t, err)
	require.Equal(t, "text/csv", csvFile.ContentType)
	require.Contains(t, string(csvFile.Data), "Science")
	require.Contains(t, string(csvFile.Data), "missing lab notebook")

	xlsxFile, err := svc.Roster(context.Background(), "stu-1", models.SemesterFirst, "XLSX")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(xlsxFile.Filename, ".xlsx"))

	pdfFile, err := svc.Roster(context.Background(), "stu-1", models.SemesterFirst, "pdf")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(pdfFile.Data, []byte("%PDF")))

	_, err = svc.Roster(context.Background(), "stu-1", models.SemesterFirst, "docx")
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestDocumentServiceResolveDownloadRejectsBadToken(t *testing.T) {
	svc, _ := newDocumentServiceForTest(t, nil)
	_, _, err := svc.ResolveDownload("forged.token.value.sig")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
