package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
	"github.com/noah-isme/sma-clearance-api/pkg/export"
	"github.com/noah-isme/sma-clearance-api/pkg/storage"
)

type aggregateSource interface {
	FetchAggregate(ctx context.Context, studentID string, semester models.Semester) (*models.AggregateClearance, error)
}

type entityDirectory interface {
	ListVisible(ctx context.Context, semester models.Semester) ([]models.ClearanceEntity, error)
}

type signatureLoader interface {
	LoadSignature(ctx context.Context, reference string) ([]byte, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type pdfRenderer interface {
	RenderDocument(doc *export.Document) ([]byte, error)
	PlaceImage(data []byte, page export.Page) ([]byte, error)
	Render(data export.Dataset, title string) ([]byte, error)
}

type rasterRenderer interface {
	Rasterize(doc *export.Document) ([]byte, error)
}

// DocumentConfig tunes document rendering and export retention.
type DocumentConfig struct {
	APIPrefix        string
	ResultTTL        time.Duration
	CompactMinScale  float64
	DetailedMinScale float64
}

// RenderedFile is an in-memory document ready to be streamed.
type RenderedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportResult captures a stored export and its signed download link.
type ExportResult struct {
	RelativePath string
	Filename     string
	Token        string
	URL          string
	ExpiresAt    time.Time
}

// DocumentService renders clearance documents, exports rasterized copies and builds rosters.
type DocumentService struct {
	clearances aggregateSource
	entities   entityDirectory
	signatures signatureLoader
	storage    fileStorage
	signer     *storage.SignedURLSigner
	pdf        pdfRenderer
	raster     rasterRenderer
	rosters    map[string]export.RosterExporter
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        DocumentConfig
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// DocumentServiceOption configures the service.
type DocumentServiceOption func(*DocumentService)

// WithDocumentSignatures loads approver signature images.
func WithDocumentSignatures(loader signatureLoader) DocumentServiceOption {
	return func(s *DocumentService) { s.signatures = loader }
}

// WithDocumentRenderers overrides the PDF and raster renderers.
func WithDocumentRenderers(pdf pdfRenderer, raster rasterRenderer) DocumentServiceOption {
	return func(s *DocumentService) {
		if pdf != nil {
			s.pdf = pdf
		}
		if raster != nil {
			s.raster = raster
		}
	}
}

// WithDocumentMetrics records render timings and export outcomes.
func WithDocumentMetrics(metrics *MetricsService) DocumentServiceOption {
	return func(s *DocumentService) { s.metrics = metrics }
}

// WithDocumentClock overrides the time source.
func WithDocumentClock(now func() time.Time) DocumentServiceOption {
	return func(s *DocumentService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(clearances aggregateSource, entities entityDirectory, store fileStorage, signer *storage.SignedURLSigner, cfg DocumentConfig, logger *zap.Logger, opts ...DocumentServiceOption) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.CompactMinScale <= 0 {
		cfg.CompactMinScale = export.DefaultCompactMinScale
	}
	if cfg.DetailedMinScale <= 0 {
		cfg.DetailedMinScale = export.DefaultDetailedMinScale
	}
	csv := export.NewCSVExporter()
	xlsx := export.NewXLSXExporter()
	svc := &DocumentService{
		clearances: clearances,
		entities:   entities,
		storage:    store,
		signer:     signer,
		pdf:        export.NewPDFExporter(),
		raster:     export.NewRasterizer(export.DefaultRasterWidth),
		rosters: map[string]export.RosterExporter{
			csv.Extension():  csv,
			xlsx.Extension(): xlsx,
		},
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Render lays out the clearance in the requested layout and returns it as vector PDF.
// Signatures that cannot be loaded or decoded are replaced by the approver name.
func (s *DocumentService) Render(ctx context.Context, studentID string, semester models.Semester, layout export.Layout) (*RenderedFile, error) {
	record, err := s.clearances.FetchAggregate(ctx, studentID, semester)
	if err != nil {
		return nil, err
	}
	sheet, err := s.buildSheet(ctx, record, false)
	if err != nil {
		return nil, err
	}
	doc, err := export.Compose(layout, sheet, s.composeOptions(layout))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if doc.Overflows() {
		s.logger.Warn("clearance document overflows page at minimum scale",
			zap.String("student_id", studentID),
			zap.String("layout", string(layout)),
			zap.Float64("content_height", doc.ContentHeight),
			zap.Float64("available_height", doc.AvailableHeight),
		)
	}

	started := time.Now()
	data, err := s.pdf.RenderDocument(doc)
	s.metrics.ObserveRender(string(layout), time.Since(started))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render clearance document")
	}
	return &RenderedFile{
		Filename:    fmt.Sprintf("clearance_%s_%s_%s.pdf", sanitizeFilename(studentID), semester, layout),
		ContentType: "application/pdf",
		Data:        data,
	}, nil
}

// Export captures the detailed layout as a bitmap, places it on an A4 page and stores the
// result behind a signed link. Only one export per student and semester runs at a time; a
// second trigger while one is running is rejected, not queued.
func (s *DocumentService) Export(ctx context.Context, studentID string, semester models.Semester) (*ExportResult, error) {
	key := studentID + "/" + string(semester)
	if !s.acquire(key) {
		return nil, appErrors.ErrExportInProgress
	}
	defer s.release(key)

	record, err := s.clearances.FetchAggregate(ctx, studentID, semester)
	if err != nil {
		return nil, err
	}

	result, err := s.exportRecord(ctx, record)
	s.metrics.RecordExport(string(export.LayoutDetailed), err == nil)
	if err != nil {
		s.logger.Error("clearance export failed",
			zap.String("student_id", studentID),
			zap.String("semester", string(semester)),
			zap.Error(err),
		)
		return nil, appErrors.Wrap(err, appErrors.ErrExportFailed.Code, appErrors.ErrExportFailed.Status, appErrors.ErrExportFailed.Message)
	}
	s.logger.Info("clearance exported",
		zap.String("student_id", studentID),
		zap.String("semester", string(semester)),
		zap.String("path", result.RelativePath),
	)
	return result, nil
}

func (s *DocumentService) exportRecord(ctx context.Context, record *models.AggregateClearance) (*ExportResult, error) {
	sheet, err := s.buildSheet(ctx, record, true)
	if err != nil {
		return nil, err
	}
	doc := export.ComposeDetailed(sheet, s.composeOptions(export.LayoutDetailed))

	started := time.Now()
	bitmap, err := s.raster.Rasterize(doc)
	if err != nil {
		return nil, fmt.Errorf("rasterize: %w", err)
	}
	data, err := s.pdf.PlaceImage(bitmap, export.PageA4)
	if err != nil {
		return nil, fmt.Errorf("place image: %w", err)
	}
	s.metrics.ObserveRender("raster", time.Since(started))

	if s.storage == nil || s.signer == nil {
		return nil, fmt.Errorf("export storage not configured")
	}
	filename := fmt.Sprintf("clearance_%s_%s.pdf", sanitizeFilename(record.StudentID), record.Semester)
	relPath := fmt.Sprintf("%s/%s/%s_%s", sanitizeFilename(record.StudentID), record.Semester, s.now().Format("20060102_150405"), filename)
	relPath, err = s.storage.Save(relPath, data)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Sign(storage.DownloadClaims{
		ExportID:  record.ID,
		StudentID: record.StudentID,
		Semester:  string(record.Semester),
		Path:      relPath,
	})
	if err != nil {
		if delErr := s.storage.Delete(relPath); delErr != nil {
			s.logger.Warn("failed to remove unsigned export", zap.String("path", relPath), zap.Error(delErr))
		}
		return nil, err
	}
	return &ExportResult{
		RelativePath: relPath,
		Filename:     filename,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", s.apiPrefix(), token),
		ExpiresAt:    expiresAt,
	}, nil
}

// Roster renders the item list of one clearance as a table in csv, xlsx or pdf.
func (s *DocumentService) Roster(ctx context.Context, studentID string, semester models.Semester, format string) (*RenderedFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	record, err := s.clearances.FetchAggregate(ctx, studentID, semester)
	if err != nil {
		return nil, err
	}
	dataset := rosterDataset(record)
	base := fmt.Sprintf("clearance_roster_%s_%s", sanitizeFilename(studentID), semester)

	if format == "pdf" {
		title := fmt.Sprintf("Clearance %s (%s) %s semester", record.StudentName, record.StudentID, record.Semester)
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		return &RenderedFile{Filename: base + ".pdf", ContentType: "application/pdf", Data: data}, nil
	}

	exporter, ok := s.rosters[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported roster format %q", format))
	}
	data, err := exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return &RenderedFile{Filename: base + "." + exporter.Extension(), ContentType: exporter.ContentType(), Data: data}, nil
}

// ResolveDownload validates a signed token and opens the stored export.
func (s *DocumentService) ResolveDownload(token string) (*os.File, string, error) {
	if s.signer == nil || s.storage == nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnavailable, "export storage not configured")
	}
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "download link invalid or expired")
	}
	relPath := claims.Path
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file not found")
	}
	name := relPath
	if idx := strings.LastIndex(relPath, "/"); idx >= 0 {
		name = relPath[idx+1:]
	}
	return file, name, nil
}

// Cleanup removes exports older than ttl (defaults to the configured retention when ttl <= 0).
func (s *DocumentService) Cleanup(ttl time.Duration) ([]string, error) {
	if s.storage == nil {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *DocumentService) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *DocumentService) release(key string) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}

func (s *DocumentService) composeOptions(layout export.Layout) export.ComposeOptions {
	if layout == export.LayoutCompact {
		return export.ComposeOptions{MinScale: s.cfg.CompactMinScale}
	}
	return export.ComposeOptions{MinScale: s.cfg.DetailedMinScale}
}

func (s *DocumentService) apiPrefix() string {
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return prefix
}

// buildSheet maps the aggregate onto document rows. In strict mode a signature that cannot be
// loaded fails the build instead of falling back to the approver name.
func (s *DocumentService) buildSheet(ctx context.Context, record *models.AggregateClearance, strict bool) (export.Sheet, error) {
	entities := make(map[string]models.ClearanceEntity)
	if s.entities != nil {
		list, err := s.entities.ListVisible(ctx, record.Semester)
		if err != nil {
			return export.Sheet{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance entities")
		}
		for _, entity := range list {
			entities[entityKey(entity.Kind, entity.ID)] = entity
		}
	}

	sheet := export.Sheet{
		StudentName:   record.StudentName,
		StudentID:     record.StudentID,
		Semester:      string(record.Semester),
		SchoolYear:    record.SchoolYear,
		OverallStatus: string(record.Status),
		GeneratedAt:   s.now(),
	}
	for _, item := range record.SubjectItems {
		row, err := s.row(ctx, item, entities[entityKey(item.EntityKind, item.EntityID)], strict)
		if err != nil {
			return export.Sheet{}, err
		}
		sheet.Subjects = append(sheet.Subjects, row)
	}
	for _, item := range record.DepartmentItems {
		row, err := s.row(ctx, item, entities[entityKey(item.EntityKind, item.EntityID)], strict)
		if err != nil {
			return export.Sheet{}, err
		}
		sheet.Departments = append(sheet.Departments, row)
	}
	return sheet, nil
}

func (s *DocumentService) row(ctx context.Context, item models.ApprovalItem, entity models.ClearanceEntity, strict bool) (export.Row, error) {
	name := item.EntityName
	if name == "" {
		name = entity.Name
	}
	if name == "" {
		name = item.EntityID
	}
	approver := entity.ApproverName
	if approver == "" && item.ApproverRef != nil {
		approver = *item.ApproverRef
	}
	row := export.Row{
		Name:      name,
		Approver:  approver,
		Status:    statusLabel(item),
		Tone:      statusTone(item),
		Signature: export.Signature{Name: approver},
	}
	if !row.ShowsSignature() || entity.SignatureRef == nil || *entity.SignatureRef == "" || s.signatures == nil {
		return row, nil
	}
	image, err := s.signatures.LoadSignature(ctx, *entity.SignatureRef)
	if err != nil {
		if strict {
			return export.Row{}, fmt.Errorf("load signature for %s: %w", item.Key(), err)
		}
		s.logger.Warn("signature unavailable, drawing approver name",
			zap.String("entity_id", item.EntityID),
			zap.String("signature_ref", *entity.SignatureRef),
			zap.Error(err),
		)
		return row, nil
	}
	row.Signature.Image = image
	return row, nil
}

func statusTone(item models.ApprovalItem) export.Tone {
	switch {
	case item.Status == models.ApprovalApproved:
		return export.ToneApproved
	case item.Status == models.ApprovalRejected:
		return export.ToneRejected
	case item.UnderReEvaluation():
		return export.ToneReEvaluation
	default:
		return export.TonePending
	}
}

func statusLabel(item models.ApprovalItem) string {
	if item.UnderReEvaluation() {
		return string(models.ClearanceReEvaluation)
	}
	return string(item.Status)
}

func entityKey(kind models.EntityKind, id string) string {
	return string(kind) + ":" + id
}

var rosterHeaders = []string{"Kind", "Entity", "Status", "Rejections", "Requested At", "Decided At", "Remarks"}

func rosterDataset(record *models.AggregateClearance) export.Dataset {
	items := record.Items()
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		name := item.EntityName
		if name == "" {
			name = item.EntityID
		}
		remarks := ""
		if item.Remarks != nil {
			remarks = *item.Remarks
		}
		rows = append(rows, map[string]string{
			"Kind":         string(item.EntityKind),
			"Entity":       name,
			"Status":       statusLabel(item),
			"Rejections":   strconv.Itoa(item.RejectionCount),
			"Requested At": formatDocumentTime(item.RequestedAt),
			"Decided At":   formatDocumentTime(item.DecidedAt),
			"Remarks":      remarks,
		})
	}
	return export.Dataset{Headers: rosterHeaders, Rows: rows}
}

func formatDocumentTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
