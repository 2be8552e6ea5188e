package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
	"github.com/noah-isme/sma-clearance-api/pkg/storage"
)

// maxSignatureBytes caps signature images loaded into documents.
const maxSignatureBytes = 2 << 20

// ObjectReader opens stored objects by reference.
type ObjectReader interface {
	Get(ctx context.Context, reference string) (io.ReadCloser, storage.ObjectInfo, error)
}

// FileService serves submitted files and approver signature images from object storage.
type FileService struct {
	objects ObjectReader
	logger  *zap.Logger
}

// NewFileService constructs the service. A nil reader makes every fetch report unavailability.
func NewFileService(objects ObjectReader, logger *zap.Logger) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{objects: objects, logger: logger}
}

// FetchFile opens the file named by reference. The caller closes the reader.
func (s *FileService) FetchFile(ctx context.Context, reference string) (io.ReadCloser, storage.ObjectInfo, error) {
	if s == nil || s.objects == nil {
		return nil, storage.ObjectInfo{}, appErrors.Clone(appErrors.ErrUnavailable, "file storage not configured")
	}
	reader, info, err := s.objects.Get(ctx, reference)
	if err != nil {
		return nil, storage.ObjectInfo{}, s.translate(reference, err)
	}
	return reader, info, nil
}

// LoadSignature reads a signature image fully into memory.
func (s *FileService) LoadSignature(ctx context.Context, reference string) ([]byte, error) {
	reader, _, err := s.FetchFile(ctx, reference)
	if err != nil {
		return nil, err
	}
	defer reader.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(reader, maxSignatureBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "read signature")
	}
	if len(data) > maxSignatureBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("signature %s exceeds %d bytes", reference, maxSignatureBytes))
	}
	return data, nil
}

func (s *FileService) translate(reference string, err error) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "file not found")
	case errors.Is(err, storage.ErrInvalidPath):
		return appErrors.Clone(appErrors.ErrValidation, "invalid file reference")
	default:
		s.logger.Warn("object storage read failed", zap.String("reference", reference), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "file storage not available")
	}
}
