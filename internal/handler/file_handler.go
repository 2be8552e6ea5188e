package handler

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
	"github.com/noah-isme/sma-clearance-api/pkg/response"
	"github.com/noah-isme/sma-clearance-api/pkg/storage"
)

type fileFetcher interface {
	FetchFile(ctx context.Context, reference string) (io.ReadCloser, storage.ObjectInfo, error)
}

// FileHandler streams submitted files and signature images from object storage.
type FileHandler struct {
	files fileFetcher
}

// NewFileHandler constructs the handler.
func NewFileHandler(files fileFetcher) *FileHandler {
	return &FileHandler{files: files}
}

// Fetch godoc
// @Summary Fetch a stored file by reference
// @Tags Files
// @Produce octet-stream
// @Param ref path string true "File reference"
// @Success 200 {file} binary
// @Router /files/{ref} [get]
func (h *FileHandler) Fetch(c *gin.Context) {
	ref := strings.TrimPrefix(c.Param("ref"), "/")
	if ref == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file reference required"))
		return
	}
	reader, info, err := h.files.FetchFile(c.Request.Context(), ref)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close() //nolint:errcheck
	response.Stream(c, info.ContentType, path.Base(info.Key), "inline", info.Size, reader)
}
