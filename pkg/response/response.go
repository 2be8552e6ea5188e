package response

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data  interface{}            `json:"data,omitempty"`
	Error *appErrors.Error       `json:"error,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response. Clearance state changes underneath clients, so nothing is cacheable.
func JSON(c *gin.Context, status int, data interface{}, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data}
	if len(meta) > 0 && len(meta[0]) > 0 {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}, meta ...map[string]interface{}) {
	JSON(c, http.StatusCreated, data, meta...)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

// Bytes sends an in-memory document. disposition is "inline" or "attachment".
func Bytes(c *gin.Context, contentType, filename, disposition string, data []byte) {
	noStore(c)
	c.Header("Content-Disposition", contentDisposition(disposition, filename))
	c.Data(http.StatusOK, contentType, data)
}

// Stream copies size bytes from r to the client. A negative size streams without Content-Length.
func Stream(c *gin.Context, contentType, filename, disposition string, size int64, r io.Reader) {
	noStore(c)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", contentDisposition(disposition, filename))
	c.DataFromReader(http.StatusOK, size, contentType, r, nil)
}

func contentDisposition(disposition, filename string) string {
	if disposition == "" {
		disposition = "attachment"
	}
	return fmt.Sprintf("%s; filename=%q", disposition, filename)
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
