package handler

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-clearance-api/internal/middleware"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	"github.com/noah-isme/sma-clearance-api/pkg/events"
	"github.com/noah-isme/sma-clearance-api/pkg/response"
)

const streamWriteTimeout = 5 * time.Second

type eventSource interface {
	Subscribe(buffer int) *events.Subscription
	Unsubscribe(sub *events.Subscription)
}

// EventsHandler streams status-changed notifications over a websocket.
type EventsHandler struct {
	hub     eventSource
	origins []string
	logger  *zap.Logger
}

// NewEventsHandler constructs the handler. origins are host patterns accepted for
// cross-origin upgrades; empty means same origin only.
func NewEventsHandler(hub eventSource, origins []string, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{hub: hub, origins: origins, logger: logger}
}

// Stream godoc
// @Summary Status change notifications
// @Description Without path parameters every clearance is streamed; with them only one.
// @Tags Clearance
// @Success 101
// @Router /clearances/events [get]
// @Router /clearances/{studentId}/{semester}/events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	studentID := c.Param(middleware.SelfParam)
	var semester models.Semester
	if studentID != "" {
		parsed, err := semesterParam(c)
		if err != nil {
			response.Error(c, err)
			return
		}
		semester = parsed
	}

	opts := &websocket.AcceptOptions{}
	if len(h.origins) > 0 {
		opts.OriginPatterns = h.origins
	}
	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		h.logger.Debug("websocket upgrade rejected", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub := h.hub.Subscribe(32)
	defer h.hub.Unsubscribe(sub)

	_ = wsjson.Write(ctx, conn, events.StatusChanged{
		Type:       "ready",
		StudentID:  studentID,
		Semester:   string(semester),
		EntityIDs:  []string{},
		OccurredAt: time.Now().UTC(),
	})

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub.Events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			if studentID != "" && (evt.StudentID != studentID || evt.Semester != string(semester)) {
				continue
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				h.logger.Debug("websocket write failed", zap.String("student_id", studentID), zap.Error(err))
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}
