package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"caselens-backend/models"
	"caselens-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const progressWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024 * 16,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is what a progress consumer may send
type clientMessage struct {
	Type string `json:"type"`
}

// ProgressHandler streams session progress over a websocket
type ProgressHandler struct {
	hub          *service.ProgressHub
	orchestrator *service.Orchestrator
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(hub *service.ProgressHub, orchestrator *service.Orchestrator) *ProgressHandler {
	return &ProgressHandler{hub: hub, orchestrator: orchestrator}
}

// Stream handles GET /api/sessions/:id/progress
func (h *ProgressHandler) Stream(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}

	events, unsubscribe, err := h.hub.Subscribe(id)
	switch {
	case errors.Is(err, service.ErrAlreadySubscribed):
		respondError(c, http.StatusConflict, "ALREADY_SUBSCRIBED", err.Error())
		return
	case errors.Is(err, service.ErrStreamNotFound):
		// No live stream: the session finished long ago or belongs to another instance.
		session, err := h.orchestrator.Session(c.Request.Context(), id)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		h.sendSnapshot(c, session)
		return
	case err != nil:
		respondServiceError(c, err)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Warning: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("Warning: progress stream read: %v", err)
				}
				return
			}
			var msg clientMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			if msg.Type == "ping" {
				if err := write(models.ProgressEvent{Type: models.EventPong, SessionID: id, Timestamp: time.Now()}); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case event, open := <-events:
			if !open {
				closeStream(conn, &writeMu)
				return
			}
			if err := write(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// sendSnapshot answers with the stored state of a session that has no live stream
func (h *ProgressHandler) sendSnapshot(c *gin.Context, session *models.AnalysisSession) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Warning: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	event := models.ProgressEvent{
		Type:      models.EventProgress,
		SessionID: session.ID,
		Status:    session.Status,
		Stage:     session.CurrentStage,
		Progress:  session.Progress,
		Timestamp: session.UpdatedAt,
	}
	if session.ErrorMessage != nil {
		event.Message = *session.ErrorMessage
	}
	conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
	if err := conn.WriteJSON(event); err != nil {
		return
	}
	var mu sync.Mutex
	closeStream(conn, &mu)
}

func closeStream(conn *websocket.Conn, mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
