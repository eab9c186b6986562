package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"caselens-backend/models"
)

const (
	defaultProgressBuffer    = 16
	defaultProgressRetention = 10 * time.Minute
)

var (
	ErrAlreadySubscribed = errors.New("progress stream already has a subscriber")
	ErrStreamNotFound    = errors.New("progress stream not found")
)

// ProgressPublisher receives the orchestrator's progress events
type ProgressPublisher interface {
	Publish(event models.ProgressEvent)
}

// ProgressHub keeps one bounded event stream per session. Each stream has at most one
// subscriber; when the buffer is full the oldest event is dropped. The latest event is
// kept aside so a late subscriber always sees it, and a stream is closed after its
// terminal event and forgotten once the retention period has passed.
type ProgressHub struct {
	mu        sync.Mutex
	streams   map[uuid.UUID]*progressStream
	buffer    int
	retention time.Duration
}

type progressStream struct {
	events     chan models.ProgressEvent
	latest     *models.ProgressEvent
	closed     bool
	subscribed bool
}

// NewProgressHub creates a hub. Zero values use the defaults.
func NewProgressHub(buffer int, retention time.Duration) *ProgressHub {
	if buffer <= 0 {
		buffer = defaultProgressBuffer
	}
	if retention <= 0 {
		retention = defaultProgressRetention
	}
	return &ProgressHub{
		streams:   make(map[uuid.UUID]*progressStream),
		buffer:    buffer,
		retention: retention,
	}
}

// Open creates the stream for a session if it does not exist yet
func (h *ProgressHub) Open(sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streamLocked(sessionID)
}

func (h *ProgressHub) streamLocked(sessionID uuid.UUID) *progressStream {
	s, ok := h.streams[sessionID]
	if !ok {
		s = &progressStream{events: make(chan models.ProgressEvent, h.buffer)}
		h.streams[sessionID] = s
	}
	return s
}

// Publish implements ProgressPublisher. It never blocks.
func (h *ProgressHub) Publish(event models.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.streamLocked(event.SessionID)
	if s.closed {
		return
	}
	if event.Type == "" {
		event.Type = models.EventProgress
	}
	latest := event
	s.latest = &latest

	for {
		select {
		case s.events <- event:
		default:
			// Full: drop the oldest event and try again.
			select {
			case <-s.events:
			default:
			}
			continue
		}
		break
	}

	if event.Status.IsTerminal() {
		s.closed = true
		close(s.events)
		id, stream := event.SessionID, s
		time.AfterFunc(h.retention, func() { h.release(id, stream) })
	}
}

// Subscribe attaches the single consumer of a session's stream. The returned function
// detaches it; the stream can then be subscribed again.
func (h *ProgressHub) Subscribe(sessionID uuid.UUID) (<-chan models.ProgressEvent, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[sessionID]
	if !ok {
		return nil, nil, ErrStreamNotFound
	}
	if s.subscribed {
		return nil, nil, ErrAlreadySubscribed
	}

	// A previous consumer drained the buffer: replay the latest event.
	if len(s.events) == 0 && s.latest != nil {
		if s.closed {
			replay := make(chan models.ProgressEvent, 1)
			replay <- *s.latest
			close(replay)
			s.events = replay
		} else {
			s.events <- *s.latest
		}
	}

	s.subscribed = true
	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		s.subscribed = false
	}
	return s.events, unsubscribe, nil
}

// Latest returns the most recent event of a session, if any
func (h *ProgressHub) Latest(sessionID uuid.UUID) (models.ProgressEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[sessionID]
	if !ok || s.latest == nil {
		return models.ProgressEvent{}, false
	}
	return *s.latest, true
}

func (h *ProgressHub) release(sessionID uuid.UUID, stream *progressStream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[sessionID] == stream {
		delete(h.streams, sessionID)
	}
}
