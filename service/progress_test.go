package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"caselens-backend/models"
)

func event(id uuid.UUID, status models.SessionStatus, progress float64) models.ProgressEvent {
	return models.ProgressEvent{SessionID: id, Status: status, Progress: progress}
}

func drain(ch <-chan models.ProgressEvent) []models.ProgressEvent {
	var out []models.ProgressEvent
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestProgressHubDropsOldest(t *testing.T) {
	hub := NewProgressHub(3, time.Minute)
	id := uuid.New()
	for i := 1; i <= 5; i++ {
		hub.Publish(event(id, models.SessionAnalyzing, float64(i)/10))
	}

	ch, unsubscribe, err := hub.Subscribe(id)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	got := drain(ch)
	if len(got) != 3 {
		t.Fatalf("expected 3 buffered events, got %d", len(got))
	}
	if got[0].Progress != 0.3 || got[2].Progress != 0.5 {
		t.Errorf("expected the newest events to survive, got %+v", got)
	}
	if got[0].Type != models.EventProgress {
		t.Errorf("expected default event type, got %q", got[0].Type)
	}
}

func TestProgressHubSingleSubscriber(t *testing.T) {
	hub := NewProgressHub(0, 0)
	id := uuid.New()
	hub.Open(id)

	_, unsubscribe, err := hub.Subscribe(id)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, _, err := hub.Subscribe(id); !errors.Is(err, ErrAlreadySubscribed) {
		t.Errorf("expected ErrAlreadySubscribed, got %v", err)
	}
	unsubscribe()
	if _, _, err := hub.Subscribe(id); err != nil {
		t.Errorf("expected resubscription after unsubscribe, got %v", err)
	}

	if _, _, err := hub.Subscribe(uuid.New()); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("expected ErrStreamNotFound, got %v", err)
	}
}

func TestProgressHubReplaysLatestOnLateSubscription(t *testing.T) {
	hub := NewProgressHub(0, time.Minute)
	id := uuid.New()
	hub.Publish(event(id, models.SessionParsing, 0.1))

	ch, unsubscribe, err := hub.Subscribe(id)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	drain(ch)
	unsubscribe()

	hub.Publish(event(id, models.SessionCompleted, 1))
	hub.Publish(event(id, models.SessionAnalyzing, 0.5)) // after close: ignored

	ch, unsubscribe, err = hub.Subscribe(id)
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	defer unsubscribe()
	got := drain(ch)
	if len(got) != 1 || got[0].Status != models.SessionCompleted {
		t.Fatalf("expected the completed event, got %+v", got)
	}

	// A consumer that already drained the closed stream still sees the terminal event.
	unsubscribe()
	ch, unsubscribe2, err := hub.Subscribe(id)
	if err != nil {
		t.Fatalf("third subscribe: %v", err)
	}
	defer unsubscribe2()
	got = drain(ch)
	if len(got) != 1 || got[0].Status != models.SessionCompleted {
		t.Errorf("expected the terminal event to be replayed, got %+v", got)
	}
	if latest, ok := hub.Latest(id); !ok || latest.Status != models.SessionCompleted {
		t.Errorf("unexpected latest event %+v", latest)
	}
}

func TestProgressHubClosesAndReleases(t *testing.T) {
	hub := NewProgressHub(0, 20*time.Millisecond)
	id := uuid.New()
	hub.Publish(event(id, models.SessionFailed, 0.4))

	ch, unsubscribe, err := hub.Subscribe(id)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	<-ch
	if _, open := <-ch; open {
		t.Error("expected the stream to be closed after a terminal event")
	}
	unsubscribe()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := hub.Latest(id); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("expected the stream to be released after the retention period")
}
