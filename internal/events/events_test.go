package events

import (
	"context"
	"testing"
	"time"

	"github.com/jordanhubbard/mmgen/pkg/config"
)

func TestNew_NopWithoutURL(t *testing.T) {
	p, err := New(config.EventsConfig{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := p.(Nop); !ok {
		t.Fatalf("expected Nop publisher, got %T", p)
	}
	if err := p.Publish(context.Background(), Event{Type: TypeRunStarted}); err != nil {
		t.Errorf("Nop.Publish() error = %v", err)
	}
}

func TestNewNatsPublisher_BadURL(t *testing.T) {
	_, err := NewNatsPublisher(config.EventsConfig{
		NatsURL: "nats://nonexistent-host:99999",
		Timeout: 500 * time.Millisecond,
	})
	if err == nil {
		t.Error("expected error connecting to nonexistent NATS")
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix, eventType, want string
	}{
		{"mmgen", TypeRecordAccepted, "mmgen.events.record.accepted"},
		{"lab.atl", TypeRunFinished, "lab.atl.events.run.finished"},
	}
	for _, tc := range tests {
		if got := subject(tc.prefix, tc.eventType); got != tc.want {
			t.Errorf("subject(%q, %q) = %q, want %q", tc.prefix, tc.eventType, got, tc.want)
		}
	}
}

func TestStreamName(t *testing.T) {
	tests := map[string]string{
		"mmgen":     "MMGEN",
		"lab.atl":   "LAB_ATL",
		"run-2_emf": "RUN-2_EMF",
	}
	for in, want := range tests {
		if got := streamName(in); got != want {
			t.Errorf("streamName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	_ = r.Publish(ctx, Event{Type: TypeRunStarted})
	_ = r.Publish(ctx, Event{Type: TypeRecordAccepted, Pattern: "modify>inspect"})

	types := r.Types()
	if len(types) != 2 || types[0] != TypeRunStarted || types[1] != TypeRecordAccepted {
		t.Errorf("Types() = %v", types)
	}
	evs := r.Events()
	evs[0].Type = "mutated"
	if r.Events()[0].Type != TypeRunStarted {
		t.Error("Events() should return a copy")
	}
}
