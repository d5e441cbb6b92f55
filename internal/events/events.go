// Package events publishes generation progress to external listeners.
package events

import (
	"context"
	"sync"
	"time"
)

// Event types published during a run.
const (
	TypeRunStarted     = "run.started"
	TypeRecordAccepted = "record.accepted"
	TypeRecordRejected = "record.rejected"
	TypeCheckpoint     = "checkpoint.saved"
	TypeRunFinished    = "run.finished"
)

// Event is one message on the bus.
type Event struct {
	Type        string            `json:"type"`
	RunID       string            `json:"run_id"`
	Recipe      string            `json:"recipe,omitempty"`
	Pattern     string            `json:"pattern,omitempty"`
	Instruction string            `json:"instruction,omitempty"`
	Generated   int               `json:"generated"`
	Target      int               `json:"target"`
	Data        map[string]string `json:"data,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the type of each published event in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
