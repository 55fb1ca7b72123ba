// Package events defines structured event types for the reconciliation
// lifecycle.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Type represents the kind of event.
type Type string

const (
	BatchStarted      Type = "batch.started"
	DocumentUnchanged Type = "document.unchanged"
	DocumentApplying  Type = "document.applying"
	DirectiveApplied  Type = "directive.applied"
	DirectiveSkipped  Type = "directive.skipped"
	DocumentApplied   Type = "document.applied"
	DocumentFailed    Type = "document.failed"
	BatchCommitted    Type = "batch.committed"
	BatchNotCommitted Type = "batch.not_committed"
)

// Event is a structured event emitted during a batch run.
type Event struct {
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// New creates a new event with the given type and run ID.
func New(eventType Type, runID string) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
	}
}

// WithData adds data fields to the event and returns it for chaining.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// JSON returns the event serialized as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter is the interface for event consumers.
type Emitter interface {
	Emit(event *Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements Emitter by discarding the event.
func (NoopEmitter) Emit(*Event) {}

// CollectorEmitter collects events in memory for testing.
type CollectorEmitter struct {
	mu     sync.Mutex
	Events []*Event
}

// Emit appends the event to the collector.
func (c *CollectorEmitter) Emit(event *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Events = append(c.Events, event)
}

// Types returns the types of the collected events in order.
func (c *CollectorEmitter) Types() []Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Type, len(c.Events))
	for i, e := range c.Events {
		out[i] = e.Type
	}
	return out
}

// Multi fans an event out to several emitters.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event *Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
