// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package job

import (
	"context"
	"sync"
)

// EventType discriminates stream events.
type EventType string

const (
	EventStep   EventType = "step"
	EventLog    EventType = "log"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Event is one NDJSON stream record. Result events carry the Result fields
// inline plus the declared artifact names.
type Event struct {
	Type    EventType `json:"type"`
	Step    Stage     `json:"step,omitempty"`
	Message string    `json:"message,omitempty"`
	Detail  string    `json:"detail,omitempty"`

	*Result
	Artifacts []string `json:"artifacts,omitempty"`
}

// Terminal reports whether e ends a stream.
func (e Event) Terminal() bool {
	return e.Type == EventResult || e.Type == EventError
}

// topic is the event log of one job. notify is closed and replaced on
// every publish so waiting subscribers wake without blocking the publisher.
type topic struct {
	events []Event
	closed bool
	notify chan struct{}
}

// Broker fans job events out to subscribers. Each subscriber keeps its own
// cursor into the job's append-only log, so it receives every event
// exactly once and in order regardless of when it subscribed.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string]*topic)}
}

func (b *Broker) topicLocked(id string) *topic {
	t, ok := b.topics[id]
	if !ok {
		t = &topic{notify: make(chan struct{})}
		b.topics[id] = t
	}
	return t
}

// Open creates the log for a job so later subscribers replay from the start.
func (b *Broker) Open(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topicLocked(id)
}

// Publish appends ev to the job's log. Events after a terminal event are
// dropped.
func (b *Broker) Publish(id string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.topicLocked(id)
	if t.closed {
		return
	}
	t.events = append(t.events, ev)
	if ev.Terminal() {
		t.closed = true
	}
	close(t.notify)
	t.notify = make(chan struct{})
}

// Remove drops a job's log. Active subscribers see the stream end.
func (b *Broker) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[id]; ok {
		t.closed = true
		close(t.notify)
		t.notify = make(chan struct{})
		delete(b.topics, id)
	}
}

// Has reports whether the broker holds a log for id.
func (b *Broker) Has(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.topics[id]
	return ok
}

// Subscribe returns a channel that replays the job's log and then follows
// it live. The channel closes after the terminal event, when the log is
// removed, or when ctx is done. ok is false if no log exists for id.
func (b *Broker) Subscribe(ctx context.Context, id string) (<-chan Event, bool) {
	b.mu.Lock()
	t, ok := b.topics[id]
	b.mu.Unlock()
	if !ok {
		return nil, false
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		cursor := 0
		for {
			b.mu.Lock()
			pending := t.events[cursor:len(t.events):len(t.events)]
			closed, wait := t.closed, t.notify
			b.mu.Unlock()

			for _, ev := range pending {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			cursor += len(pending)
			if closed {
				return
			}
			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, true
}
