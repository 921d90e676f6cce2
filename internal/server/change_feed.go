package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/jobs"
)

const (
	EventVariantSynced  = "variant-synced"
	EventRelatedUpdated = "related-updated"
	eventHeartbeat      = "heartbeat"

	allVariants = ""
)

// ChangeEvent tells storefront caches that a variant's flat record or related
// set was rewritten.
type ChangeEvent struct {
	Type      string    `json:"type"`
	VariantID string    `json:"variantId"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangeFeed fans change events out to stream subscribers. A subscriber either
// follows one variant or every variant.
type ChangeFeed struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*feedSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type feedSubscriber struct {
	id     int64
	stream chan ChangeEvent
}

// NewChangeFeed constructs an empty feed.
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{
		subscribers: make(map[string]map[int64]*feedSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a subscriber for the variant, or for every variant when
// variantID is empty. The subscription ends when ctx is done or the returned
// cleanup runs.
func (f *ChangeFeed) Subscribe(ctx context.Context, variantID string) (<-chan ChangeEvent, func()) {
	subscriber := &feedSubscriber{
		id:     f.nextSequence(),
		stream: make(chan ChangeEvent, f.bufferSize),
	}
	f.registerSubscriber(variantID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			f.unregisterSubscriber(variantID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the event without blocking; slow subscribers miss events.
func (f *ChangeFeed) Publish(event ChangeEvent) {
	if event.VariantID == "" || event.Type == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = f.clock().UTC()
	}
	f.mu.RLock()
	targets := make([]*feedSubscriber, 0, len(f.subscribers[allVariants])+len(f.subscribers[event.VariantID]))
	for _, subscriber := range f.subscribers[allVariants] {
		targets = append(targets, subscriber)
	}
	for _, subscriber := range f.subscribers[event.VariantID] {
		targets = append(targets, subscriber)
	}
	f.mu.RUnlock()
	for _, subscriber := range targets {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

// JobCompleted publishes the event matching a finished job.
func (f *ChangeFeed) JobCompleted(job jobs.Job) {
	switch job.Task {
	case jobs.TaskFlattenVariant:
		f.Publish(ChangeEvent{Type: EventVariantSynced, VariantID: job.VariantID})
	case jobs.TaskRecomputeRelated:
		f.Publish(ChangeEvent{Type: EventRelatedUpdated, VariantID: job.VariantID})
	}
}

func (f *ChangeFeed) nextSequence() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID
}

func (f *ChangeFeed) registerSubscriber(variantID string, subscriber *feedSubscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subscribers[variantID]; !ok {
		f.subscribers[variantID] = make(map[int64]*feedSubscriber)
	}
	f.subscribers[variantID][subscriber.id] = subscriber
}

func (f *ChangeFeed) unregisterSubscriber(variantID string, subscriberID int64) {
	f.mu.Lock()
	subscribers := f.subscribers[variantID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(f.subscribers, variantID)
		}
	}
	f.mu.Unlock()
}
