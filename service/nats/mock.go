package nats

import (
	"context"
	"sync"

	"github.com/brojonat/ledgerwire/service/wallet"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu                sync.RWMutex
	publishedEvents   []wallet.Event
	publishedIDs      []string
	publishError      error
	publishBatchError error
	closed            bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]wallet.Event, 0),
	}
}

// PublishEvent records the event and returns any configured error.
func (m *MockPublisher) PublishEvent(ctx context.Context, event wallet.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// PublishEventWithID records the event and its id. A repeated id is dropped like
// JetStream's duplicate window would.
func (m *MockPublisher) PublishEventWithID(ctx context.Context, id string, event wallet.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	for _, seen := range m.publishedIDs {
		if seen == id {
			return nil
		}
	}

	m.publishedIDs = append(m.publishedIDs, id)
	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// GetPublishedIDs returns the ids passed to PublishEventWithID.
func (m *MockPublisher) GetPublishedIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, len(m.publishedIDs))
	copy(ids, m.publishedIDs)
	return ids
}

// PublishEventBatch records the events and returns any configured error.
func (m *MockPublisher) PublishEventBatch(ctx context.Context, events []wallet.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishBatchError != nil {
		return m.publishBatchError
	}

	m.publishedEvents = append(m.publishedEvents, events...)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []wallet.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	events := make([]wallet.Event, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventCount returns the number of published events.
func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.publishedEvents)
}

// GetPublishedEventsForAccount returns events published for a specific account.
func (m *MockPublisher) GetPublishedEventsForAccount(accountIndex uint32) []wallet.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]wallet.Event, 0)
	for _, event := range m.publishedEvents {
		if event.AccountIndex == accountIndex {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishEvent.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// SetPublishBatchError configures the mock to return an error on PublishEventBatch.
func (m *MockPublisher) SetPublishBatchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishBatchError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedEvents = make([]wallet.Event, 0)
	m.publishedIDs = nil
	m.publishError = nil
	m.publishBatchError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
