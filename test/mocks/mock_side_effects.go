package mocks

import (
	"context"
	"sync"

	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
)

// MockNotifier is a mock implementation of Notifier for testing
type MockNotifier struct {
	mu sync.Mutex

	notifyError error

	NotifyCalls int
	LastSnap    *models.Snapshot
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// SetNotifyError sets the error to return from Notify
func (m *MockNotifier) SetNotifyError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyError = err
}

func (m *MockNotifier) Notify(ctx context.Context, snap models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotifyCalls++
	m.LastSnap = &snap
	return m.notifyError
}

// Calls returns the number of Notify invocations
func (m *MockNotifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NotifyCalls
}

// MockArchiver is a mock implementation of Archiver for testing
type MockArchiver struct {
	mu sync.Mutex

	archiveError error

	ArchiveCalls int
	LastSnap     *models.Snapshot
}

// NewMockArchiver creates a new mock archiver
func NewMockArchiver() *MockArchiver {
	return &MockArchiver{}
}

// SetArchiveError sets the error to return from Archive
func (m *MockArchiver) SetArchiveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archiveError = err
}

func (m *MockArchiver) Archive(ctx context.Context, snap models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArchiveCalls++
	m.LastSnap = &snap
	return m.archiveError
}

// Calls returns the number of Archive invocations
func (m *MockArchiver) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ArchiveCalls
}
