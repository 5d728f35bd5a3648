package testutil

import (
	"testing"

	"github.com/nhle/paddledesk/internal/kv"
	"github.com/nhle/paddledesk/internal/worker"
)

// NewTestWorkerStore creates an in-memory worker Store with all migrations
// applied. It automatically closes the store when the test completes.
func NewTestWorkerStore(t *testing.T) *worker.Store {
	t.Helper()

	s, err := worker.NewStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestKV creates an in-memory key-value backend shared by every tab
// opened on it.
func NewTestKV(t *testing.T) *kv.Memory {
	t.Helper()

	m := kv.NewMemory()
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("closing test kv: %v", err)
		}
	})

	return m
}
