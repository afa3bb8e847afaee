package election

import (
	"context"
	"sync"
)

// MemorySlot is an in-process Slot for single-process deployments and tests.
// It keeps the claim-if-vacant semantics without lease expiry: a holder stays
// elected until it releases.
type MemorySlot struct {
	mu     sync.Mutex
	holder string
}

// NewMemorySlot creates a vacant in-memory slot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (s *MemorySlot) TryClaim(_ context.Context, instanceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holder == "" {
		s.holder = instanceID
	}

	return s.holder == instanceID, nil
}

func (s *MemorySlot) Renew(_ context.Context, instanceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.holder == instanceID, nil
}

func (s *MemorySlot) Release(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holder == instanceID {
		s.holder = ""
	}

	return nil
}

func (s *MemorySlot) Holder(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.holder, nil
}
