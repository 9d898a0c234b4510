package guard

import (
	"sync"

	"github.com/google/uuid"
)

// Guard is the authorization and suspension capability injected into the
// manager and every engine. How the administrator identity is
// authenticated is outside this ledger.
type Guard interface {
	IsAdmin(account uuid.UUID) bool
	IsPaused() bool
}

// Static holds a single administrator identity and a pause flag.
type Static struct {
	mu     sync.RWMutex
	admin  uuid.UUID
	paused bool
}

func NewStatic(admin uuid.UUID) *Static {
	return &Static{admin: admin}
}

func (s *Static) IsAdmin(account uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return account == s.admin
}

func (s *Static) IsPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// SetPaused flips the suspension flag.
func (s *Static) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// AllowAll accepts every caller and never pauses. Test substitute.
type AllowAll struct{}

func (AllowAll) IsAdmin(uuid.UUID) bool { return true }
func (AllowAll) IsPaused() bool         { return false }
