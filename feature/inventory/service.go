package inventory

import (
	"context"
	"sync"

	"card-inventory/core/lock"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuantityListener is notified after every committed ledger adjustment.
type QuantityListener interface {
	QuantityChanged(ctx context.Context, lot Lot, event Event)
}

// Service owns cards, lots and the quantity ledger.
type Service struct {
	db     *gorm.DB
	locker lock.Locker
	logger *zap.Logger

	mu        sync.RWMutex
	listeners []QuantityListener
}

// NewService creates a new inventory service.
func NewService(db *gorm.DB, locker lock.Locker, logger *zap.Logger) *Service {
	if locker == nil {
		locker = lock.NewMemory()
	}
	return &Service{
		db:     db,
		locker: locker,
		logger: logger,
	}
}

// AddListener registers l for post-commit notifications.
func (s *Service) AddListener(l QuantityListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// DB returns the underlying connection for collaborators sharing transactions.
func (s *Service) DB() *gorm.DB {
	return s.db
}

// Locker returns the per-key locker shared with collaborators.
func (s *Service) Locker() lock.Locker {
	return s.locker
}

func (s *Service) notify(ctx context.Context, lot *Lot, ev *Event) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()

	for _, l := range listeners {
		l.QuantityChanged(ctx, *lot, *ev)
	}
}
