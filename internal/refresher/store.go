package refresher

import (
	"sync"
	"time"

	"github.com/angeloszaimis/resilient-orders/internal/order"
)

// Store holds the last orders list fetched successfully.
type Store struct {
	mutex     sync.RWMutex
	orders    []order.Order
	updatedAt time.Time
}

// NewStore returns a store seeded with initial, which may be empty.
func NewStore(initial []order.Order) *Store {
	if initial == nil {
		initial = []order.Order{}
	}
	return &Store{orders: initial}
}

// Orders returns the stored list. Callers must not modify it.
func (s *Store) Orders() []order.Order {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.orders
}

func (s *Store) Set(orders []order.Order, at time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.orders = orders
	s.updatedAt = at
}

// UpdatedAt is the time of the last successful refresh, zero if none.
func (s *Store) UpdatedAt() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.updatedAt
}
