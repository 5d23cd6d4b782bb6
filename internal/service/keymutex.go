package service

import (
	"sync"

	"github.com/google/uuid"
)

// keyMutex serializes operations scoped to a single entity: proposal
// selection per case, wallet spends per patient, payouts per doctor.
// Locks are never released from the map; the key space (active cases,
// patients, doctors) is bounded in practice.
type keyMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (k *keyMutex) Lock(id uuid.UUID) {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()
	m.Lock()
}

func (k *keyMutex) Unlock(id uuid.UUID) {
	k.mu.Lock()
	m := k.locks[id]
	k.mu.Unlock()
	m.Unlock()
}
