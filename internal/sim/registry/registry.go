// Package registry is a minimal in-memory entity store: opaque handles with
// attached records that the store never interprets.
package registry

import (
	"sync"

	"github.com/google/uuid"
)

type Entity uuid.UUID

var Nil Entity

func (e Entity) String() string { return uuid.UUID(e).String() }

func Parse(s string) (Entity, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, err
	}
	return Entity(u), nil
}

type Memory struct {
	mu       sync.RWMutex
	entities map[Entity][]any
}

func NewMemory() *Memory {
	return &Memory{entities: map[Entity][]any{}}
}

func (m *Memory) CreateEntity() Entity {
	e := Entity(uuid.New())
	m.mu.Lock()
	m.entities[e] = nil
	m.mu.Unlock()
	return e
}

// Attach appends a record. Unknown entities are ignored.
func (m *Memory) Attach(e Entity, record any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs, ok := m.entities[e]
	if !ok {
		return
	}
	m.entities[e] = append(recs, record)
}

func (m *Memory) DestroyEntity(e Entity) {
	m.mu.Lock()
	delete(m.entities, e)
	m.mu.Unlock()
}

func (m *Memory) Exists(e Entity) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entities[e]
	return ok
}

func (m *Memory) Records(e Entity) []any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]any(nil), m.entities[e]...)
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}
