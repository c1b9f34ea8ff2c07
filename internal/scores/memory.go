package scores

import (
	"context"
	"fmt"
	"sync"
)

type scopeKey struct {
	campaign   int64
	entityType EntityType
}

// MemoryStore keeps scores in process memory. Each scope is swapped as a
// whole under the write lock.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[scopeKey][]Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[scopeKey][]Row)}
}

func (m *MemoryStore) ReplaceScopes(ctx context.Context, campaign int64, scopes map[EntityType][]Row) error {
	for et, rows := range scopes {
		if err := checkScope(et, rows); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for et, rows := range scopes {
		cp := make([]Row, len(rows))
		copy(cp, rows)
		SortRows(cp)
		m.scopes[scopeKey{campaign, et}] = cp
	}
	return nil
}

func (m *MemoryStore) ReplaceEntity(ctx context.Context, campaign int64, entityType EntityType, entityID int64, rows []Row) error {
	if err := checkScope(entityType, rows); err != nil {
		return err
	}
	for _, r := range rows {
		if r.EntityID != entityID {
			return fmt.Errorf("row for entity %d in replacement of entity %d", r.EntityID, entityID)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scopeKey{campaign, entityType}
	next := make([]Row, 0, len(m.scopes[key])+len(rows))
	for _, r := range m.scopes[key] {
		if r.EntityID != entityID {
			next = append(next, r)
		}
	}
	next = append(next, rows...)
	SortRows(next)
	m.scopes[key] = next
	return nil
}

func (m *MemoryStore) Rows(_ context.Context, campaign int64, entityType EntityType, entityID int64) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Row
	for _, r := range m.scopes[scopeKey{campaign, entityType}] {
		if entityID == 0 || r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) Total(ctx context.Context, campaign int64, entityType EntityType, entityID int64) (float64, error) {
	rows, _ := m.Rows(ctx, campaign, entityType, entityID)
	var total float64
	for _, r := range rows {
		total += r.Points
	}
	return total, nil
}

func (m *MemoryStore) Ranking(ctx context.Context, campaign int64, entityType EntityType) ([]Standing, error) {
	rows, _ := m.Rows(ctx, campaign, entityType, 0)
	return Rank(rows), nil
}

func (m *MemoryStore) Close() error { return nil }
