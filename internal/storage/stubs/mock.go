package stubs

import (
	"context"
	"shadowfax/internal/models"
	"sort"
	"sync"
)

// MockStore is an in-memory implementation of the AccessStore interface for testing
type MockStore struct {
	mu        sync.RWMutex
	admins    map[int64]bool
	users     map[int64]models.UserRecord
	blacklist map[int64]bool
}

// NewMockStore creates a new mock access store
func NewMockStore() *MockStore {
	return &MockStore{
		admins:    make(map[int64]bool),
		users:     make(map[int64]models.UserRecord),
		blacklist: make(map[int64]bool),
	}
}

// Initialize does nothing for mock store
func (m *MockStore) Initialize(ctx context.Context) error {
	return nil
}

// ListAdmins returns admin ids in ascending order
func (m *MockStore) ListAdmins(ctx context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.admins))
	for id := range m.admins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

// AddAdmin adds an admin id
func (m *MockStore) AddAdmin(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.admins[id] {
		return false, nil
	}
	m.admins[id] = true
	return true, nil
}

// IsApproved checks the approved users map
func (m *MockStore) IsApproved(ctx context.Context, id int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.users[id]
	return ok, nil
}

// Approve stores an approved user record
func (m *MockStore) Approve(ctx context.Context, user models.UserRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; ok {
		return false, nil
	}
	m.users[user.ID] = user
	return true, nil
}

// ListUsers returns approved users sorted by id
func (m *MockStore) ListUsers(ctx context.Context) ([]models.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]models.UserRecord, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	return users, nil
}

// IsBlacklisted checks the blacklist map
func (m *MockStore) IsBlacklisted(ctx context.Context, id int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.blacklist[id], nil
}

// Blacklist adds an id to the blacklist
func (m *MockStore) Blacklist(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.blacklist[id] {
		return false, nil
	}
	m.blacklist[id] = true
	return true, nil
}

// Close does nothing for mock store
func (m *MockStore) Close() error {
	return nil
}

// MemoryCursor keeps the update cursor in memory
type MemoryCursor struct {
	mu     sync.Mutex
	cursor int
}

// NewMemoryCursor creates a cursor store starting at zero
func NewMemoryCursor() *MemoryCursor {
	return &MemoryCursor{}
}

// Load returns the stored cursor
func (c *MemoryCursor) Load(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, nil
}

// Save stores the cursor unless it is lower than the current value
func (c *MemoryCursor) Save(ctx context.Context, cursor int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cursor > c.cursor {
		c.cursor = cursor
	}
	return nil
}

// Close does nothing for memory cursor
func (c *MemoryCursor) Close() error {
	return nil
}
