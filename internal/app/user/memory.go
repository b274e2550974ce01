package user

import (
	"context"
	"sync"
	"time"
)

// MemoryDirectory is an in-process Directory used in development and tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]User)}
}

func (d *MemoryDirectory) Ensure(_ context.Context, id string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u, ok := d.users[id]; ok {
		return u, nil
	}

	u := NewDefault(id, time.Now())
	d.users[id] = u
	return u, nil
}

func (d *MemoryDirectory) Get(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (d *MemoryDirectory) UpdateProfile(_ context.Context, id string, name, color *string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[id]
	if !ok {
		return User{}, ErrNotFound
	}

	u = u.Apply(name, color, time.Now())
	d.users[id] = u
	return u, nil
}
