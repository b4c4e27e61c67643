// Package users provides an in-memory implementation of the governance
// UserDirectory. The production identity provider is an external service;
// this implementation backs tests and dev mode.
package users

import (
	"context"
	"sync"

	"github.com/realumlabs/realum-dao/pkg/governance"
)

// Directory is an in-memory user directory.
type Directory struct {
	users map[string]governance.User
	mutex sync.RWMutex
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		users: make(map[string]governance.User),
	}
}

// Add registers or replaces a user.
func (d *Directory) Add(user governance.User) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.users[user.ID] = user
}

// GetUser returns (nil, nil) for unknown users.
func (d *Directory) GetUser(_ context.Context, id string) (*governance.User, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if user, exists := d.users[id]; exists {
		u := user
		return &u, nil
	}
	return nil, nil
}

// CountUsers returns the number of registered users.
func (d *Directory) CountUsers(_ context.Context) (int64, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return int64(len(d.users)), nil
}
