// Package directory provides the company directory used to resolve
// hierarchical approver selectors at flow-build time. The in-memory
// implementation is seeded from configuration; deployments with a real HR
// directory plug in their own flow.Directory implementation instead.
package directory

import (
	"context"
	"sort"
	"sync"
)

// User is one directory entry.
type User struct {
	ID         string `json:"id" mapstructure:"id"`
	Role       string `json:"role" mapstructure:"role"`
	Department string `json:"department" mapstructure:"department"`
	Active     bool   `json:"active" mapstructure:"active"`
}

// Memory is an in-memory flow.Directory implementation.
type Memory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemory creates a directory seeded with the given users.
func NewMemory(users []User) *Memory {
	m := &Memory{users: make(map[string]User, len(users))}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

// Upsert adds or replaces a directory entry.
func (m *Memory) Upsert(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// UsersByRole returns the IDs of active users holding the role.
func (m *Memory) UsersByRole(_ context.Context, _ string, role string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, u := range m.users {
		if u.Active && u.Role == role {
			out = append(out, u.ID)
		}
	}
	sort.Strings(out) // map iteration order is random; keep resolution deterministic
	return out, nil
}

// DepartmentManagers returns the IDs of active managers of the department.
func (m *Memory) DepartmentManagers(_ context.Context, _ string, department string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, u := range m.users {
		if u.Active && u.Role == "manager" && u.Department == department {
			out = append(out, u.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}
