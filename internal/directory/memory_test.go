package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded() *Memory {
	return NewMemory([]User{
		{ID: "admin-2", Role: "admin", Active: true},
		{ID: "admin-1", Role: "admin", Active: true},
		{ID: "admin-gone", Role: "admin", Active: false},
		{ID: "mgr-eng", Role: "manager", Department: "engineering", Active: true},
		{ID: "mgr-sales", Role: "manager", Department: "sales", Active: true},
		{ID: "emp-1", Role: "employee", Department: "engineering", Active: true},
	})
}

func TestMemory_UsersByRole(t *testing.T) {
	dir := seeded()

	got, err := dir.UsersByRole(context.Background(), "co-1", "admin")
	require.NoError(t, err)
	// Sorted, inactive users excluded.
	assert.Equal(t, []string{"admin-1", "admin-2"}, got)

	got, err = dir.UsersByRole(context.Background(), "co-1", "contractor")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemory_DepartmentManagers(t *testing.T) {
	dir := seeded()

	got, err := dir.DepartmentManagers(context.Background(), "co-1", "engineering")
	require.NoError(t, err)
	assert.Equal(t, []string{"mgr-eng"}, got, "non-manager department members are excluded")

	got, err = dir.DepartmentManagers(context.Background(), "co-1", "legal")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemory_Upsert(t *testing.T) {
	dir := seeded()

	dir.Upsert(User{ID: "mgr-eng", Role: "manager", Department: "engineering", Active: false})
	got, err := dir.DepartmentManagers(context.Background(), "co-1", "engineering")
	require.NoError(t, err)
	assert.Empty(t, got, "deactivated users stop resolving")

	dir.Upsert(User{ID: "mgr-new", Role: "manager", Department: "engineering", Active: true})
	got, err = dir.DepartmentManagers(context.Background(), "co-1", "engineering")
	require.NoError(t, err)
	assert.Equal(t, []string{"mgr-new"}, got)
}
