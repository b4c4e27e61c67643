package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realumlabs/realum-dao/pkg/governance"
)

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory()

	user, err := d.GetUser(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, user)

	d.Add(governance.User{ID: "u1", Level: 3})
	d.Add(governance.User{ID: "admin", Level: 5, Admin: true})

	user, err = d.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, 3, user.Level)
	assert.False(t, user.Admin)

	count, err := d.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Re-adding replaces
	d.Add(governance.User{ID: "u1", Level: 4})
	user, err = d.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, user.Level)
	count, err = d.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
