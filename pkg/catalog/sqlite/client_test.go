package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionlabs/avatarmem-go/pkg/catalog"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(&Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSeedAndGetUser(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	avatarID, err := client.Seed(ctx, "u1", "Alice", "Luna", "You are Luna.")
	require.NoError(t, err)
	require.NotEmpty(t, avatarID)

	user, err := client.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UnionID)
	assert.Equal(t, "Alice", user.Nickname)
}

func TestGetUserNotFound(t *testing.T) {
	client := newTestClient(t)

	_, err := client.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestGetRole(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	avatarID, err := client.Seed(ctx, "u1", "Alice", "Luna", "You are Luna.")
	require.NoError(t, err)

	role, err := client.GetRole(ctx, avatarID)
	require.NoError(t, err)
	assert.Equal(t, "u1", role.UnionID)
	assert.Equal(t, "Luna", role.AvatarName)
	assert.Equal(t, "You are Luna.", role.SystemPrompt)
	assert.Equal(t, uint32(0), role.MemoryVersion)
	assert.Equal(t, 0, role.ChatCount)
}

func TestGetRoleNotFound(t *testing.T) {
	client := newTestClient(t)

	_, err := client.GetRole(context.Background(), "missing")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestListRoles(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Seed(ctx, "u1", "Alice", "Luna", "p1")
	require.NoError(t, err)
	_, err = client.Seed(ctx, "u1", "Alice", "Sol", "p2")
	require.NoError(t, err)

	roles, err := client.ListRoles(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, roles, 2)

	none, err := client.ListRoles(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateRoleMemory(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	avatarID, err := client.Seed(ctx, "u1", "Alice", "Luna", "p")
	require.NoError(t, err)

	err = client.UpdateRoleMemory(ctx, avatarID, 3, 12, time.Now())
	require.NoError(t, err)

	role, err := client.GetRole(ctx, avatarID)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), role.MemoryVersion)
	assert.Equal(t, 12, role.ChatCount)
}

func TestUpdateRoleMemoryUnknownRole(t *testing.T) {
	client := newTestClient(t)

	err := client.UpdateRoleMemory(context.Background(), "missing", 1, 1, time.Now())
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestListVoicesAndBackgroundsEmpty(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Seed(ctx, "u1", "Alice", "Luna", "p")
	require.NoError(t, err)

	voices, err := client.ListVoices(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, voices)

	bgs, err := client.ListBackgrounds(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, bgs)
}
