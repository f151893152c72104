package identity_test

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-registration/internal/identity"
)

func TestPreferences_Lifecycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	prefs := identity.NewPreferences(fs, "/data/prefs/CapacitorStorage.json")

	t.Run("Missing file reads as absent", func(t *testing.T) {
		v, ok, err := prefs.Get(identity.CurrentUserKey)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("Set then Get", func(t *testing.T) {
		require.NoError(t, prefs.Set(identity.CurrentUserKey, "user-123"))
		require.NoError(t, prefs.Set("theme", "dark"))

		v, ok, err := prefs.Get(identity.CurrentUserKey)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "user-123", v)

		// Written as a plain JSON object.
		data, err := afero.ReadFile(fs, "/data/prefs/CapacitorStorage.json")
		require.NoError(t, err)
		assert.JSONEq(t, `{"current_user_id":"user-123","theme":"dark"}`, string(data))
	})

	t.Run("Remove keeps other keys", func(t *testing.T) {
		require.NoError(t, prefs.Remove(identity.CurrentUserKey))
		require.NoError(t, prefs.Remove(identity.CurrentUserKey))

		_, ok, err := prefs.Get(identity.CurrentUserKey)
		require.NoError(t, err)
		assert.False(t, ok)

		v, ok, err := prefs.Get("theme")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "dark", v)
	})
}

func TestPreferences_MalformedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "prefs.json", []byte("{not json"), 0o600))

	_, _, err := identity.NewPreferences(fs, "prefs.json").Get(identity.CurrentUserKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed preferences")
}

func TestKeyResolver(t *testing.T) {
	store := identity.NewMemory()
	resolver := identity.NewKeyResolver(store, "")
	assert.Equal(t, identity.CurrentUserKey, resolver.Key)

	_, ok, err := resolver.CurrentUserID(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(identity.CurrentUserKey, "worker-9"))
	id, ok, err := resolver.CurrentUserID(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "worker-9", id)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = resolver.CurrentUserID(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
