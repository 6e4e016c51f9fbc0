package tokenstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveGetRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store, err := New(path)
	require.NoError(t, err)

	tok := Token{
		ProviderID:   "test-provider",
		AccessToken:  Secret("access-123"),
		RefreshToken: Secret("refresh-456"),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Save(tok))

	got, ok := store.Get("test-provider")
	require.True(t, ok)
	assert.Equal(t, "access-123", got.AccessToken.Expose())
	assert.Equal(t, "refresh-456", got.RefreshToken.Expose())

	require.NoError(t, store.Remove("test-provider"))
	_, ok = store.Get("test-provider")
	assert.False(t, ok)
}

func TestTokenExpiration(t *testing.T) {
	expired := Token{ExpiresAt: time.Now().Add(-time.Hour)}
	assert.True(t, expired.IsExpired())
	assert.True(t, expired.NeedsRefresh())

	valid := Token{ExpiresAt: time.Now().Add(time.Hour)}
	assert.False(t, valid.IsExpired())
	assert.False(t, valid.NeedsRefresh())
}

func TestReloadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store1, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store1.Save(Token{ProviderID: "p", AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour)}))

	store2, err := New(path)
	require.NoError(t, err)
	got, ok := store2.Get("p")
	require.True(t, ok)
	assert.Equal(t, "a", got.AccessToken.Expose())
}
