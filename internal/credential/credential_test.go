package credential

import (
	"context"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-portal/internal/localstore"
)

func caches() map[string]TokenCache {
	return map[string]TokenCache{
		"keyring": NewKeyringCache(keyring.NewArrayKeyring(nil)),
		"store":   NewStoreCache(localstore.NewNamespaced("portal:", localstore.NewMemoryStore())),
	}
}

func TestTokenCache(t *testing.T) {
	ctx := context.Background()
	for name, c := range caches() {
		t.Run(name, func(t *testing.T) {
			_, err := c.Load(ctx)
			assert.ErrorIs(t, err, ErrNoToken)

			require.NoError(t, c.Save(ctx, "tok-1"))
			require.NoError(t, c.Save(ctx, "tok-2"))

			tok, err := c.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, "tok-2", tok)

			require.NoError(t, c.Clear(ctx))
			require.NoError(t, c.Clear(ctx))
			_, err = c.Load(ctx)
			assert.ErrorIs(t, err, ErrNoToken)
		})
	}
}
