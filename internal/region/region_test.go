package region

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/authbridge/internal/autherr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "amazon:amzn1.account.AAAA")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "amazon:amzn1.account.AAAA", "kawaguchi-east"))
	require.NoError(t, s.Save(ctx, "amazon:amzn1.account.AAAA", map[string]any{"ward": "3"}))

	got, ok, err := s.Get(ctx, "amazon:amzn1.account.AAAA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"ward": "3"}, got)

	err = s.Save(ctx, "", "x")
	assert.ErrorIs(t, err, autherr.ErrMalformedRequest)
}

func TestFirestoreStoreConfig(t *testing.T) {
	_, err := NewFirestoreStore(nil, "regions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firestore client is required")
}

func TestFirestoreStore_Emulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := firestore.NewClient(ctx, "authbridge-test")
	require.NoError(t, err)
	defer client.Close()

	_, err = NewFirestoreStore(client, "")
	assert.Error(t, err)

	s, err := NewFirestoreStore(client, "regions_test")
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "amazon:emulator-user", "kawaguchi-east"))
	got, ok, err := s.Get(ctx, "amazon:emulator-user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "kawaguchi-east", got)

	_, ok, err = s.Get(ctx, "amazon:nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}
