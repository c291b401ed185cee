package staticnumber

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totalhack/zar-numberpool/kvstore"
)

func TestStore_SetGet(t *testing.T) {
	store := kvstore.NewMemStore()
	s := NewStore(store)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "18005551234")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "18005551234", map[string]any{"campaign": "billboard-95"}))

	got, ok, err := s.Get(ctx, "18005551234")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "billboard-95", got["campaign"])
}
