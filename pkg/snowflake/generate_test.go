package snowflake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextMessageID(t *testing.T) {
	require.NoError(t, Init(1, 1))

	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id, err := NextMessageID()
		require.NoError(t, err)
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}
