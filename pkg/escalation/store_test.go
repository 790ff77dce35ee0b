package escalation

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db)
	ctx := context.Background()

	mock.ExpectHSet(blockHashKey, "203.0.113.9:ab12cd34", "abuse report").SetVal(1)
	require.NoError(t, store.SaveBlock(ctx, "203.0.113.9:ab12cd34", "abuse report"))

	mock.ExpectHDel(blockHashKey, "203.0.113.9:ab12cd34").SetVal(1)
	require.NoError(t, store.RemoveBlock(ctx, "203.0.113.9:ab12cd34"))

	mock.ExpectHSet(whitelistHashKey, "203.0.113.9:ab12cd34", "internal").SetVal(1)
	require.NoError(t, store.SaveWhitelist(ctx, "203.0.113.9:ab12cd34", "internal"))

	mock.ExpectHGetAll(blockHashKey).SetVal(map[string]string{"bad": "abuse"})
	blocked, err := store.LoadBlocked(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abuse", blocked["bad"])

	mock.ExpectHGetAll(whitelistHashKey).SetVal(map[string]string{"good": "internal"})
	whitelisted, err := store.LoadWhitelisted(ctx)
	require.NoError(t, err)
	assert.Equal(t, "internal", whitelisted["good"])

	assert.NoError(t, mock.ExpectationsWereMet())
}
