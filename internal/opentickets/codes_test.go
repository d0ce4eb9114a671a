package opentickets

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisSequencerPerBranchAndMonth(t *testing.T) {
	mr, client := setupTestRedis(t)
	seq := NewRedisSequencer(client)
	ctx := context.Background()
	may := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	june := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	for want := int64(1); want <= 3; want++ {
		n, err := seq.Next(ctx, "cdmx", may)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	n, err := seq.Next(ctx, "CDMX ", june)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = seq.Next(ctx, "gdl", may)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.True(t, mr.Exists("opentickets:seq:CDMX:202605"))
	assert.Greater(t, mr.TTL("opentickets:seq:CDMX:202605"), 30*24*time.Hour)
}

func TestRedisSequencerUnavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	_, err := NewRedisSequencer(client).Next(context.Background(), "cdmx", time.Now())
	assert.Error(t, err)
}

func TestFormatCode(t *testing.T) {
	at := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "OT-NORTE-202601-0042", FormatCode(" norte", at, 42))
	assert.Equal(t, "OT-NORTE-202601-12345", FormatCode("norte", at, 12345))
}
