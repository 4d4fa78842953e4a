package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetDecodesJSON(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheFromClient(db)

	mock.ExpectGet("confluence:score:BTCUSDT").SetVal(`{"symbol":"BTCUSDT","score":61}`)

	var got sample
	require.NoError(t, rc.Get(context.Background(), "confluence:score:BTCUSDT", &got))
	assert.Equal(t, 61.0, got.Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetMissMapsToErrCacheMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheFromClient(db)

	mock.ExpectGet("missing").RedisNil()

	var got string
	assert.ErrorIs(t, rc.Get(context.Background(), "missing", &got), ErrCacheMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_PrefixIsApplied(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheFromClient(db, WithRedisPrefix("dev"))

	mock.ExpectGet("dev:k").SetVal("v")

	var got string
	require.NoError(t, rc.Get(context.Background(), "k", &got))
	assert.Equal(t, "v", got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_TTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheFromClient(db)
	ctx := context.Background()

	mock.ExpectTTL("live").SetVal(300 * time.Second)
	mock.ExpectTTL("gone").SetVal(time.Duration(-2))

	ttl, err := rc.TTL(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, ttl)

	_, err = rc.TTL(ctx, "gone")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_PingError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheFromClient(db)

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	assert.Error(t, rc.Ping(context.Background()))
}
