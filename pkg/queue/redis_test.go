package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refreshPayload struct {
	Symbol string `json:"symbol"`
}

func newTestQueue(t *testing.T, cfg Config, opts ...Option) (*RedisQueue, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(db, cfg, append([]Option{WithKeyPrefix("test:q")}, opts...)...)
	return q, mock
}

func TestEnqueue_NotRunning(t *testing.T) {
	q, _ := newTestQueue(t, Config{})
	_, err := q.Enqueue(context.Background(), "confluence.refresh", refreshPayload{Symbol: "BTCUSDT"})
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestEnqueue_UnknownTypeWhenConsuming(t *testing.T) {
	q, mock := newTestQueue(t, Config{})
	mock.ExpectPing().SetVal("PONG")
	q.mode = ModeProducerOnly
	require.NoError(t, q.Start(context.Background()))
	q.mode = ModeProducerConsumer

	_, err := q.Enqueue(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestStart_PingFailure(t *testing.T) {
	q, mock := newTestQueue(t, Config{}, WithMode(ModeProducerOnly))
	mock.ExpectPing().SetErr(errors.New("connection refused"))

	err := q.Start(context.Background())
	require.Error(t, err)
	_, err = q.Enqueue(context.Background(), "confluence.refresh", nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestEnqueueUnique_Duplicate(t *testing.T) {
	q, mock := newTestQueue(t, Config{DedupeTTL: time.Minute}, WithMode(ModeProducerOnly))
	mock.ExpectPing().SetVal("PONG")
	require.NoError(t, q.Start(context.Background()))

	mock.ExpectSetNX("test:q:dedupe:BTCUSDT", "1", time.Minute).SetVal(false)
	_, err := q.EnqueueUnique(context.Background(), "confluence.refresh", "BTCUSDT", refreshPayload{Symbol: "BTCUSDT"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcess_SuccessReleasesDedupeKey(t *testing.T) {
	q, mock := newTestQueue(t, Config{})
	var got string
	q.RegisterJob(JobFunc{JobName: "refresh", MsgType: "confluence.refresh", Fn: func(_ context.Context, p json.RawMessage) error {
		r, err := Decode[refreshPayload](p)
		if err != nil {
			return err
		}
		got = r.Symbol
		return nil
	}})

	mock.ExpectDel("test:q:dedupe:ETHUSDT").SetVal(1)
	q.process(Message{ID: "1", Type: "confluence.refresh", Payload: json.RawMessage(`{"symbol":"ETHUSDT"}`), DedupeKey: "ETHUSDT"})

	assert.Equal(t, "ETHUSDT", got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcess_FailureSchedulesRetry(t *testing.T) {
	q, mock := newTestQueue(t, Config{RetryLimit: 2})
	q.RegisterJob(JobFunc{JobName: "refresh", MsgType: "confluence.refresh", Fn: func(context.Context, json.RawMessage) error {
		return errors.New("upstream down")
	}})

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := Message{ID: "1", Type: "confluence.refresh", Payload: json.RawMessage(`{}`), Timestamp: ts}
	retried := msg
	retried.Attempts = 1
	data, err := json.Marshal(retried)
	require.NoError(t, err)

	mock.CustomMatch(func(expected, actual []interface{}) error {
		if len(actual) < 4 || actual[0] != "zadd" || actual[1] != "test:q:retry" {
			return errors.New("unexpected command")
		}
		if string(actual[3].([]byte)) != string(data) {
			return errors.New("unexpected member")
		}
		return nil
	}).ExpectZAdd("test:q:retry", redisZ(data)).SetVal(1)

	q.process(msg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcess_PanicExhaustedGoesToDLQ(t *testing.T) {
	q, mock := newTestQueue(t, Config{RetryLimit: 0})
	q.RegisterJob(JobFunc{JobName: "boom", MsgType: "boom", Fn: func(context.Context, json.RawMessage) error {
		panic("bad")
	}})

	msg := Message{ID: "9", Type: "boom", Payload: json.RawMessage(`{}`), Timestamp: time.Unix(0, 0).UTC()}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	mock.ExpectLPush("test:q:dlq", data).SetVal(1)

	assert.NotPanics(t, func() { q.process(msg) })
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPending(t *testing.T) {
	q, mock := newTestQueue(t, Config{})
	mock.ExpectLLen("test:q:messages").SetVal(3)
	mock.ExpectZCard("test:q:retry").SetVal(1)
	mock.ExpectLLen("test:q:dlq").SetVal(0)

	queued, retrying, dead, err := q.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), queued)
	assert.Equal(t, int64(1), retrying)
	assert.Equal(t, int64(0), dead)
}

func TestDecode(t *testing.T) {
	r, err := Decode[refreshPayload](json.RawMessage(`{"symbol":"SOLUSDT"}`))
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", r.Symbol)

	_, err = Decode[refreshPayload](nil)
	assert.Error(t, err)
	_, err = Decode[refreshPayload](json.RawMessage(`{`))
	assert.Error(t, err)
}

func redisZ(member []byte) redis.Z {
	return redis.Z{Score: 0, Member: member}
}
