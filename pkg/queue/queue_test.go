package queue

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestParsePayload(t *testing.T) {
	raw := json.RawMessage(`{"name":"a","count":2}`)
	got, err := ParsePayload[sample](raw)
	require.NoError(t, err)
	assert.Equal(t, sample{Name: "a", Count: 2}, *got)

	got, err = ParsePayload[sample](map[string]interface{}{"name": "b", "count": 3})
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)

	got, err = ParsePayload[sample](sample{Name: "c"})
	require.NoError(t, err)
	assert.Equal(t, "c", got.Name)

	_, err = ParsePayload[sample](42)
	assert.Error(t, err)
}

type flakyJob struct {
	failures int32
	calls    atomic.Int32
}

func (j *flakyJob) Name() string { return "flaky" }
func (j *flakyJob) Type() string { return "flaky" }

func (j *flakyJob) Handle(_ context.Context, payload interface{}) error {
	n := j.calls.Add(1)
	if _, err := ParsePayload[sample](payload); err != nil {
		return err
	}
	if n <= j.failures {
		return assert.AnError
	}
	return nil
}

func testClient(t *testing.T) *redis.Client {
	addr := os.Getenv("FXPULSE_TEST_REDIS")
	if addr == "" {
		t.Skip("FXPULSE_TEST_REDIS not set")
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}

func TestRedisQueue_RetriesThenSucceeds(t *testing.T) {
	client := testClient(t)
	defer client.Close()

	job := &flakyJob{failures: 1}
	q := NewRedisQueue(nil, QueueConfig{RetryLimit: 2, RetryDelay: 10 * time.Millisecond, PollInterval: 20 * time.Millisecond},
		client, ModeProducerConsumer, WithKeyPrefix("fxpulse-test:"+uuid.NewString()))
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "flaky", sample{Name: "x"}))
	assert.Error(t, q.Enqueue(context.Background(), "unknown", sample{}))

	require.Eventually(t, func() bool { return job.calls.Load() == 2 }, 5*time.Second, 20*time.Millisecond)
	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.DeadLetter)
}

func TestRedisQueue_DeadLetter(t *testing.T) {
	client := testClient(t)
	defer client.Close()

	job := &flakyJob{failures: 100}
	q := NewRedisQueue(nil, QueueConfig{RetryLimit: 1, RetryDelay: 10 * time.Millisecond, PollInterval: 20 * time.Millisecond},
		client, ModeProducerConsumer, WithKeyPrefix("fxpulse-test:"+uuid.NewString()))
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "flaky", sample{Name: "x"}))
	require.Eventually(t, func() bool {
		stats, err := q.Stats(context.Background())
		return err == nil && stats.DeadLetter == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(2), job.calls.Load())
}

func TestRedisQueue_RequeuesUnfinishedClaims(t *testing.T) {
	client := testClient(t)
	defer client.Close()

	prefix := "fxpulse-test:" + uuid.NewString()
	stale, err := json.Marshal(Message{ID: "m1", Type: "flaky", Payload: sample{Name: "left"}, Timestamp: time.Now()})
	require.NoError(t, err)
	require.NoError(t, client.LPush(context.Background(), prefix+":processing", stale).Err())

	job := &flakyJob{}
	q := NewRedisQueue(nil, QueueConfig{PollInterval: 20 * time.Millisecond}, client, ModeConsumerOnly, WithKeyPrefix(prefix))
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.Eventually(t, func() bool { return job.calls.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		stats, err := q.Stats(context.Background())
		return err == nil && stats.InFlight == 0 && stats.Pending == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRedisQueue_UndecodableGoesToDeadLetter(t *testing.T) {
	client := testClient(t)
	defer client.Close()

	prefix := "fxpulse-test:" + uuid.NewString()
	q := NewRedisQueue(nil, QueueConfig{}, client, ModeConsumerOnly, WithKeyPrefix(prefix))
	q.RegisterJob(&flakyJob{})
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, client.LPush(context.Background(), prefix+":messages", "{not json").Err())
	require.Eventually(t, func() bool {
		stats, err := q.Stats(context.Background())
		return err == nil && stats.DeadLetter == 1 && stats.InFlight == 0
	}, 5*time.Second, 20*time.Millisecond)
}
