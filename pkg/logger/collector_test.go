package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu    sync.Mutex
	topic string
	logs  []AggregatedLogEntry
	calls int
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.calls++
	if entries, ok := payload.([]AggregatedLogEntry); ok {
		p.logs = append(p.logs, entries...)
	}
	return nil
}

func (p *capturePublisher) snapshot() (string, []AggregatedLogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.topic, append([]AggregatedLogEntry(nil), p.logs...)
}

func TestLogger_ErrorsAreAggregated(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "error-logs",
		Publisher:      pub,
	})

	for i := 0; i < 3; i++ {
		l.Error("gateway failed", String("pair", "EUR/USD"), Error(errors.New("boom")))
	}
	l.RemoveCollector()

	require.Eventually(t, func() bool {
		_, logs := pub.snapshot()
		return len(logs) == 1
	}, time.Second, 10*time.Millisecond)

	topic, logs := pub.snapshot()
	assert.Equal(t, "error-logs", topic)
	assert.Equal(t, 3, logs[0].Count)
	assert.Equal(t, "gateway failed", logs[0].Message)
	assert.Equal(t, "EUR/USD", logs[0].Fields["pair"])
}

func TestLogger_WithSharesCollector(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "error-logs",
		Publisher:      pub,
	})

	child := l.With(String("component", "scheduler"))
	child.Error("cycle failed")
	l.RemoveCollector()

	require.Eventually(t, func() bool {
		_, logs := pub.snapshot()
		return len(logs) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Format: "json", Output: "stdout"})
	assert.Error(t, err)
}

func TestCollector_CarriesWithFieldsAndSkipsWarnByDefault(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "t", Publisher: pub})

	child := l.With(String("component", "dispatcher"))
	child.Warn("slow channel")
	child.Error("send failed", Error(nil))
	l.RemoveCollector()

	_, logs := pub.snapshot()
	require.Len(t, logs, 1)
	assert.Equal(t, "error", logs[0].Level)
	assert.Equal(t, "dispatcher", logs[0].Fields["component"])
	assert.Nil(t, logs[0].Fields["error"])
	assert.Contains(t, logs[0].Caller, "logger/collector_test.go:")
}

func TestCollector_WarningsAndThresholdFlush(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:    time.Hour,
		CountThreshold:  2,
		Topic:           "t",
		Publisher:       pub,
		CollectWarnings: true,
	})
	defer c.Close()

	c.AddLog("warn", "a", map[string]interface{}{"pair": "EUR/USD", "n": 1}, "x.go:1")
	c.AddLog("warn", "a", map[string]interface{}{"n": 1, "pair": "EUR/USD"}, "x.go:1")
	c.AddLog("info", "ignored", nil, "x.go:2")
	c.AddLog("error", "b", nil, "x.go:3")

	require.Eventually(t, func() bool {
		_, logs := pub.snapshot()
		return len(logs) == 2
	}, time.Second, 10*time.Millisecond)
	_, logs := pub.snapshot()
	assert.Equal(t, 2, logs[0].Count)
	assert.Equal(t, "b", logs[1].Message)
}

type failingPublisher struct{}

func (failingPublisher) PublishMessage(context.Context, string, interface{}) error {
	return errors.New("queue down")
}

func TestCollector_ReportsPublishErrorsAndIgnoresLateLogs(t *testing.T) {
	var mu sync.Mutex
	var got []error
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 10,
		Topic:          "t",
		Publisher:      failingPublisher{},
		OnError: func(err error) {
			mu.Lock()
			got = append(got, err)
			mu.Unlock()
		},
	})
	c.AddLog("error", "x", nil, "x.go:1")
	c.Close()
	c.Close()
	c.AddLog("error", "late", nil, "x.go:2")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.EqualError(t, got[0], "queue down")
}
