package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"FxPulse/pkg/logger"
	"FxPulse/pkg/util"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type ConsumerOption func(*ConsumerConfig)

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	StartOffset int64
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Logger      *logger.Logger
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(id string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if id != "" {
			c.GroupID = id
		}
	}
}

// WithConsumerStartOffset picks where a new group starts: "earliest" or "latest".
func WithConsumerStartOffset(offset string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.StartOffset = kafka.FirstOffset
		if offset == "latest" {
			c.StartOffset = kafka.LastOffset
		}
	}
}

func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.WorkerCount = n
		}
	}
}

// WithConsumerRetry sets how many times a failed message is retried and the
// backoff range between attempts.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		if max >= 0 {
			c.RetryMax = max
		}
		if backoffMin > 0 {
			c.BackoffMin = backoffMin
		}
		if backoffMax > 0 {
			c.BackoffMax = backoffMax
		}
	}
}

// WithConsumerDLQ routes messages that exhaust their retries to topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if minBytes > 0 {
			c.MinBytes = minBytes
		}
		if maxBytes > 0 {
			c.MaxBytes = maxBytes
		}
	}
}

// WithConsumerBufferSize bounds the fetched but unhandled messages across workers.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

func WithConsumerLogger(l *logger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads registered topics in one consumer group. Each partition is
// pinned to a single worker, so messages of a partition are handled and
// committed in offset order while partitions progress in parallel.
type Consumer struct {
	cfg       ConsumerConfig
	log       *logger.Logger
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	hook      ConsumerHook
	dlq       messageWriter
	newReader func(kafka.ReaderConfig) messageReader

	shards   []chan kafka.Message
	ctx      context.Context
	cancel   context.CancelFunc
	fetchWg  sync.WaitGroup
	workWg   sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := ConsumerConfig{
		GroupID:     "default",
		StartOffset: kafka.FirstOffset,
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
		Logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}

	initConsumerMetricsOnce()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger.With(logger.String("component", "kafka_consumer")),
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]messageReader),
		hook:     NoopHook{},
		newReader: func(rc kafka.ReaderConfig) messageReader {
			return kafka.NewReader(rc)
		},
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// RegisterHandler adds a topic handler. Must be called before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	topic := h.Topic()
	if _, dup := c.handlers[topic]; dup {
		c.log.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = h
}

func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}

	depth := c.cfg.BufferSize / c.cfg.WorkerCount
	if depth < 1 {
		depth = 1
	}
	c.shards = make([]chan kafka.Message, c.cfg.WorkerCount)
	for i := range c.shards {
		c.shards[i] = make(chan kafka.Message, depth)
		c.workWg.Add(1)
		go c.work(c.shards[i])
	}

	for topic := range c.handlers {
		r := c.newReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			StartOffset: c.cfg.StartOffset,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
		})
		c.readers[topic] = r
		c.fetchWg.Add(1)
		go c.fetch(topic, r)
	}

	c.log.Info("started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.String("group", c.cfg.GroupID),
		logger.Int("topics", len(c.handlers)))
	return nil
}

// Stop ends fetching, lets workers finish what was already fetched and
// closes the readers. Messages left unhandled when ctx expires are
// redelivered to the group later.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.cancel()
		c.fetchWg.Wait()
		for _, ch := range c.shards {
			close(ch)
		}

		done := make(chan struct{})
		go func() {
			c.workWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("close reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("close dlq writer", logger.Error(cerr))
			}
		}
		if err == nil {
			c.log.Info("stopped")
		}
	})
	return err
}

func (c *Consumer) shardFor(topic string, partition int) chan kafka.Message {
	h := fnv.New32a()
	h.Write([]byte(topic))
	return c.shards[(h.Sum32()+uint32(partition))%uint32(len(c.shards))]
}

func (c *Consumer) fetch(topic string, r messageReader) {
	defer c.fetchWg.Done()
	for {
		km, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch message", logger.String("topic", topic), logger.Error(err))
			select {
			case <-time.After(c.cfg.BackoffMin):
				continue
			case <-c.ctx.Done():
				return
			}
		}
		if km.Topic == "" {
			km.Topic = topic
		}
		shard := c.shardFor(topic, km.Partition)
		select {
		case shard <- km:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(shard)))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(in <-chan kafka.Message) {
	defer c.workWg.Done()
	for km := range in {
		h, ok := c.handlers[km.Topic]
		if !ok {
			continue
		}
		start := time.Now()
		c.process(h, km)
		consumerHandleLatency.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
	}
}

// process runs the handler with retries and commits the offset once the
// message is either handled or parked in the dead letter topic. A message
// interrupted by shutdown is left uncommitted.
func (c *Consumer) process(h MessageHandler, km kafka.Message) {
	interrupted, err := c.attempt(h, km)
	result := "ok"
	switch {
	case err == nil:
	case interrupted:
		consumerMessagesTotal.WithLabelValues(km.Topic, "interrupted").Inc()
		return
	default:
		result = "failed"
		c.hook.OnError(c.ctx, km.Topic, km, km.Value, err)
		c.log.Error("handle message",
			logger.String("topic", km.Topic),
			logger.Int("partition", km.Partition),
			logger.Int64("offset", km.Offset),
			logger.Error(err))
		if c.deadLetter(km, err) {
			result = "dead_letter"
		}
	}
	consumerMessagesTotal.WithLabelValues(km.Topic, result).Inc()

	if result != "failed" {
		c.commit(km)
	}
}

func (c *Consumer) attempt(h MessageHandler, km kafka.Message) (interrupted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	for n := 1; ; n++ {
		hctx, hmsg, data, berr := c.hook.BeforeHandle(c.ctx, km.Topic, km, km.Value)
		if berr != nil {
			return false, berr
		}
		// In-flight work finishes even when Stop cancels the consumer.
		err = h.Handle(context.WithoutCancel(hctx), data)
		c.hook.AfterHandle(hctx, km.Topic, hmsg, data, err)
		if err == nil || n > c.cfg.RetryMax {
			return false, err
		}
		select {
		case <-time.After(util.BackoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, n)):
		case <-c.ctx.Done():
			return true, err
		}
	}
}

func (c *Consumer) deadLetter(km kafka.Message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	headers := make([]kafka.Header, 0, len(km.Headers)+2)
	headers = append(headers, km.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(km.Topic)},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	err := c.dlq.WriteMessages(ctx, kafka.Message{Key: km.Key, Value: km.Value, Time: time.Now(), Headers: headers})
	if err != nil {
		c.log.Error("write dead letter", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(km kafka.Message) {
	r := c.readers[km.Topic]
	if r == nil {
		return
	}
	const attempts = 3
	var err error
	for n := 1; n <= attempts; n++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(util.BackoffWithJitter(50*time.Millisecond, 500*time.Millisecond, n))
	}
	c.log.Error("commit offset",
		logger.String("topic", km.Topic),
		logger.Int64("offset", km.Offset),
		logger.Error(err))
}

var (
	consumerQueueDepth    *prometheus.GaugeVec
	consumerMessagesTotal *prometheus.CounterVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerOnce          sync.Once
	consumerRegisterer    prometheus.Registerer = prometheus.DefaultRegisterer
)

// SetConsumerMetricsRegisterer takes effect only before the first consumer is created.
func SetConsumerMetricsRegisterer(reg prometheus.Registerer) { consumerRegisterer = reg }

func initConsumerMetricsOnce() {
	consumerOnce.Do(func() {
		f := promauto.With(consumerRegisterer)
		consumerQueueDepth = f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fxpulse_kafka_consumer_queue_depth",
			Help: "Fetched messages waiting for a worker.",
		}, []string{"topic"})
		consumerMessagesTotal = f.NewCounterVec(prometheus.CounterOpts{
			Name: "fxpulse_kafka_consumer_messages_total",
			Help: "Consumed messages by result.",
		}, []string{"topic", "result"})
		consumerHandleLatency = f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "fxpulse_kafka_consumer_handle_seconds",
			Help: "Handling time per message including retries.",
		}, []string{"topic"})
	})
}
